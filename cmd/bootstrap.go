package cmd

import (
	"fmt"
	"os"

	internalApp "github.com/haierkeys/contact-identity-service/internal/app"
	"github.com/haierkeys/contact-identity-service/internal/dao"
	"github.com/haierkeys/contact-identity-service/pkg/fileurl"
	"github.com/haierkeys/contact-identity-service/pkg/logger"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
)

// bootstrapLogger 启动阶段日志器
// 用于在主日志器初始化之前记录启动过程中的日志，DEBUG 环境变量非空时输出 debug 级别
var bootstrapLogger *zap.Logger

func init() {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	level := zapcore.InfoLevel
	if os.Getenv("DEBUG") != "" {
		level = zapcore.DebugLevel
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stderr), level)
	bootstrapLogger = zap.New(core, zap.AddCaller())
}

// resolveConfigPath 未指定配置文件时依次查找，全部不存在则写出内嵌的默认配置
func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	for _, candidate := range []string{"config/config-dev.yaml", "config.yaml", "config/config.yaml"} {
		if fileurl.IsExist(candidate) {
			return candidate, nil
		}
	}

	path = "config/config.yaml"
	bootstrapLogger.Warn("config file not found, creating default config", zap.String("path", path))
	if err := fileurl.CreatePath(path, os.ModePerm); err != nil {
		return "", fmt.Errorf("config file auto create: %w", err)
	}
	if err := os.WriteFile(path, []byte(configDefault), 0644); err != nil {
		return "", fmt.Errorf("config file auto create writing: %w", err)
	}
	bootstrapLogger.Info("config file auto create successfully", zap.String("path", path))
	return path, nil
}

// loadConfigAndLogger 加载配置并创建服务日志器，供各子命令复用
func loadConfigAndLogger(path string) (*internalApp.AppConfig, *zap.Logger, error) {
	path, err := resolveConfigPath(path)
	if err != nil {
		return nil, nil, err
	}
	cfg, realpath, err := internalApp.LoadConfig(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	lg, err := logger.NewLogger(cfg.GetLoggerConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}
	lg.Info("config loaded", zap.String("path", realpath))
	return cfg, lg, nil
}

// openDatabase 按配置打开数据库
func openDatabase(cfg *internalApp.AppConfig) (*gorm.DB, error) {
	db, err := dao.NewDBEngine(cfg.GetDatabaseConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}
	return db, nil
}
