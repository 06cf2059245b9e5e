// Package logger builds the service zap logger from config.
package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config 日志配置
type Config struct {
	Level      string // debug, info, warn, error
	File       string // 日志文件路径，为空时只输出到 stderr
	Production bool   // 是否启用 JSON 输出
}

// NewLogger creates the service logger.
// Production mode writes JSON, otherwise a colored console encoder is used.
// Logs always go to stderr and additionally to File when set.
func NewLogger(cfg Config) (*zap.Logger, error) {
	level := zapcore.WarnLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, err
		}
	}

	var encCfg zapcore.EncoderConfig
	var enc zapcore.Encoder
	if cfg.Production {
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stderr)}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0754); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, zapcore.AddSync(f))
	}

	core := zapcore.NewCore(enc, zapcore.NewMultiWriteSyncer(sinks...), level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}
