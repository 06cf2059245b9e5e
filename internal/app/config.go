// Package app 提供应用容器，封装所有依赖和服务
package app

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/haierkeys/contact-identity-service/internal/dao"
	"github.com/haierkeys/contact-identity-service/internal/service"
	"github.com/haierkeys/contact-identity-service/pkg/limiter"
	"github.com/haierkeys/contact-identity-service/pkg/logger"
	"github.com/haierkeys/contact-identity-service/pkg/tracer"
	"github.com/haierkeys/contact-identity-service/pkg/util"
	"github.com/haierkeys/contact-identity-service/pkg/workerpool"
	"github.com/haierkeys/contact-identity-service/pkg/writequeue"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// AppConfig 应用配置
type AppConfig struct {
	File     string         `yaml:"-"` // 配置文件路径，不序列化
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	App      AppSettings    `yaml:"app"`
	Identity IdentityConfig `yaml:"identity"`
	Tracer   TracerConfig   `yaml:"tracer"`
	Limiter  LimiterConfig  `yaml:"limiter"`
}

// LogConfig 日志配置
type LogConfig struct {
	// Level 日志级别，参见 zapcore.ParseLevel
	Level string `yaml:"level" default:"warn"`
	// File 日志文件路径，为空时只输出到 stderr
	File string `yaml:"file" default:"storage/logs/log.log"`
	// Production 是否启用 JSON 输出
	Production bool `yaml:"production" default:"true"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// RunMode 运行模式 debug / release / test
	RunMode string `yaml:"run-mode" default:"release"`
	// HttpPort HTTP 端口
	HttpPort string `yaml:"http-port" default:":3000"`
	// ReadTimeout 读取超时（秒）
	ReadTimeout int `yaml:"read-timeout" default:"60"`
	// WriteTimeout 写入超时（秒）
	WriteTimeout int `yaml:"write-timeout" default:"60"`
	// PrivateHttpListen 私有 HTTP 监听地址，为空时不启动
	PrivateHttpListen string `yaml:"private-http-listen" default:":3001"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// Type 数据库类型 sqlite / mysql / postgres
	Type string `yaml:"type" default:"sqlite"`
	// DSN 完整连接串，优先于分项配置
	DSN string `yaml:"dsn"`
	// Path SQLite 数据库文件路径
	Path string `yaml:"path" default:"storage/database/contact.sqlite3"`
	// UserName 用户名
	UserName string `yaml:"username"`
	// Password 密码
	Password string `yaml:"password"`
	// Host 主机
	Host string `yaml:"host"`
	// Port 端口，0 使用驱动默认值
	Port int `yaml:"port"`
	// Name 数据库名
	Name string `yaml:"name"`
	// TablePrefix 表前缀
	TablePrefix string `yaml:"table-prefix"`
	// AutoMigrate 是否启用自动迁移
	AutoMigrate bool `yaml:"auto-migrate" default:"true"`
	// Charset 字符集
	Charset string `yaml:"charset"`
	// ParseTime 是否解析时间
	ParseTime bool `yaml:"parse-time"`
	// SSLMode postgres sslmode
	SSLMode string `yaml:"ssl-mode"`
	// MaxIdleConns 最大闲置连接数
	MaxIdleConns int `yaml:"max-idle-conns" default:"10"`
	// MaxOpenConns 最大打开连接数
	MaxOpenConns int `yaml:"max-open-conns" default:"100"`
	// ConnMaxLifetime 连接最大生命周期，支持格式：30m、1h
	ConnMaxLifetime string `yaml:"conn-max-lifetime" default:"30m"`
	// ConnMaxIdleTime 空闲连接最大生命周期
	ConnMaxIdleTime string `yaml:"conn-max-idle-time" default:"10m"`
	// Replicas 只读副本连接串
	Replicas []string `yaml:"replicas"`
}

// AppSettings 应用设置
type AppSettings struct {
	// DefaultContextTimeout 请求上下文超时（秒），0 不限制
	DefaultContextTimeout int `yaml:"default-context-timeout" default:"60"`

	// Worker Pool 配置
	WorkerPoolMaxWorkers int `yaml:"worker-pool-max-workers" default:"8"`
	WorkerPoolQueueSize  int `yaml:"worker-pool-queue-size" default:"256"`

	// Write Queue 配置
	WriteQueueCapacity int    `yaml:"write-queue-capacity" default:"100"`
	WriteQueueTimeout  string `yaml:"write-queue-timeout" default:"30s"`
	WriteQueueIdleTime string `yaml:"write-queue-idle-time" default:"10m"`
}

// IdentityConfig 身份识别配置
type IdentityConfig struct {
	// MergePolicy shallow / deep
	MergePolicy string `yaml:"merge-policy" default:"shallow"`
	// AuditInterval 网络巡检间隔，0 关闭
	AuditInterval string `yaml:"audit-interval" default:"1h"`
	// AuditCron 巡检 cron 表达式，非空时优先于 AuditInterval
	AuditCron string `yaml:"audit-cron"`
	// AuditPageSize 每批巡检的主联系人数量
	AuditPageSize int `yaml:"audit-page-size" default:"200"`
}

// TracerConfig 请求追踪配置
type TracerConfig struct {
	// Enabled 是否启用 trace id
	Enabled bool `yaml:"enabled" default:"true"`
	// Header 追踪 ID 请求头名称
	Header string `yaml:"header" default:"X-Trace-ID"`
	// JaegerAgent jaeger agent 地址 host:port，为空不上报
	JaegerAgent string `yaml:"jaeger-agent"`
	// ServiceName 上报的服务名
	ServiceName string `yaml:"service-name" default:"contact-identity-service"`
	// SampleRate 采样率
	SampleRate float64 `yaml:"sample-rate" default:"1"`
}

// LimiterConfig identify 接口限流
type LimiterConfig struct {
	Enabled      bool   `yaml:"enabled" default:"true"`
	FillInterval string `yaml:"fill-interval" default:"1s"`
	Capacity     int64  `yaml:"capacity" default:"100"`
	Quantum      int64  `yaml:"quantum" default:"100"`
}

// LoadConfig 从文件加载配置
// 返回配置实例和配置文件的绝对路径
func LoadConfig(f string) (*AppConfig, string, error) {
	realpath, err := filepath.Abs(f)
	if err != nil {
		return nil, "", err
	}
	realpath = filepath.Clean(realpath)

	c := new(AppConfig)
	c.File = realpath

	// 设置默认值
	if err := defaults.Set(c); err != nil {
		return nil, realpath, errors.Wrap(err, "set default config failed")
	}

	file, err := os.ReadFile(realpath)
	if err != nil {
		return nil, realpath, errors.Wrap(err, "read config file failed")
	}

	err = yaml.Unmarshal(file, c)
	if err != nil {
		return nil, realpath, errors.Wrap(err, "parse config file failed")
	}

	// 再次设置默认值，填充 YAML 中存在但值为空的字段
	if err := defaults.Set(c); err != nil {
		return nil, realpath, errors.Wrap(err, "re-set default config failed")
	}

	LoadEnvFiles(filepath.Dir(realpath))
	c.ApplyEnv()

	return c, realpath, nil
}

// LoadEnvFiles 加载 .env 与 .env.local，已存在的环境变量不会被覆盖
func LoadEnvFiles(dirs ...string) {
	dirs = append(dirs, ".")
	for _, dir := range dirs {
		for _, name := range []string{".env", ".env.local"} {
			_ = godotenv.Load(filepath.Join(dir, name))
		}
	}
}

// ApplyEnv 使用环境变量覆盖配置
//   - PORT          server.http-port
//   - DATABASE_URL  database.dsn
//   - DATABASE_TYPE database.type
//   - RUN_MODE      server.run-mode
func (c *AppConfig) ApplyEnv() {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		if !strings.Contains(port, ":") {
			port = ":" + port
		}
		c.Server.HttpPort = port
	}
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		c.Database.DSN = dsn
	}
	if typ := strings.TrimSpace(os.Getenv("DATABASE_TYPE")); typ != "" {
		c.Database.Type = typ
	}
	if mode := strings.TrimSpace(os.Getenv("RUN_MODE")); mode != "" {
		c.Server.RunMode = mode
	}
}

// GetDatabaseConfig 转换为 DAO 层配置
func (c *AppConfig) GetDatabaseConfig() dao.DatabaseConfig {
	return dao.DatabaseConfig{
		Type:            c.Database.Type,
		DSN:             c.Database.DSN,
		Path:            c.Database.Path,
		UserName:        c.Database.UserName,
		Password:        c.Database.Password,
		Host:            c.Database.Host,
		Port:            c.Database.Port,
		Name:            c.Database.Name,
		TablePrefix:     c.Database.TablePrefix,
		AutoMigrate:     c.Database.AutoMigrate,
		Charset:         c.Database.Charset,
		ParseTime:       c.Database.ParseTime,
		SSLMode:         c.Database.SSLMode,
		MaxIdleConns:    c.Database.MaxIdleConns,
		MaxOpenConns:    c.Database.MaxOpenConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		ConnMaxIdleTime: c.Database.ConnMaxIdleTime,
		Replicas:        c.Database.Replicas,
		RunMode:         c.Server.RunMode,
	}
}

// GetServiceConfig 提取 Service 层需要的配置
func (c *AppConfig) GetServiceConfig() *service.ServiceConfig {
	return &service.ServiceConfig{
		Identity: service.IdentityServiceConfig{
			MergePolicy: service.MergePolicy(strings.ToLower(strings.TrimSpace(c.Identity.MergePolicy))),
		},
	}
}

// GetLoggerConfig 日志配置
func (c *AppConfig) GetLoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Log.Level,
		File:       c.Log.File,
		Production: c.Log.Production,
	}
}

// GetTracerConfig jaeger 配置
func (c *AppConfig) GetTracerConfig() tracer.Config {
	return tracer.Config{
		ServiceName: c.Tracer.ServiceName,
		AgentHost:   c.Tracer.JaegerAgent,
		SampleRate:  c.Tracer.SampleRate,
	}
}

// GetLimiterRules identify 接口的令牌桶规则
func (c *AppConfig) GetLimiterRules() []limiter.BucketRule {
	if !c.Limiter.Enabled {
		return nil
	}
	return []limiter.BucketRule{{
		Key:          "/identify",
		FillInterval: util.DurationOr(c.Limiter.FillInterval, time.Second),
		Capacity:     c.Limiter.Capacity,
		Quantum:      c.Limiter.Quantum,
	}}
}

// GetContextTimeout 请求上下文超时
func (c *AppConfig) GetContextTimeout() time.Duration {
	return time.Duration(c.App.DefaultContextTimeout) * time.Second
}

// GetAuditInterval 巡检间隔，0 表示关闭
func (c *AppConfig) GetAuditInterval() time.Duration {
	return util.DurationOr(c.Identity.AuditInterval, 0)
}

// GetWorkerPoolConfig 获取 Worker Pool 配置
func (c *AppConfig) GetWorkerPoolConfig() workerpool.Config {
	cfg := workerpool.DefaultConfig()

	if c.App.WorkerPoolMaxWorkers > 0 {
		cfg.MaxWorkers = c.App.WorkerPoolMaxWorkers
	}
	if c.App.WorkerPoolQueueSize > 0 {
		cfg.QueueSize = c.App.WorkerPoolQueueSize
	}

	return cfg
}

// GetWriteQueueConfig 获取 Write Queue 配置
func (c *AppConfig) GetWriteQueueConfig() writequeue.Config {
	cfg := writequeue.DefaultConfig()

	if c.App.WriteQueueCapacity > 0 {
		cfg.QueueCapacity = c.App.WriteQueueCapacity
	}
	if c.App.WriteQueueTimeout != "" {
		if timeout, err := util.ParseDuration(c.App.WriteQueueTimeout); err == nil {
			cfg.WriteTimeout = timeout
		}
	}
	if c.App.WriteQueueIdleTime != "" {
		if idleTime, err := util.ParseDuration(c.App.WriteQueueIdleTime); err == nil {
			cfg.IdleTimeout = idleTime
		}
	}

	return cfg
}

// NewDefaultConfig 返回仅包含默认值的配置
func NewDefaultConfig() (*AppConfig, error) {
	c := new(AppConfig)
	if err := defaults.Set(c); err != nil {
		return nil, errors.Wrap(err, "set default config failed")
	}
	return c, nil
}
