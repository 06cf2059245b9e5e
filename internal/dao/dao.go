// Package dao 实现数据访问层
package dao

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/haierkeys/contact-identity-service/pkg/fileurl"
	"github.com/haierkeys/contact-identity-service/pkg/util"

	"github.com/glebarez/sqlite"
	"github.com/haierkeys/gormTracing"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"
)

// DatabaseConfig 数据库配置（DAO 层使用）
type DatabaseConfig struct {
	// Type sqlite / mysql / postgres
	Type string
	// DSN 完整连接串，非空时优先于下面的分项
	DSN             string
	Path            string
	UserName        string
	Password        string
	Host            string
	Port            int
	Name            string
	TablePrefix     string
	AutoMigrate     bool
	Charset         string
	ParseTime       bool
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime string
	ConnMaxIdleTime string
	// Replicas 只读副本连接串，与主库同类型
	Replicas []string
	RunMode  string
}

// Dao 数据访问对象
type Dao struct {
	DB     *gorm.DB
	ctx    context.Context
	config *DatabaseConfig
	logger *zap.Logger

	onceMu sync.Mutex
	once   map[string]*onceResult
}

type onceResult struct {
	once sync.Once
	err  error
}

// Option Dao 构造选项
type Option func(*Dao)

// WithConfig 设置数据库配置
func WithConfig(c *DatabaseConfig) Option {
	return func(d *Dao) { d.config = c }
}

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) Option {
	return func(d *Dao) { d.logger = l }
}

// New 创建 Dao 实例
func New(db *gorm.DB, ctx context.Context, opts ...Option) *Dao {
	d := &Dao{
		DB:     db,
		ctx:    ctx,
		config: &DatabaseConfig{AutoMigrate: true},
		logger: zap.NewNop(),
		once:   make(map[string]*onceResult),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// UseWithOnceFunc 返回数据库句柄，首次使用 key 时执行 f（通常是自动迁移）
func (d *Dao) UseWithOnceFunc(f func(*gorm.DB) error, key string) (*gorm.DB, error) {
	if !d.config.AutoMigrate || f == nil {
		return d.DB, nil
	}

	d.onceMu.Lock()
	r, ok := d.once[key]
	if !ok {
		r = &onceResult{}
		d.once[key] = r
	}
	d.onceMu.Unlock()

	r.once.Do(func() {
		r.err = f(d.DB)
		if r.err != nil {
			d.logger.Error("auto migrate failed", zap.String("key", key), zap.Error(r.err))
		}
	})
	return d.DB, r.err
}

// Ping 检查数据库连通性
func (d *Dao) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// NewDBEngine 创建数据库引擎
func NewDBEngine(c DatabaseConfig) (*gorm.DB, error) {
	dialector, err := Dialector(c, c.DSN)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   c.TablePrefix, // 表名前缀
			SingularTable: true,          // 使用单数表名，`Contact` 的表名为 `contact`
		},
	})
	if err != nil {
		return nil, err
	}
	if c.RunMode == "debug" {
		db.Config.Logger = logger.Default.LogMode(logger.Info)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// SQLite 只允许一个写连接，避免 database is locked
	if c.Type == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(c.MaxIdleConns)
		sqlDB.SetMaxOpenConns(c.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(util.DurationOr(c.ConnMaxLifetime, 30*time.Minute))
	sqlDB.SetConnMaxIdleTime(util.DurationOr(c.ConnMaxIdleTime, 10*time.Minute))

	if len(c.Replicas) > 0 {
		replicas := make([]gorm.Dialector, 0, len(c.Replicas))
		for _, dsn := range c.Replicas {
			r, err := Dialector(c, dsn)
			if err != nil {
				return nil, err
			}
			replicas = append(replicas, r)
		}
		err = db.Use(dbresolver.Register(dbresolver.Config{
			Replicas: replicas,
			Policy:   dbresolver.RandomPolicy{},
		}).
			SetMaxIdleConns(c.MaxIdleConns).
			SetMaxOpenConns(c.MaxOpenConns))
		if err != nil {
			return nil, fmt.Errorf("register read replicas: %w", err)
		}
	}

	_ = db.Use(&gormTracing.OpentracingPlugin{})

	return db, nil
}

// Dialector 根据数据库类型构造 gorm 方言；dsn 为空时由配置分项拼接
func Dialector(c DatabaseConfig, dsn string) (gorm.Dialector, error) {
	switch strings.ToLower(c.Type) {
	case "mysql":
		if dsn == "" {
			charset := c.Charset
			if charset == "" {
				charset = "utf8mb4"
			}
			host := c.Host
			if c.Port > 0 {
				host = fmt.Sprintf("%s:%d", c.Host, c.Port)
			}
			dsn = fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=%s&parseTime=%t&loc=Local",
				c.UserName, c.Password, host, c.Name, charset, c.ParseTime)
		}
		return mysql.Open(dsn), nil
	case "postgres", "postgresql":
		if dsn == "" {
			port := c.Port
			if port == 0 {
				port = 5432
			}
			sslMode := c.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
				c.Host, c.UserName, c.Password, c.Name, port, sslMode)
		}
		return postgres.Open(dsn), nil
	case "sqlite", "":
		if dsn == "" {
			dsn = c.Path
		}
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") && !fileurl.IsExist(dsn) {
			if err := fileurl.CreatePath(dsn, os.ModePerm); err != nil {
				return nil, err
			}
		}
		return sqlite.Open(dsn), nil
	}
	return nil, fmt.Errorf("unsupported database type %q", c.Type)
}
