// Package app 提供应用容器，封装所有依赖和服务
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/haierkeys/contact-identity-service/internal/dao"
	"github.com/haierkeys/contact-identity-service/internal/domain"
	"github.com/haierkeys/contact-identity-service/internal/service"
	pkgapp "github.com/haierkeys/contact-identity-service/pkg/app"
	"github.com/haierkeys/contact-identity-service/pkg/workerpool"
	"github.com/haierkeys/contact-identity-service/pkg/writequeue"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App 应用容器，封装所有依赖和服务
type App struct {
	// 基础设施（注入的依赖）
	config *AppConfig
	logger *zap.Logger
	DB     *gorm.DB
	Dao    *dao.Dao

	// 并发控制组件
	workerPool    *workerpool.Pool
	writeQueueMgr *writequeue.Manager

	// 指标注册表，由私有路由的 /metrics 暴露
	Registry *prometheus.Registry
	Metrics  *service.IdentityMetrics

	// Repository 层
	ContactRepo domain.ContactRepository

	// Service 层
	IdentityService service.IdentityService

	StartTime time.Time

	// 关闭控制
	shutdownCh chan struct{}
	wg         sync.WaitGroup
}

// NewApp 创建应用容器实例
// cfg: 应用配置（必须）
// logger: zap 日志器（必须）
// db: 数据库连接（必须）
func NewApp(cfg *AppConfig, logger *zap.Logger, db *gorm.DB) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}

	a := &App{
		config:     cfg,
		logger:     logger,
		DB:         db,
		StartTime:  time.Now(),
		shutdownCh: make(chan struct{}),
	}

	wpConfig := cfg.GetWorkerPoolConfig()
	a.workerPool = workerpool.New(&wpConfig, logger)

	wqConfig := cfg.GetWriteQueueConfig()
	a.writeQueueMgr = writequeue.New(&wqConfig, logger)

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = service.NewIdentityMetrics(a.Registry)

	dbConfig := cfg.GetDatabaseConfig()
	a.Dao = dao.New(db, context.Background(),
		dao.WithConfig(&dbConfig),
		dao.WithLogger(logger),
	)

	a.ContactRepo = dao.NewContactRepository(a.Dao)

	identityService, err := service.NewIdentityService(a.ContactRepo, a.writeQueueMgr, logger, cfg.GetServiceConfig(), a.Metrics)
	if err != nil {
		_ = a.workerPool.Shutdown(context.Background())
		_ = a.writeQueueMgr.Shutdown(context.Background())
		return nil, fmt.Errorf("identity service: %w", err)
	}
	a.IdentityService = identityService

	logger.Info("App container initialized successfully",
		zap.String("mergePolicy", string(cfg.GetServiceConfig().Identity.MergePolicy)),
		zap.Int("workerPoolMaxWorkers", wpConfig.MaxWorkers),
		zap.Int("writeQueueCapacity", wqConfig.QueueCapacity))

	return a, nil
}

// Close 释放数据库连接
func (a *App) Close() error {
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err != nil {
			return fmt.Errorf("failed to get sql.DB: %w", err)
		}
		if err := sqlDB.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
		a.logger.Info("Database connection closed")
	}
	return nil
}

// Config 获取应用配置
func (a *App) Config() *AppConfig {
	return a.config
}

// Logger 获取日志器
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Version 获取版本信息
func (a *App) Version() pkgapp.VersionInfo {
	return pkgapp.VersionInfo{
		Version:   Version,
		GitTag:    GitTag,
		BuildTime: BuildTime,
	}
}

// Uptime 服务运行时长
func (a *App) Uptime() time.Duration {
	return time.Since(a.StartTime)
}

// IsProductionMode 是否为生产模式
func (a *App) IsProductionMode() bool {
	return a.config.Log.Production
}

// SubmitTask 提交任务到 Worker Pool
func (a *App) SubmitTask(ctx context.Context, task func(context.Context) error) error {
	return a.workerPool.Submit(ctx, task)
}

// WorkerPool 获取 Worker Pool
func (a *App) WorkerPool() *workerpool.Pool {
	return a.workerPool
}

// WriteQueueManager 获取 Write Queue Manager
func (a *App) WriteQueueManager() *writequeue.Manager {
	return a.writeQueueMgr
}

// DefaultShutdownTimeout 默认关闭超时时间
const DefaultShutdownTimeout = 30 * time.Second

// Shutdown 优雅关闭应用容器
// 按顺序关闭：Worker Pool -> Write Queue Manager -> 后台任务 -> Database
// ctx 为 nil 时使用默认 30 秒超时
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("App container shutting down...")

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
	}

	select {
	case <-a.shutdownCh:
		return nil
	default:
		close(a.shutdownCh)
	}

	var errs []error

	// 1. 停止接受新任务，等待现有任务完成
	if a.workerPool != nil {
		if err := a.workerPool.Shutdown(ctx); err != nil {
			a.logger.Warn("Worker pool shutdown error", zap.Error(err))
			errs = append(errs, fmt.Errorf("worker pool shutdown: %w", err))
		}
	}

	// 2. 排空写队列，已排队的 identify 仍会提交
	if a.writeQueueMgr != nil {
		if err := a.writeQueueMgr.Shutdown(ctx); err != nil {
			a.logger.Warn("write queue manager shutdown error", zap.Error(err))
			errs = append(errs, fmt.Errorf("write queue manager shutdown: %w", err))
		}
	}

	// 3. 等待后台操作
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("Shutdown timeout waiting for background operations")
		errs = append(errs, fmt.Errorf("background operations timeout: %w", ctx.Err()))
	}

	// 4. 关闭数据库连接
	if err := a.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown completed with %d errors: %v", len(errs), errs)
	}

	a.logger.Info("App container shutdown completed successfully")
	return nil
}

// IsShuttingDown 检查应用是否正在关闭
func (a *App) IsShuttingDown() bool {
	select {
	case <-a.shutdownCh:
		return true
	default:
		return false
	}
}

// ShutdownCh 返回关闭信号通道
func (a *App) ShutdownCh() <-chan struct{} {
	return a.shutdownCh
}

// TrackOperation 跟踪后台操作，返回完成时调用的函数
func (a *App) TrackOperation() func() {
	a.wg.Add(1)
	return func() {
		a.wg.Done()
	}
}
