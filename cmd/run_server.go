package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	internalApp "github.com/haierkeys/contact-identity-service/internal/app"
	"github.com/haierkeys/contact-identity-service/internal/routers"
	"github.com/haierkeys/contact-identity-service/internal/task"
	"github.com/haierkeys/contact-identity-service/internal/upgrade"
	"github.com/haierkeys/contact-identity-service/pkg/logger"
	"github.com/haierkeys/contact-identity-service/pkg/safe_close"
	"github.com/haierkeys/contact-identity-service/pkg/tracer"
	"github.com/haierkeys/contact-identity-service/pkg/validator"

	"github.com/gin-gonic/gin"
	ut "github.com/go-playground/universal-translator"
	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultShutdownTimeout 默认关闭超时时间
const DefaultShutdownTimeout = 30 * time.Second

type Server struct {
	logger            *zap.Logger            // 日志对象
	config            *internalApp.AppConfig // 应用配置
	db                *gorm.DB               // 数据库连接
	ut                *ut.UniversalTranslator
	tracer            opentracing.Tracer
	httpServer        *http.Server
	privateHttpServer *http.Server
	sc                *safe_close.SafeClose
	app               *internalApp.App // App Container
}

func NewServer(runEnv *runFlags) (*Server, error) {
	appConfig, configRealpath, err := internalApp.LoadConfig(runEnv.config)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 命令行参数优先于配置文件
	if runEnv.runMode != "" {
		appConfig.Server.RunMode = runEnv.runMode
	}
	if runEnv.port != "" {
		appConfig.Server.HttpPort = normalizeAddr(runEnv.port)
	}

	if runMode := appConfig.Server.RunMode; len(runMode) > 0 {
		gin.SetMode(runMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config: appConfig,
		sc:     safe_close.NewSafeClose(),
	}

	if err := initLoggerWithConfig(s, appConfig); err != nil {
		return nil, fmt.Errorf("initLogger: %w", err)
	}

	if err := initStorageWithConfig(appConfig); err != nil {
		return nil, fmt.Errorf("initStorage: %w", err)
	}

	db, err := openDatabase(appConfig)
	if err != nil {
		return nil, err
	}
	s.db = db

	if err := initTracer(s, appConfig); err != nil {
		return nil, fmt.Errorf("initTracer: %w", err)
	}

	// 先迁移再创建容器，身份服务启动时表必须存在
	if err := upgrade.Execute(db, s.logger, internalApp.Version); err != nil {
		return nil, fmt.Errorf("upgrade.Execute: %w", err)
	}

	app, err := internalApp.NewApp(appConfig, s.logger, db)
	if err != nil {
		return nil, fmt.Errorf("failed to create app container: %w", err)
	}
	s.app = app

	uni, err := validator.Install()
	if err != nil {
		return nil, fmt.Errorf("initValidator: %w", err)
	}
	s.ut = uni

	initScheduler(s)

	banner := `
   ______            __             __     ____    __           __  _ __
  / ____/___  ____  / /_____ ______/ /_   /  _/___/ /__  ____  / /_(_) /___  __
 / /   / __ \/ __ \/ __/ __ '/ ___/ __/   / // __  / _ \/ __ \/ __/ / __/ / / /
/ /___/ /_/ / / / / /_/ /_/ / /__/ /_   _/ // /_/ /  __/ / / / /_/ / /_/ /_/ /
\____/\____/_/ /_/\__/\__,_/\___/\__/  /___/\__,_/\___/_/ /_/\__/_/\__/\__, /
                                                                      /____/ `
	s.logger.Warn(fmt.Sprintf("%s\n\n%s v%s\nGit: %s\nBuildTime: %s\n", banner, internalApp.Name, internalApp.Version, internalApp.GitTag, internalApp.BuildTime))
	s.logger.Warn("config loaded", zap.String("path", configRealpath))

	if httpAddr := appConfig.Server.HttpPort; len(httpAddr) > 0 {
		s.logger.Warn("api_router", zap.String("config.server.HttpPort", httpAddr))
		s.httpServer = &http.Server{
			Addr:           httpAddr,
			Handler:        routers.NewRouter(s.app, s.ut, s.tracer),
			ReadTimeout:    time.Duration(appConfig.Server.ReadTimeout) * time.Second,
			WriteTimeout:   time.Duration(appConfig.Server.WriteTimeout) * time.Second,
			MaxHeaderBytes: 1 << 20,
		}
		s.attachHTTPServer("api service", s.httpServer)
	}

	if httpAddr := appConfig.Server.PrivateHttpListen; len(httpAddr) > 0 {
		s.logger.Info("api_router", zap.String("config.server.PrivateHttpListen", httpAddr))
		s.privateHttpServer = &http.Server{
			Addr:           httpAddr,
			Handler:        routers.NewPrivateRouter(appConfig.Server.RunMode, s.logger, s.app.Registry),
			ReadTimeout:    time.Duration(appConfig.Server.ReadTimeout) * time.Second,
			WriteTimeout:   time.Duration(appConfig.Server.WriteTimeout) * time.Second,
			MaxHeaderBytes: 1 << 20,
		}
		s.attachHTTPServer("private api service", s.privateHttpServer)
	}

	// App Container 的优雅关闭，排空写队列后关闭数据库
	s.sc.Attach(func(done func(), closeSignal <-chan struct{}) {
		defer done()
		<-closeSignal
		if s.app != nil {
			ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
			defer cancel()

			if err := s.app.Shutdown(ctx); err != nil {
				s.logger.Error("failed to shutdown app container", zap.Error(err))
			} else {
				s.logger.Info("App container shutdown gracefully")
			}
		}
	})

	return s, nil
}

// attachHTTPServer 启动 HTTP 服务，收到关闭信号后 5 秒内停止
func (s *Server) attachHTTPServer(name string, srv *http.Server) {
	s.sc.Attach(func(done func(), closeSignal <-chan struct{}) {
		defer done()
		errChan := make(chan error, 1)
		go func() {
			errChan <- srv.ListenAndServe()
		}()
		select {
		case err := <-errChan:
			s.logger.Error(name+" err", zap.Error(err))
			s.sc.SendCloseSignal(err)
		case <-closeSignal:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				s.logger.Error(name+" shutdown error", zap.Error(err))
			}
		}
	})
}

func initScheduler(s *Server) {
	manager := task.NewManager(s.logger, s.sc, s.app)

	// 注册所有任务(业务层控制)
	if err := manager.RegisterTasks(); err != nil {
		s.logger.Error("failed to register tasks", zap.Error(err))
		return
	}

	manager.Start()
}

// initLoggerWithConfig 初始化日志器
func initLoggerWithConfig(s *Server, cfg *internalApp.AppConfig) error {
	lg, err := logger.NewLogger(cfg.GetLoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	s.logger = lg
	return nil
}

// initTracer 初始化 jaeger，关闭时 flush 未上报的 span
func initTracer(s *Server, cfg *internalApp.AppConfig) error {
	t, closer, err := tracer.NewJaegerTracer(cfg.GetTracerConfig())
	if err != nil {
		return err
	}
	s.tracer = t
	s.sc.Attach(func(done func(), closeSignal <-chan struct{}) {
		defer done()
		<-closeSignal
		closeQuietly(s.logger, "tracer", closer)
	})
	return nil
}

// initStorageWithConfig 初始化存储目录
func initStorageWithConfig(cfg *internalApp.AppConfig) error {
	dirs := []string{filepath.Dir(cfg.Log.File)}
	if cfg.Database.Type == "sqlite" && cfg.Database.DSN == "" {
		dirs = append(dirs, filepath.Dir(cfg.Database.Path))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0754); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func closeQuietly(lg *zap.Logger, name string, c io.Closer) {
	if err := c.Close(); err != nil {
		lg.Warn("close "+name, zap.Error(err))
	}
}

// normalizeAddr 允许 -p 3000 这样只给端口号
func normalizeAddr(port string) string {
	for _, r := range port {
		if r < '0' || r > '9' {
			return port
		}
	}
	return ":" + port
}

// GetApp 获取 App Container
func (s *Server) GetApp() *internalApp.App {
	return s.app
}

// GetConfig 获取应用配置
func (s *Server) GetConfig() *internalApp.AppConfig {
	return s.config
}
