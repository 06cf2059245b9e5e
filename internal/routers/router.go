package routers

import (
	"github.com/haierkeys/contact-identity-service/internal/app"
	"github.com/haierkeys/contact-identity-service/internal/middleware"
	"github.com/haierkeys/contact-identity-service/internal/routers/api_router"
	"github.com/haierkeys/contact-identity-service/pkg/limiter"

	"github.com/gin-gonic/gin"
	ut "github.com/go-playground/universal-translator"
	"github.com/opentracing/opentracing-go"
)

// NewRouter 创建公开路由
// tracer 为 nil 时使用 opentracing 全局 tracer
func NewRouter(appContainer *app.App, uni *ut.UniversalTranslator, tracer opentracing.Tracer) *gin.Engine {

	cfg := appContainer.Config()
	if tracer == nil {
		tracer = opentracing.GlobalTracer()
	}

	methodLimiters := limiter.NewMethodLimiter().AddBuckets(cfg.GetLimiterRules()...)

	r := gin.New()

	api := r.Group("/api")
	{
		api.Use(middleware.AppInfo(app.Name, appContainer.Version().Version))
		api.Use(middleware.TraceMiddleware(middleware.TraceConfig{
			Enabled: cfg.Tracer.Enabled,
			Header:  cfg.Tracer.Header,
		}))
		api.Use(middleware.Tracing(tracer))
		api.Use(middleware.RateLimiter(methodLimiters))
		api.Use(middleware.ContextTimeout(cfg.GetContextTimeout()))
		api.Use(middleware.Cors())
		api.Use(middleware.LangWithTranslator(uni))
		api.Use(middleware.AccessLog(appContainer.Logger()))
		api.Use(middleware.RecoveryWithLogger(appContainer.Logger()))

		identityHandler := api_router.NewIdentityHandler(appContainer)
		healthHandler := api_router.NewHealthHandler(appContainer)
		versionHandler := api_router.NewVersionHandler(appContainer)

		api.POST("/identify", identityHandler.Identify)
		api.GET("/contact/:id/identity", identityHandler.GetIdentity)
		api.GET("/health", healthHandler.Check)
		api.GET("/version", versionHandler.ServerVersion)

		// 兼容旧的 /api/user 挂载点
		user := api.Group("/user")
		user.POST("/identify", identityHandler.Identify)
		user.GET("/health", healthHandler.Check)
	}

	r.Use(middleware.Cors())
	r.NoRoute(middleware.NoFound())

	return r
}
