package routers

import (
	"expvar"
	"net/http"
	"net/http/pprof"

	"github.com/haierkeys/contact-identity-service/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewPrivateRouter creates the private router: metrics, expvar and pprof in debug mode
// NewPrivateRouter 创建私有路由
func NewPrivateRouter(runMode string, logger *zap.Logger, gatherer prometheus.Gatherer) *gin.Engine {

	r := gin.New()

	if runMode == "debug" {
		r.Use(gin.Recovery())
	} else {
		r.Use(middleware.RecoveryWithLogger(logger))
	}

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	// prom监控
	r.GET("/debug/vars", gin.WrapH(expvar.Handler()))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	if runMode == "debug" {
		p := r.Group("pprof")
		{
			p.GET("/", pprofHandler(pprof.Index))
			p.GET("/cmdline", pprofHandler(pprof.Cmdline))
			p.GET("/profile", pprofHandler(pprof.Profile))
			p.POST("/symbol", pprofHandler(pprof.Symbol))
			p.GET("/symbol", pprofHandler(pprof.Symbol))
			p.GET("/trace", pprofHandler(pprof.Trace))
			for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
				p.GET("/"+name, pprofHandler(pprof.Handler(name).ServeHTTP))
			}
		}
	}

	return r
}

func pprofHandler(h http.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
