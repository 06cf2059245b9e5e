package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
)

const (
	// DefaultTraceIDHeader 默认的 Trace ID 请求头名称
	DefaultTraceIDHeader = "X-Trace-ID"
	// TraceIDKey Context 中存储 Trace ID 的键
	TraceIDKey = "trace_id"
)

type traceIDCtxKey struct{}

// TraceConfig 请求追踪配置
type TraceConfig struct {
	Enabled bool
	Header  string
}

// TraceMiddleware 创建请求追踪中间件
// 从请求头获取或生成 Trace ID，注入 gin.Context 与 request.Context，并写回响应头
func TraceMiddleware(cfg TraceConfig) gin.HandlerFunc {
	header := cfg.Header
	if header == "" {
		header = DefaultTraceIDHeader
	}
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		traceID := c.GetHeader(header)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		c.Set(TraceIDKey, traceID)
		c.Request = c.Request.WithContext(WithTraceID(c.Request.Context(), traceID))
		c.Header(header, traceID)

		c.Next()
	}
}

// Tracing starts an opentracing server span per request so SQL spans have a parent.
// Tracing 为每个请求开启 opentracing span
func Tracing(tracer opentracing.Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var opts []opentracing.StartSpanOption
		carrier := opentracing.HTTPHeadersCarrier(c.Request.Header)
		if parent, err := tracer.Extract(opentracing.HTTPHeaders, carrier); err == nil {
			opts = append(opts, ext.RPCServerOption(parent))
		}

		span := tracer.StartSpan(c.FullPath(), opts...)
		defer span.Finish()

		ext.HTTPMethod.Set(span, c.Request.Method)
		ext.HTTPUrl.Set(span, c.Request.URL.Path)
		if traceID := GetTraceIDFromGin(c); traceID != "" {
			span.SetTag("trace_id", traceID)
		}

		c.Request = c.Request.WithContext(opentracing.ContextWithSpan(c.Request.Context(), span))
		c.Next()

		ext.HTTPStatusCode.Set(span, uint16(c.Writer.Status()))
	}
}

// WithTraceID 将 Trace ID 写入 context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDCtxKey{}, traceID)
}

// GetTraceID 从 context.Context 获取 Trace ID
func GetTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(traceIDCtxKey{}).(string); ok {
		return id
	}
	return ""
}

// GetTraceIDFromGin 从 gin.Context 获取 Trace ID
func GetTraceIDFromGin(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(TraceIDKey)
}
