package middleware

import (
	"net/http"
	"time"

	"github.com/haierkeys/contact-identity-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AccessLog 记录每个请求的访问日志，5xx 与带私有错误的请求记为 warn
func AccessLog(lg *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()

		url := c.Request.URL.Path
		if q := c.Request.URL.RawQuery; q != "" {
			url += "?" + q
		}
		privateErrs := c.Errors.ByType(gin.ErrorTypePrivate)

		level := zapcore.InfoLevel
		if c.Writer.Status() >= http.StatusInternalServerError || len(privateErrs) > 0 {
			level = zapcore.WarnLevel
		}
		fields := []zap.Field{
			zap.String(logger.FieldTraceID, GetTraceIDFromGin(c)),
			zap.String(logger.FieldMethod, c.Request.Method),
			zap.String("url", url),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration(logger.FieldDuration, time.Since(startTime)),
			zap.String("ip", c.ClientIP()),
			zap.String("user-agent", c.Request.UserAgent()),
		}
		if len(privateErrs) > 0 {
			fields = append(fields, zap.String(logger.FieldError, privateErrs.String()))
		}
		if ce := lg.Check(level, c.Request.URL.Path); ce != nil {
			ce.Write(fields...)
		}
	}
}
