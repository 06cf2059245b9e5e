package middleware

import (
	"context"
	"time"

	"github.com/haierkeys/contact-identity-service/pkg/app"
	"github.com/haierkeys/contact-identity-service/pkg/code"

	"github.com/gin-gonic/gin"
)

// 写入 gin.Context 的键
const (
	CtxKeyAppName    = "app_name"
	CtxKeyAppVersion = "app_version"
	CtxKeyAccessHost = "access_host"
)

// HeaderAppVersion 响应中携带的服务版本
const HeaderAppVersion = "X-App-Version"

// AppInfo 记录应用名称、版本与访问地址，并在响应头中返回版本
func AppInfo(name, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(CtxKeyAppName, name)
		c.Set(CtxKeyAppVersion, version)
		c.Set(CtxKeyAccessHost, app.GetAccessHost(c))
		c.Header(HeaderAppVersion, version)

		c.Next()
	}
}

// NoFound 未注册的路由返回 ErrorNotFoundAPI，details 中带上请求的方法与路径
func NoFound() gin.HandlerFunc {
	return func(c *gin.Context) {
		app.NewResponse(c).ToResponse(code.ErrorNotFoundAPI.WithDetails(c.Request.Method + " " + c.Request.URL.Path))
		c.Abort()
	}
}

// ContextTimeout 为请求上下文设置超时，写队列与数据库调用都会感知
// timeout <= 0 不限制
func ContextTimeout(timeout time.Duration) gin.HandlerFunc {
	if timeout <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
