package api_router

import (
	"time"

	"github.com/haierkeys/contact-identity-service/internal/app"
	"github.com/haierkeys/contact-identity-service/internal/dto"
	pkgapp "github.com/haierkeys/contact-identity-service/pkg/app"
	"github.com/haierkeys/contact-identity-service/pkg/code"
	"github.com/haierkeys/contact-identity-service/pkg/timex"

	"github.com/gin-gonic/gin"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	*Handler
}

// NewHealthHandler 创建健康检查处理器实例
func NewHealthHandler(a *app.App) *HealthHandler {
	return &HealthHandler{Handler: NewHandler(a)}
}

// Check 健康检查接口
// @Summary 健康检查
// @Description 检查服务健康状态，包括数据库连接
// @Tags 系统
// @Produce json
// @Success 200 {object} pkgapp.Res{data=dto.HealthResponse}
// @Router /api/health [get]
func (h *HealthHandler) Check(c *gin.Context) {
	response := dto.HealthResponse{
		Status:    "healthy",
		Service:   app.ServiceName,
		Version:   h.App.Version().Version,
		Timestamp: timex.Now(),
		Uptime:    h.App.Uptime().Truncate(time.Second).String(),
		Database:  "connected",
	}

	ctx := c.Request.Context()
	if err := h.App.IdentityService.Ping(ctx); err != nil {
		h.logError(ctx, "HealthHandler.Check", err)
		response.Status = "unhealthy"
		response.Database = "error"
		pkgapp.NewResponse(c).ToResponse(code.Failed.WithData(response))
		return
	}

	pkgapp.NewResponse(c).ToResponse(code.Success.WithData(response))
}
