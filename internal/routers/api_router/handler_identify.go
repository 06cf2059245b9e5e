package api_router

import (
	"github.com/haierkeys/contact-identity-service/internal/app"
	"github.com/haierkeys/contact-identity-service/internal/dto"
	pkgapp "github.com/haierkeys/contact-identity-service/pkg/app"
	"github.com/haierkeys/contact-identity-service/pkg/code"
	apperrors "github.com/haierkeys/contact-identity-service/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// IdentityHandler 身份识别 API 路由处理器
type IdentityHandler struct {
	*Handler
}

// NewIdentityHandler 创建 IdentityHandler 实例
func NewIdentityHandler(a *app.App) *IdentityHandler {
	return &IdentityHandler{
		Handler: NewHandler(a),
	}
}

// Identify 识别联系人身份
// @Summary 识别联系人身份
// @Description 按 email / phoneNumber 查找并合并联系人网络，必要时新建主或次联系人
// @Tags 身份
// @Accept json
// @Produce json
// @Param params body dto.IdentifyRequest true "联系方式"
// @Success 200 {object} pkgapp.Res{data=dto.IdentifyResponse} "成功"
// @Router /api/identify [post]
func (h *IdentityHandler) Identify(c *gin.Context) {
	response := pkgapp.NewResponse(c)
	params := &dto.IdentifyRequest{}

	// 空请求体按两个字段都缺失处理
	if c.Request.ContentLength != 0 {
		valid, errs := pkgapp.BindAndValid(c, params)
		if !valid {
			h.App.Logger().Error("IdentityHandler.Identify.BindAndValid err", zap.Error(errs))
			response.ToResponse(code.ErrorInvalidParams.WithDetails(errs.ErrorsToString()).WithData(errs.MapsToString()))
			return
		}
	}

	ctx := c.Request.Context()

	identity, err := h.App.IdentityService.Identify(ctx, params)
	if err != nil {
		h.logError(ctx, "IdentityHandler.Identify", err)
		apperrors.ErrorResponse(c, err)
		return
	}

	response.ToResponse(code.Success.WithData(dto.IdentifyResponse{Contact: identity}))
}

// GetIdentity 查询联系人所在网络的身份
// @Summary 查询身份
// @Description 只读查询，不会写入任何联系人
// @Tags 身份
// @Produce json
// @Param id path int64 true "联系人 ID"
// @Success 200 {object} pkgapp.Res{data=dto.IdentifyResponse} "成功"
// @Router /api/contact/{id}/identity [get]
func (h *IdentityHandler) GetIdentity(c *gin.Context) {
	response := pkgapp.NewResponse(c)
	params := &dto.ContactIdentityRequest{}

	if err := c.ShouldBindUri(params); err != nil {
		h.App.Logger().Error("IdentityHandler.GetIdentity.ShouldBindUri err", zap.Error(err))
		response.ToResponse(code.ErrorInvalidParams.WithDetails(err.Error()))
		return
	}

	ctx := c.Request.Context()

	identity, err := h.App.IdentityService.GetIdentity(ctx, params.ID)
	if err != nil {
		h.logError(ctx, "IdentityHandler.GetIdentity", err)
		apperrors.ErrorResponse(c, err)
		return
	}

	response.ToResponse(code.Success.WithData(dto.IdentifyResponse{Contact: identity}))
}
