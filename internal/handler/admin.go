package handler

import (
	"net/http"

	"github.com/GoPolymarket/solvergate/internal/middleware"
	"github.com/GoPolymarket/solvergate/internal/model"
	"github.com/GoPolymarket/solvergate/internal/pkg/apperrors"
	"github.com/GoPolymarket/solvergate/internal/service"
	"github.com/gin-gonic/gin"
)

// AdminHandler serves owner operations. The admin key gates the route; the
// engine still checks that the signed caller is the owner.
type AdminHandler struct {
	svc *service.SettlementService
}

func NewAdminHandler(svc *service.SettlementService) *AdminHandler {
	return &AdminHandler{svc: svc}
}

func (h *AdminHandler) Rescue(c *gin.Context) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		fail(c, apperrors.NewAuthFailed("missing caller context"))
		return
	}
	var req model.RescueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.NewInvalidRequest(err.Error()))
		return
	}
	resp, err := h.svc.Rescue(c.Request.Context(), caller, req)
	if err != nil {
		middleware.AddAuditContext(c, "error", err.Error())
		fail(c, err)
		return
	}
	middleware.AddAuditContext(c, "action", "rescue")
	middleware.AddAuditContext(c, "reference", resp.Reference)
	c.JSON(http.StatusOK, resp)
}

func (h *AdminHandler) ConfigureHook(c *gin.Context) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		fail(c, apperrors.NewAuthFailed("missing caller context"))
		return
	}
	var req model.ConfigureHookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.NewInvalidRequest(err.Error()))
		return
	}
	resp, err := h.svc.ConfigureHook(c.Request.Context(), caller, req)
	if err != nil {
		fail(c, err)
		return
	}
	middleware.AddAuditContext(c, "action", "configure_hook")
	middleware.AddAuditContext(c, "hook", resp.Hook)
	c.JSON(http.StatusOK, resp)
}
