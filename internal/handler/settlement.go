package handler

import (
	"net/http"

	"github.com/GoPolymarket/solvergate/internal/middleware"
	"github.com/GoPolymarket/solvergate/internal/model"
	"github.com/GoPolymarket/solvergate/internal/pkg/apperrors"
	"github.com/GoPolymarket/solvergate/internal/service"
	"github.com/gin-gonic/gin"
)

type SettlementHandler struct {
	svc *service.SettlementService
}

func NewSettlementHandler(svc *service.SettlementService) *SettlementHandler {
	return &SettlementHandler{svc: svc}
}

func (h *SettlementHandler) SubmitOrder(c *gin.Context) {
	var req model.SubmitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.NewInvalidRequest(err.Error()))
		return
	}
	middleware.AddAuditContext(c, "signer", req.Order.Signer)
	middleware.AddAuditContext(c, "sequence", req.Order.Sequence)

	receipt, err := h.svc.SubmitOrder(c.Request.Context(), req)
	if err != nil {
		middleware.AddAuditContext(c, "error", err.Error())
		fail(c, err)
		return
	}
	middleware.AddAuditContext(c, "digest", receipt.Digest)
	middleware.AddAuditContext(c, "receipt_id", receipt.ID)
	c.JSON(http.StatusCreated, receipt)
}

func (h *SettlementHandler) Digest(c *gin.Context) {
	var req model.OrderPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.NewInvalidRequest(err.Error()))
		return
	}
	resp, err := h.svc.Digest(req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SettlementHandler) GetSettled(c *gin.Context) {
	resp, err := h.svc.IsSettled(c.Param("digest"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SettlementHandler) Withdraw(c *gin.Context) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		fail(c, apperrors.NewAuthFailed("missing caller context"))
		return
	}
	resp, err := h.svc.Withdraw(c.Request.Context(), caller)
	if err != nil {
		middleware.AddAuditContext(c, "error", err.Error())
		fail(c, err)
		return
	}
	middleware.AddAuditContext(c, "amount", resp.Amount)
	c.JSON(http.StatusOK, resp)
}

func (h *SettlementHandler) GetBalance(c *gin.Context) {
	resp, err := h.svc.Balance(c.Param("identity"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SettlementHandler) GetSequence(c *gin.Context) {
	resp, err := h.svc.Sequence(c.Param("identity"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SettlementHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.State())
}
