package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/GoPolymarket/solvergate/internal/model"
	"github.com/GoPolymarket/solvergate/internal/pkg/apperrors"
	"github.com/GoPolymarket/solvergate/internal/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	svc *service.AuditService
}

func NewAuditHandler(svc *service.AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// List serves GET /v1/admin/audit?caller=&digest=&limit=&from=&to=
func (h *AuditHandler) List(c *gin.Context) {
	q, err := auditQuery(c)
	if err != nil {
		fail(c, apperrors.NewInvalidRequest(err.Error()))
		return
	}
	records, err := h.svc.List(c.Request.Context(), q)
	if err != nil {
		fail(c, apperrors.New(apperrors.ErrInternal, "list audit log", err))
		return
	}
	c.JSON(http.StatusOK, records)
}

// auditQuery normalizes addresses and hashes to the form the middleware stores.
func auditQuery(c *gin.Context) (model.AuditQuery, error) {
	var q model.AuditQuery
	if raw := c.Query("caller"); raw != "" {
		if !common.IsHexAddress(raw) {
			return q, fmt.Errorf("invalid caller address")
		}
		q.Caller = common.HexToAddress(raw).Hex()
	}
	if raw := c.Query("digest"); raw != "" {
		b, err := hexutil.Decode(raw)
		if err != nil || len(b) != common.HashLength {
			return q, fmt.Errorf("invalid digest")
		}
		q.Digest = common.BytesToHash(b).Hex()
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return q, fmt.Errorf("invalid limit")
		}
		q.Limit = n
	}
	for name, dst := range map[string]**time.Time{"from": &q.From, "to": &q.To} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		t, err := parseTime(raw)
		if err != nil {
			return q, fmt.Errorf("invalid %s: %v", name, err)
		}
		*dst = &t
	}
	return q, nil
}

// parseTime accepts RFC3339 or unix seconds.
func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("want RFC3339 or unix seconds")
}
