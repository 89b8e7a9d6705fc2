package handler

import (
	"net/http"
	"time"

	"github.com/GoPolymarket/solvergate/internal/middleware"
	"github.com/GoPolymarket/solvergate/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// RouterDeps carries everything the HTTP surface needs. Nil optional fields
// disable the matching route or middleware.
type RouterDeps struct {
	Settlement  *service.SettlementService
	Audit       *service.AuditService
	Idempotency middleware.IdempotencyStore
	Limiters    *middleware.Limiters
	Events      gin.HandlerFunc

	AdminKey    string
	MaxSkew     time.Duration
	ReadOnly    bool
	MetricsPath string
	Now         func() time.Time
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// Global Middleware
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())
	if d.Audit != nil {
		r.Use(middleware.AuditMiddleware(d.Audit, "/health", d.MetricsPath))
	}

	// Health Check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "solvergate"})
	})

	// Metrics Endpoint
	if d.MetricsPath != "" {
		r.GET(d.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	settle := NewSettlementHandler(d.Settlement)
	admin := NewAdminHandler(d.Settlement)
	callerAuth := middleware.CallerAuthMiddleware(d.MaxSkew, d.Now)
	idem := middleware.IdempotencyMiddleware(d.Idempotency)

	v1 := r.Group("/v1")
	v1.Use(middleware.ReadOnlyMiddleware(d.ReadOnly))
	v1.Use(middleware.RateLimitMiddleware(d.Limiters))
	{
		v1.POST("/orders/digest", settle.Digest)
		v1.GET("/orders/:digest", settle.GetSettled)
		v1.GET("/balances/:identity", settle.GetBalance)
		v1.GET("/sequences/:identity", settle.GetSequence)
		v1.GET("/state", settle.GetState)
		if d.Events != nil {
			v1.GET("/events/ws", d.Events)
		}
	}

	signed := v1.Group("", callerAuth, idem)
	{
		signed.POST("/orders", settle.SubmitOrder)
		signed.POST("/withdrawals", settle.Withdraw)
	}

	adminGroup := v1.Group("/admin", middleware.AdminMiddleware(d.AdminKey))
	{
		if d.Audit != nil {
			adminGroup.GET("/audit", NewAuditHandler(d.Audit).List)
		}
		owner := adminGroup.Group("", callerAuth, idem)
		owner.POST("/rescue", admin.Rescue)
		owner.PUT("/hook", admin.ConfigureHook)
	}

	return r
}

// WithCORS wraps h with rs/cors for the configured origins.
func WithCORS(h http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		return h
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{
			"Content-Type",
			middleware.HeaderCallerAddress,
			middleware.HeaderCallerTimestamp,
			middleware.HeaderCallerSignature,
			middleware.HeaderIdempotencyKey,
			middleware.HeaderAdminKey,
		},
		ExposedHeaders: []string{"X-Request-ID", "X-Idempotent-Replay"},
	}).Handler(h)
}
