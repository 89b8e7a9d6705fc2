package middleware

import (
	"net/http"

	"github.com/GoPolymarket/solvergate/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

// routes that never mutate settlement state even though they are POSTs
var readOnlySafe = map[string]bool{
	"/v1/orders/digest": true,
}

// ReadOnlyMiddleware freezes settlements, withdrawals and owner operations
// while enabled. Queries and the event feed stay available.
func ReadOnlyMiddleware(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled || isQuery(c.Request.Method) || readOnlySafe[c.FullPath()] {
			c.Next()
			return
		}
		abort(c, apperrors.New(apperrors.ErrReadOnly, "settlement is paused (read-only mode)", nil))
	}
}

func isQuery(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
