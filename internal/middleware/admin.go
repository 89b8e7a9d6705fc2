package middleware

import (
	"crypto/subtle"

	"github.com/GoPolymarket/solvergate/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

const HeaderAdminKey = "X-Admin-Key"

// AdminMiddleware gates operator routes on a shared key. It does not identify
// the owner; owner operations also go through CallerAuthMiddleware.
func AdminMiddleware(adminKey string) gin.HandlerFunc {
	key := []byte(adminKey)
	return func(c *gin.Context) {
		if len(key) == 0 {
			abort(c, apperrors.New(apperrors.ErrUnauthorized, "admin routes are disabled", nil))
			return
		}
		if subtle.ConstantTimeCompare([]byte(c.GetHeader(HeaderAdminKey)), key) != 1 {
			abort(c, apperrors.NewAuthFailed("invalid admin key"))
			return
		}
		c.Next()
	}
}
