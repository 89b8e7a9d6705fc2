package middleware

import (
	"github.com/GoPolymarket/solvergate/internal/pkg/apperrors"
	"github.com/GoPolymarket/solvergate/internal/pkg/logger"
	"github.com/gin-gonic/gin"
)

// ErrorHandler logs the last error a request recorded and renders it as an
// AppError, unless a handler already wrote the response.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		appErr := apperrors.Wrap(c.Errors.Last().Err)

		fields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"code", string(appErr.Type),
			"status", appErr.HTTPStatus,
			"client_ip", c.ClientIP(),
		}
		if caller, ok := CallerFromContext(c); ok {
			fields = append(fields, "caller", caller.Hex())
		}
		switch {
		case appErr.HTTPStatus >= 500:
			logger.LogError(c.Request.Context(), appErr, "request failed", fields...)
		case appErr.Type == apperrors.ErrRateLimited:
			logger.Debug(appErr.Message, fields...)
		default:
			logger.Warn(appErr.Message, fields...)
		}

		if !c.Writer.Written() {
			c.JSON(appErr.HTTPStatus, appErr)
		}
	}
}

// abort records err for ErrorHandler and writes it straight away, so layers
// that capture the response body see the real status.
func abort(c *gin.Context, err *apperrors.AppError) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(err.HTTPStatus, err)
}
