package handler

import (
	"github.com/GoPolymarket/solvergate/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

// fail records err for ErrorHandler and writes the response immediately so
// the idempotency layer captures the real status and body.
func fail(c *gin.Context, err error) {
	appErr := apperrors.Wrap(err)
	_ = c.Error(appErr)
	c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
}
