package middleware

import (
	"errors"
	"net/http"

	"engage-ledger/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last error a handler attached with c.Error.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		var be errutil.BaseError
		if !errors.As(err, &be) {
			zap.L().Error("unhandled error", zap.String("path", c.FullPath()), zap.Error(err))
			c.JSON(http.StatusInternalServerError, errutil.BaseError{
				Code:    errutil.StatusInternal,
				Message: "internal error",
			}.JSON())
			return
		}

		if be.Code == errutil.StatusInternal {
			zap.L().Error("request failed", zap.String("path", c.FullPath()), zap.Error(be))
		}
		c.JSON(be.Code.HTTPStatus(), be.JSON())
	}
}
