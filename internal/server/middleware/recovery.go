package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/omnigw/internal/observability"
)

// PanicHandler writes the response after a recovered panic.
type PanicHandler func(c *gin.Context, err any)

// Recovery returns a middleware that recovers from panics. handle may be
// nil, in which case a bare 500 is written.
func Recovery(logger observability.Logger, handle PanicHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered",
					observability.Any("error", err),
					observability.String("method", c.Request.Method),
					observability.String("path", c.Request.URL.Path),
					observability.String("client_ip", c.ClientIP()),
					observability.String("request_id", GetRequestID(c)),
					observability.String("stack", string(debug.Stack())),
				)

				if handle != nil {
					handle(c, err)
				}
				if !c.IsAborted() {
					c.AbortWithStatus(http.StatusInternalServerError)
				}
			}
		}()

		c.Next()
	}
}
