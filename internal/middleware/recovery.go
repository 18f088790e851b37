package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"portfolio/internal/httpx"
)

func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				httpx.Fail(c, log, fmt.Errorf("panic: %v", r))
			}
		}()
		c.Next()
	}
}
