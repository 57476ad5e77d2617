package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	apperrors "github.com/tickerdeck/tickerdeck/pkg/errors"
	"github.com/tickerdeck/tickerdeck/pkg/response"
)

// AdminTokenHeader carries the shared operational token.
const AdminTokenHeader = "X-Admin-Token"

// AdminToken guards operational endpoints with a shared token. An empty
// configured token disables the routes rather than leaving them open.
func AdminToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			response.Error(c, apperrors.ErrConfigMissing.WithMessage("admin token is not configured"))
			c.Abort()
			return
		}

		supplied := c.GetHeader(AdminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) != 1 {
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Next()
	}
}
