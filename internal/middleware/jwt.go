package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-control-api/internal/service"
	appErrors "github.com/noah-isme/school-control-api/pkg/errors"
	"github.com/noah-isme/school-control-api/pkg/response"
)

// ContextUserKey is the gin context key storing the authenticated user.
const ContextUserKey = "currentUser"

// JWT protects routes by requiring a valid access token. The bearer token is
// resolved back to the identity store on every request, so a deleted account
// stops working as soon as its row disappears.
func JWT(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		user, err := authService.ResolveActor(c.Request.Context(), parts[1])
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, user)
		c.Next()
	}
}
