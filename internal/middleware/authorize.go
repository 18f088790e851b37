package middleware

import (
	"github.com/gin-gonic/gin"

	"portfolio/internal/apperr"
	"portfolio/internal/httpx"
	"portfolio/internal/models"
)

var (
	AdminOnly = []models.UserRole{models.UserRoleAdmin, models.UserRoleSuperAdmin}
	Staff     = []models.UserRole{models.UserRoleModerator, models.UserRoleAdmin, models.UserRoleSuperAdmin}
)

func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	roleSet := make(map[models.UserRole]struct{}, len(roles))
	for _, role := range roles {
		roleSet[role] = struct{}{}
	}

	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			httpx.Abort(c, apperr.Unauthenticated("missing_token", "authentication required"))
			return
		}

		if _, ok := roleSet[user.Role]; !ok {
			httpx.Abort(c, apperr.Forbidden("insufficient permissions"))
			return
		}

		c.Next()
	}
}
