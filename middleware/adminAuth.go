package middleware

import (
	"net/http"

	"tripnotify/utils"

	"github.com/gin-gonic/gin"
)

// JWTAuthAdminMiddleware accepts only bearer tokens carrying the admin role.
func JWTAuthAdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := bearerClaims(c)
		if !ok {
			return
		}
		if claims.Role != utils.RoleAdmin {
			utils.JSONError(c, http.StatusForbidden, "Unauthorized admin access", "admin role required")
			return
		}
		c.Set("adminID", claims.Subject)
		c.Set("isAdmin", true)
		c.Next()
	}
}
