package middleware

import (
	"net/http"
	"strings"

	"tripnotify/utils"

	"github.com/gin-gonic/gin"
)

// JWTAuthUserMiddleware authenticates a traveller. The token subject becomes
// the "userID" context value that user endpoints scope their queries by.
func JWTAuthUserMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := bearerClaims(c)
		if !ok {
			return
		}
		if claims.Role != utils.RoleUser && claims.Role != utils.RoleAdmin {
			utils.JSONError(c, http.StatusForbidden, "Insufficient authorization", "unknown role")
			return
		}
		c.Set("userID", claims.Subject)
		c.Next()
	}
}

// bearerClaims validates the Authorization header. On failure it aborts the
// request and reports false.
func bearerClaims(c *gin.Context) (utils.TokenClaims, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
		utils.JSONError(c, http.StatusUnauthorized, "Insufficient authorization", "missing or invalid Authorization header")
		return utils.TokenClaims{}, false
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	claims, err := utils.ExtractClaims(tokenString)
	if err != nil || claims.Subject == "" {
		utils.JSONError(c, http.StatusUnauthorized, "Insufficient authorization", "invalid or expired token")
		return utils.TokenClaims{}, false
	}
	return claims, true
}
