package middleware

import (
	"net/http"
	"strings"

	"quillroom/internal/core/domain"
	"quillroom/internal/core/services"

	"github.com/gin-gonic/gin"
)

func AuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := claimsFromHeader(c, authService)
		if !ok {
			c.Abort()
			return
		}

		// Store caller identity in context
		c.Set("user_id", claims.UserID)
		c.Set("email", claims.Email)
		c.Set("name", claims.Name)
		c.Next()
	}
}

// OptionalAuthMiddleware populates the caller identity when a valid token
// is present and lets anonymous requests through untouched. Handlers that
// use it resolve the anonymous caller to the "none" role.
func OptionalAuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			if claims, err := authService.ValidateToken(parts[1]); err == nil {
				c.Set("user_id", claims.UserID)
				c.Set("email", claims.Email)
				c.Set("name", claims.Name)
			}
		}

		c.Next()
	}
}

func claimsFromHeader(c *gin.Context, authService services.AuthService) (*services.Claims, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
		return nil, false
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
		return nil, false
	}

	claims, err := authService.ValidateToken(parts[1])
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return nil, false
	}

	return claims, true
}

// UserFromContext returns the authenticated caller's id, or "" when the
// request carried no valid token.
func UserFromContext(c *gin.Context) domain.UserID {
	val, exists := c.Get("user_id")
	if !exists {
		return ""
	}
	userID, ok := val.(domain.UserID)
	if !ok {
		return ""
	}
	return userID
}
