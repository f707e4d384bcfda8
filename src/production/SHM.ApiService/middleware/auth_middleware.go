package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	api_models "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Models/api"
)

// Context keys set by Authenticate
const (
	UsernameContextKey = "username"
	TokenIDContextKey  = "token_id"
)

// TokenValidator checks an operator access token.
type TokenValidator interface {
	ValidateAccessToken(token string) (*api_models.AccessClaims, error)
}

// AuthMiddleware guards operator routes with JWT bearer tokens
type AuthMiddleware struct {
	validator TokenValidator
	enabled   bool
}

// NewAuthMiddleware creates a new auth middleware. When enabled is false
// Authenticate lets every request through.
func NewAuthMiddleware(validator TokenValidator, enabled bool) *AuthMiddleware {
	return &AuthMiddleware{validator: validator, enabled: enabled}
}

// extractBearer gets a token from the Authorization header
func extractBearer(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return header
}

// Authenticate middleware verifies the access token
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.enabled {
			c.Next()
			return
		}

		accessToken := extractBearer(c)
		if accessToken == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		claims, err := m.validator.ValidateAccessToken(accessToken)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid access token"})
			return
		}

		c.Set(UsernameContextKey, claims.Username)
		c.Set(TokenIDContextKey, claims.TokenID)
		c.Next()
	}
}
