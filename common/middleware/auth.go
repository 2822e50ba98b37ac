package middleware

import (
	"net/http"
	"strings"

	"github.com/avion-commerce/storefront-backend/common/auth"
	"github.com/gin-gonic/gin"
)

const (
	SubjectContextKey = "subject"
	RoleContextKey    = "role"
)

// AdminOnly admits requests carrying a valid bearer token with role=admin.
func AdminOnly(verifier *auth.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenStr, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
			return
		}

		claims, err := verifier.ParseAndValidateToken(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": err.Error()})
			return
		}

		role, _ := claims["role"].(string)
		if role != auth.AdminRole {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "admin role required"})
			return
		}

		sub, _ := claims["sub"].(string)
		c.Set(SubjectContextKey, sub)
		c.Set(RoleContextKey, role)
		c.Next()
	}
}
