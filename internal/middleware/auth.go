package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"peermarket/pkg/utils"
)

const (
	// AuthorizationHeader authorization header name
	AuthorizationHeader = "Authorization"
	// BearerPrefix bearer token prefix
	BearerPrefix = "Bearer "
	// OperatorKey operator username key in the request context
	OperatorKey = "operator"
	// RoleKey operator role key in the request context
	RoleKey = "role"
)

// OperatorInfo authenticated operator identity
type OperatorInfo struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// TokenValidator validates a bearer token
type TokenValidator func(token string) (*OperatorInfo, error)

// Auth operator authentication middleware
func Auth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthorizationHeader)
		if authHeader == "" {
			utils.Error(c, utils.CodeUnauthorized, "Missing authorization header")
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, BearerPrefix) {
			utils.Error(c, utils.CodeUnauthorized, "Invalid authorization header format")
			c.Abort()
			return
		}

		token := strings.TrimPrefix(authHeader, BearerPrefix)
		if token == "" {
			utils.Error(c, utils.CodeUnauthorized, "Missing token")
			c.Abort()
			return
		}

		info, err := validator(token)
		if err != nil {
			utils.Error(c, utils.CodeUnauthorized, "Invalid token")
			c.Abort()
			return
		}

		c.Set(OperatorKey, info.Username)
		c.Set(RoleKey, info.Role)

		c.Next()
	}
}

// GetOperator returns the authenticated operator from the context
func GetOperator(c *gin.Context) (string, bool) {
	operator, exists := c.Get(OperatorKey)
	if !exists {
		return "", false
	}
	name, ok := operator.(string)
	return name, ok
}
