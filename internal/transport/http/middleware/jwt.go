package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"medtrak/internal/pkg/jwtutil"
	"medtrak/internal/transport/http/response"
)

const (
	ContextUserIDKey   = "user_id"
	ContextUsernameKey = "username"
	ContextRoleKey     = "role"
)

func AuthJWT(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.Abort()
			return
		}

		claims, err := jwtutil.ParseToken(secret, token)
		if err != nil {
			response.Error(c, 401, response.CodeUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextUsernameKey, claims.Username)
		c.Set(ContextRoleKey, claims.Role)
		c.Next()
	}
}

// RequireRole must run after AuthJWT.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextRoleKey) != role {
			response.Error(c, 403, response.CodeForbidden, "this endpoint requires the "+role+" role")
			c.Abort()
			return
		}
		c.Next()
	}
}

// bearerToken also accepts an access_token query parameter, since browser
// EventSource clients cannot set headers.
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if authHeader == "" {
		if token := strings.TrimSpace(c.Query("access_token")); token != "" {
			return token, true
		}
		response.Error(c, 401, response.CodeUnauthorized, "missing authorization header")
		return "", false
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		response.Error(c, 401, response.CodeUnauthorized, "invalid authorization scheme")
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, prefix)), true
}
