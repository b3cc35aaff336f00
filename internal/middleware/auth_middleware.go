// internal/middleware/auth_middleware.go
package middleware

import (
	"strconv"
	"strings"

	xerrors "opsdesk-service/internal/pkg/errors"
	"opsdesk-service/internal/pkg/response"
	"opsdesk-service/internal/pkg/session"

	"github.com/gin-gonic/gin"
)

const (
	ContextBusinessID = "business_id"
	ContextRole       = "role"
)

type AuthMiddleware struct {
	verifier *session.Verifier
}

func NewAuthMiddleware(verifier *session.Verifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Auth validates the session token and stores the caller's business id and
// role on the request context.
func (m *AuthMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Error(c, 401, "missing access token", xerrors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := m.verifier.Verify(c.Request.Context(), token)
		if err != nil {
			if session.IsAuthError(err) {
				response.FromError(c, "invalid session", err)
			} else {
				response.Error(c, 500, "failed to verify session", err)
			}
			c.Abort()
			return
		}

		c.Set(ContextBusinessID, claims.BusinessID)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// RequireAdmin gates plan management routes. Must run after Auth.
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextRole) != "admin" {
			response.Error(c, 403, "admin access required", xerrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireBusinessAccess checks that the :businessId path parameter belongs
// to the caller. Admins may act on any business. Must run after Auth.
func (m *AuthMiddleware) RequireBusinessAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextRole) == "admin" {
			c.Next()
			return
		}

		businessID, err := strconv.ParseInt(c.Param("businessId"), 10, 64)
		if err != nil {
			response.Error(c, 400, "invalid business ID", err)
			c.Abort()
			return
		}
		if caller, ok := GetBusinessID(c); !ok || caller != businessID {
			response.Error(c, 403, "business does not belong to caller", xerrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// extractToken reads the bearer token from the Authorization header, falling
// back to the token query parameter for websocket upgrades where browsers
// cannot set headers.
func extractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}
