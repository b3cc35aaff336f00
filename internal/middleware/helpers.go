// internal/middleware/helpers.go
package middleware

import "github.com/gin-gonic/gin"

// GetBusinessID gets the authenticated business ID from context
func GetBusinessID(c *gin.Context) (int64, bool) {
	v, exists := c.Get(ContextBusinessID)
	if !exists {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// IsAdmin checks if the caller carries the admin role
func IsAdmin(c *gin.Context) bool {
	return c.GetString(ContextRole) == "admin"
}
