package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ledgerly/einvoice/internal/auth"
	"ledgerly/einvoice/internal/invoicing"
)

const (
	// ContextKeyUserID holds the key for user ID in Gin context.
	ContextKeyUserID = "userID"
	// ContextKeyBookID holds the active accounting book from the token.
	ContextKeyBookID = "bookID"
	// ContextKeyIsAdmin holds the key for admin status in Gin context.
	ContextKeyIsAdmin = "isAdmin"
)

// AuthMiddleware creates a Gin middleware for JWT authentication.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
			return
		}

		claims, err := auth.ValidateJWT(parts[1], jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": fmt.Sprintf("Invalid or expired token: %v", err)})
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyBookID, claims.BookID)
		c.Set(ContextKeyIsAdmin, claims.IsAdmin)
		c.Next()
	}
}

// RequireBook rejects requests whose token selects no accounting book.
// Assumes AuthMiddleware runs first.
func RequireBook() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := BookFromContext(c).Require(); err != nil {
			c.AbortWithStatusJSON(http.StatusPreconditionFailed, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

// AdminMiddleware creates a Gin middleware to check for admin privileges.
// Assumes AuthMiddleware runs first.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ContextKeyIsAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Administrator privileges required"})
			return
		}
		c.Next()
	}
}

// BookFromContext returns the book selected by the caller's token.
func BookFromContext(c *gin.Context) invoicing.BookContext {
	return invoicing.BookContext{BookID: c.GetString(ContextKeyBookID)}
}

// UserIDFromContext returns the authenticated user's ID, or "".
func UserIDFromContext(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}
