// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller identity. Authentication is handled in front
// of this service; the gateway forwards the authenticated user id in the
// X-User-ID header and Identity copies it into the Gin context where handlers,
// the rate limiter and the idempotency validator read it.
package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderUserID carries the authenticated user id.
const HeaderUserID = "X-User-ID"

// ctxKeyUserID is the Gin context key holding the caller id.
const ctxKeyUserID = "userID"

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._\-:@]{1,64}$`)

// Identity reads X-User-ID and stores it under the "userID" context key.
// Requests without a well-formed id are rejected with 401.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if uid == "" || !userIDPattern.MatchString(uid) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    "missing or invalid " + HeaderUserID,
			})
			return
		}
		c.Set(ctxKeyUserID, uid)
		c.Next()
	}
}

// UserID returns the caller id stored by Identity, or "" when absent.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
