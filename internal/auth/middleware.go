package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cleanpay/internal/orchestrator"
	"cleanpay/internal/sessions"
)

const sessionContextKey = "cleanpay_session"

// Middleware resolves the session cookie and stores the session in the context.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(s.cookieName)
		if err != nil || id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session required, reload the page"})
			return
		}
		session, err := s.Lookup(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, sessions.ErrSessionNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired, reload the page"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "load session failed"})
			return
		}
		c.Set(sessionContextKey, session)
		c.Next()
	}
}

// SessionFromContext retrieves the session resolved by the middleware.
func SessionFromContext(c *gin.Context) (*orchestrator.Session, bool) {
	val, ok := c.Get(sessionContextKey)
	if !ok {
		return nil, false
	}
	session, ok := val.(*orchestrator.Session)
	return session, ok
}
