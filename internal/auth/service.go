package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cleanpay/internal/orchestrator"
	"cleanpay/internal/sessions"
)

// Service ties browser cookies to orchestrator sessions.
type Service struct {
	store          sessions.Store
	ttl            time.Duration
	cookieName     string
	csrfCookieName string
	csrfHeaderName string
}

// NewService constructs an auth service; ttl bounds the cookie lifetime.
func NewService(store sessions.Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{
		store:          store,
		ttl:            ttl,
		cookieName:     "cleanpay_session",
		csrfCookieName: "csrf_token",
		csrfHeaderName: "X-CSRF-Token",
	}
}

// Begin creates a fresh session for a page load and sets its cookies. The
// previous session of the browser, if any, is dropped.
func (s *Service) Begin(c *gin.Context) (*orchestrator.Session, string, error) {
	ctx := c.Request.Context()
	if old, err := c.Cookie(s.cookieName); err == nil && old != "" {
		_ = s.store.Delete(ctx, old)
	}
	session, err := s.store.Create(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("create session: %w", err)
	}
	csrfToken, err := s.NewCSRFToken()
	if err != nil {
		_ = s.store.Delete(ctx, session.ID())
		return nil, "", err
	}
	s.setCookies(c, session.ID(), csrfToken)
	return session, csrfToken, nil
}

// Lookup resolves a session id from a cookie.
func (s *Service) Lookup(ctx context.Context, id string) (*orchestrator.Session, error) {
	if id == "" {
		return nil, errors.New("session required")
	}
	return s.store.Get(ctx, id)
}

// NewCSRFToken returns a random token used for CSRF protection.
func (s *Service) NewCSRFToken() (string, error) {
	return generateToken()
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (s *Service) setCookies(c *gin.Context, sessionID, csrfToken string) {
	ttl := int(s.ttl.Seconds())
	secure := gin.Mode() == gin.ReleaseMode
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     s.cookieName,
		Value:    sessionID,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     s.csrfCookieName,
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

// SessionCookieName returns the cookie carrying the session id.
func (s *Service) SessionCookieName() string {
	return s.cookieName
}

// CSRFCookieName returns the cookie used for CSRF tokens.
func (s *Service) CSRFCookieName() string {
	return s.csrfCookieName
}

// CSRFHeaderName returns the CSRF header name.
func (s *Service) CSRFHeaderName() string {
	return s.csrfHeaderName
}
