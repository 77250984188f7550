package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cleanpay/internal/auth"
	"cleanpay/internal/logging"
	"cleanpay/internal/models"
	"cleanpay/internal/orchestrator"
	"cleanpay/internal/web"
)

const downloadPath = "/api/session/download"

// HistoryReader lists the recorded transitions of a session.
type HistoryReader interface {
	History(ctx context.Context, sessionID string) ([]models.SessionEvent, error)
}

// Pinger checks that a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configure a Handler. History, Upstream and SessionStore are optional.
type Options struct {
	PublicKey      string
	Pricing        orchestrator.Pricing
	MaxUploadBytes int64
	History        HistoryReader
	Upstream       Pinger
	SessionStore   Pinger
	Logger         *zap.Logger
}

// Handler wires HTTP routes to the per-browser orchestrator sessions.
type Handler struct {
	auth         *auth.Service
	publicKey    string
	pricing      orchestrator.Pricing
	maxUpload    int64
	history      HistoryReader
	upstream     Pinger
	sessionStore Pinger
	logger       *zap.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(authService *auth.Service, opts Options) *Handler {
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &Handler{
		auth:         authService,
		publicKey:    opts.PublicKey,
		pricing:      opts.Pricing,
		maxUpload:    maxUpload,
		history:      opts.History,
		upstream:     opts.Upstream,
		sessionStore: opts.SessionStore,
		logger:       logging.OrNop(opts.Logger),
	}
}

// RegisterRoutes attaches the page, health and session routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.SetHTMLTemplate(web.Template())
	router.GET("/", h.index)
	router.GET("/health", h.health)

	api := router.Group("/api/session")
	api.Use(h.auth.Middleware(), h.auth.CSRFMiddleware())
	api.GET("", h.getSession)
	api.PUT("/details", h.updateDetails)
	api.POST("/upload", h.upload)
	api.POST("/payment", h.initiatePayment)
	api.POST("/payment/callback", h.paymentCallback)
	api.POST("/payment/close", h.closePayment)
	api.GET("/download", h.download)
	api.GET("/history", h.getHistory)
}

func (h *Handler) index(c *gin.Context) {
	session, _, err := h.auth.Begin(c)
	if err != nil {
		h.logger.Error("begin session", zap.Error(err))
		c.String(http.StatusInternalServerError, "could not start a session, please reload")
		return
	}
	c.HTML(http.StatusOK, web.IndexTemplate, web.Page{
		PublicKey:  h.publicKey,
		CSRFCookie: h.auth.CSRFCookieName(),
		CSRFHeader: h.auth.CSRFHeaderName(),
		Prices:     h.pricing.Entries(),
		SessionID:  session.ID(),
	})
}

func (h *Handler) health(c *gin.Context) {
	ctx := c.Request.Context()
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	check := func(name string, p Pinger) {
		if p == nil {
			return
		}
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
			body[name] = "unreachable"
			status = http.StatusServiceUnavailable
			return
		}
		body[name] = "ok"
	}
	check("cleaning_service", h.upstream)
	check("session_store", h.sessionStore)
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	c.JSON(status, body)
}

func (h *Handler) currentSession(c *gin.Context) (*orchestrator.Session, bool) {
	session, ok := auth.SessionFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session required, reload the page"})
		return nil, false
	}
	return session, true
}

func (h *Handler) getSession(c *gin.Context) {
	session, ok := h.currentSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": newSessionView(session.Snapshot())})
}

type detailsRequest struct {
	Email    *string `json:"email"`
	Currency *string `json:"currency"`
}

func (h *Handler) updateDetails(c *gin.Context) {
	session, ok := h.currentSession(c)
	if !ok {
		return
	}
	var req detailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Email != nil {
		if err := session.EnterEmail(*req.Email); err != nil {
			h.writeError(c, session, err)
			return
		}
	}
	if req.Currency != nil {
		if err := selectCurrency(session, *req.Currency); err != nil {
			h.writeError(c, session, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"session": newSessionView(session.Snapshot())})
}

func (h *Handler) upload(c *gin.Context) {
	session, ok := h.currentSession(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+1<<20)
	if err := c.Request.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	if session.State() == orchestrator.StateUploading {
		h.writeError(c, session, orchestrator.ErrUploadInFlight)
		return
	}
	if email := c.PostForm("email"); email != "" {
		if err := session.EnterEmail(email); err != nil {
			h.writeError(c, session, err)
			return
		}
	}
	if currency := c.PostForm("currency"); currency != "" {
		if err := selectCurrency(session, currency); err != nil {
			h.writeError(c, session, err)
			return
		}
	}

	var selected *models.Upload
	header, err := c.FormFile("file")
	switch {
	case err == nil:
		if header.Size > h.maxUpload {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		f, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "open file failed"})
			return
		}
		defer f.Close()
		selected = &models.Upload{
			Name:        filepath.Base(header.Filename),
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        f,
		}
	case errors.Is(err, http.ErrMissingFile):
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}

	if _, err := session.SubmitUpload(c.Request.Context(), selected); err != nil {
		h.writeError(c, session, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": newSessionView(session.Snapshot())})
}

type paymentRequest struct {
	Email    string `json:"email"`
	Currency string `json:"currency"`
}

func (h *Handler) initiatePayment(c *gin.Context) {
	session, ok := h.currentSession(c)
	if !ok {
		return
	}
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	var currency models.Currency
	if strings.TrimSpace(req.Currency) != "" {
		parsed, err := models.ParseCurrency(req.Currency)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		currency = parsed
	}
	checkout, err := session.InitiatePayment(c.Request.Context(), req.Email, currency)
	if err != nil {
		h.writeError(c, session, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"checkout": checkout,
		"session":  newSessionView(session.Snapshot()),
	})
}

func (h *Handler) paymentCallback(c *gin.Context) {
	session, ok := h.currentSession(c)
	if !ok {
		return
	}
	var outcome models.PaymentOutcome
	if err := c.ShouldBindJSON(&outcome); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if _, err := session.OnPaymentCallback(c.Request.Context(), outcome); err != nil {
		h.writeError(c, session, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": newSessionView(session.Snapshot())})
}

func (h *Handler) closePayment(c *gin.Context) {
	session, ok := h.currentSession(c)
	if !ok {
		return
	}
	if err := session.ClosePayment(c.Request.Context()); err != nil {
		h.writeError(c, session, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": newSessionView(session.Snapshot())})
}

func (h *Handler) download(c *gin.Context) {
	session, ok := h.currentSession(c)
	if !ok {
		return
	}
	location, err := session.Download(c.Request.Context())
	if err != nil {
		h.writeError(c, session, err)
		return
	}
	c.Redirect(http.StatusFound, location)
}

func (h *Handler) getHistory(c *gin.Context) {
	session, ok := h.currentSession(c)
	if !ok {
		return
	}
	if h.history == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history is not enabled"})
		return
	}
	events, err := h.history.History(c.Request.Context(), session.ID())
	if err != nil {
		h.logger.Error("load session history", zap.String("session_id", session.ID()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load history failed"})
		return
	}
	if events == nil {
		events = make([]models.SessionEvent, 0)
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func selectCurrency(session *orchestrator.Session, raw string) error {
	currency, err := models.ParseCurrency(raw)
	if err != nil {
		return fmt.Errorf("%w: %q", orchestrator.ErrUnsupportedCurrency, raw)
	}
	return session.SelectCurrency(currency)
}
