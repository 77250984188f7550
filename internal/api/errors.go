package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cleanpay/internal/orchestrator"
)

// writeError maps orchestrator errors to a status and always includes the
// session so the page can render the retryable state.
func (h *Handler) writeError(c *gin.Context, session *orchestrator.Session, err error) {
	status, kind := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("session operation failed", zap.String("session_id", session.ID()), zap.Error(err))
	}
	body := gin.H{
		"error":   err.Error(),
		"session": newSessionView(session.Snapshot()),
	}
	if kind != "" {
		body["kind"] = kind
	}
	c.JSON(status, body)
}

func classify(err error) (int, string) {
	var (
		uploadErr   *orchestrator.UploadError
		verifyErr   *orchestrator.VerificationError
		downloadErr *orchestrator.DownloadPreconditionError
	)
	switch {
	case errors.As(err, &uploadErr):
		if uploadErr.Local() {
			return http.StatusBadRequest, uploadErr.Kind.String()
		}
		return http.StatusBadGateway, uploadErr.Kind.String()
	case errors.As(err, &verifyErr):
		return http.StatusBadGateway, verifyErr.Kind.String()
	case errors.As(err, &downloadErr):
		return http.StatusForbidden, "download_precondition"
	case errors.Is(err, orchestrator.ErrUnsupportedCurrency),
		errors.Is(err, orchestrator.ErrMissingReference):
		return http.StatusBadRequest, ""
	case errors.Is(err, orchestrator.ErrUploadInFlight),
		errors.Is(err, orchestrator.ErrPaymentInFlight),
		errors.Is(err, orchestrator.ErrVerificationInFlight):
		return http.StatusConflict, "in_flight"
	case errors.Is(err, orchestrator.ErrInvalidTransition),
		errors.Is(err, orchestrator.ErrNoToken):
		return http.StatusConflict, "invalid_transition"
	}
	return http.StatusInternalServerError, ""
}
