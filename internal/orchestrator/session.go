package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"cleanpay/internal/logging"
	"cleanpay/internal/models"
	"cleanpay/internal/service/remote"
)

var allowedExtensions = map[string]bool{
	".csv":  true,
	".json": true,
	".txt":  true,
}

// Session is one upload, pay and download cycle, created per page load.
// Operations are safe for concurrent use; remote calls run without the lock
// while the session sits in an awaiting state that rejects every user event.
type Session struct {
	mu   sync.Mutex
	deps Deps
	log  *zap.Logger

	id        string
	state     State
	file      *models.Upload
	email     string
	currency  models.Currency
	token     string
	reference string
	amount    int64
	preview   *Preview
	lastErr   string
	createdAt time.Time
	updatedAt time.Time
}

// New starts an Idle session.
func New(id string, deps Deps) (*Session, error) {
	if err := checkDeps(id, &deps); err != nil {
		return nil, err
	}
	now := deps.Now()
	return &Session{
		deps:      deps,
		log:       deps.Logger.With(zap.String("session_id", id)),
		id:        id,
		state:     StateIdle,
		currency:  models.CurrencyKES,
		createdAt: now,
		updatedAt: now,
	}, nil
}

const (
	errUploadInterrupted = "the upload was interrupted, please upload the file again"
	errVerifyInterrupted = "payment verification was interrupted, please retry the payment"
)

// Restore rebuilds a session from a snapshot. A snapshot taken while a clean or
// verification request was outstanding comes back in the matching failed state.
func Restore(snap Snapshot, deps Deps) (*Session, error) {
	if err := checkDeps(snap.ID, &deps); err != nil {
		return nil, err
	}
	if !snap.State.Valid() {
		return nil, fmt.Errorf("restore session %s: unknown state %q", snap.ID, snap.State)
	}
	currency := snap.Currency
	if currency == "" {
		currency = models.CurrencyKES
	}
	log := deps.Logger.With(zap.String("session_id", snap.ID))
	state, lastErr := snap.State, snap.LastError
	switch snap.State {
	case StateUploading:
		state, lastErr = StateUploadFailed, errUploadInterrupted
	case StateVerifying:
		state, lastErr = StatePaymentFailed, errVerifyInterrupted
	}
	if state != snap.State {
		log.Warn("restored session was waiting on a remote call",
			zap.String("saved_state", string(snap.State)), zap.String("state", string(state)))
	}
	return &Session{
		deps:      deps,
		log:       log,
		id:        snap.ID,
		state:     state,
		email:     snap.Email,
		currency:  currency,
		token:     snap.DownloadToken,
		reference: snap.Reference,
		amount:    snap.Amount,
		preview:   snap.Preview,
		lastErr:   lastErr,
		createdAt: snap.CreatedAt,
		updatedAt: snap.UpdatedAt,
	}, nil
}

func checkDeps(id string, deps *Deps) error {
	switch {
	case strings.TrimSpace(id) == "":
		return errors.New("session id required")
	case deps.Cleaner == nil:
		return errors.New("cleaner required")
	case deps.Gateway == nil:
		return errors.New("payment gateway required")
	case deps.Verifier == nil:
		return errors.New("verifier required")
	case deps.Downloader == nil:
		return errors.New("downloader required")
	}
	if deps.Pricing.amounts == nil && deps.Pricing.flat <= 0 {
		deps.Pricing = DefaultPricing()
	}
	if deps.Policy == "" {
		deps.Policy = RetainToken
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	deps.Logger = logging.OrNop(deps.Logger)
	return nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot copies the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ID:            s.id,
		State:         s.state,
		Email:         s.email,
		Currency:      s.currency,
		DownloadToken: s.token,
		Reference:     s.reference,
		Amount:        s.amount,
		Preview:       s.preview,
		LastError:     s.lastErr,
		CreatedAt:     s.createdAt,
		UpdatedAt:     s.updatedAt,
	}
}

// SelectFile holds file until the next SubmitUpload.
func (s *Session) SelectFile(file models.Upload) error {
	if err := checkExtension(file.Name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUploading {
		return ErrUploadInFlight
	}
	s.file = &file
	return nil
}

// EnterEmail records the address used for the checkout.
func (s *Session) EnterEmail(email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Awaiting() {
		return &TransitionError{State: s.state, Event: "enter_email"}
	}
	s.email = strings.TrimSpace(email)
	return nil
}

// SelectCurrency records the checkout currency.
func (s *Session) SelectCurrency(currency models.Currency) error {
	if _, err := s.deps.Pricing.Amount(currency); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Awaiting() {
		return &TransitionError{State: s.state, Event: "select_currency"}
	}
	s.currency = currency
	return nil
}

// SubmitUpload sends the selected file, or file when given, to the cleaning
// service. At most one clean request is outstanding per session.
func (s *Session) SubmitUpload(ctx context.Context, file *models.Upload) (*models.CleanResult, error) {
	if file != nil {
		if err := checkExtension(file.Name); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	if s.state == StateUploading {
		s.mu.Unlock()
		return nil, ErrUploadInFlight
	}
	if file == nil && s.file == nil {
		s.mu.Unlock()
		return nil, &UploadError{Kind: UploadNoFile, Message: "please select a file to upload"}
	}
	// A rejected submit leaves the earlier selection untouched.
	if !s.state.Allows(EventSubmitUpload) {
		state := s.state
		s.mu.Unlock()
		return nil, &TransitionError{State: state, Event: EventSubmitUpload}
	}
	if file == nil {
		file = s.file
	}
	selected := *file
	s.file = nil
	s.lastErr = ""
	s.transitionLocked(ctx, EventSubmitUpload, selected.Name)
	s.mu.Unlock()

	callCtx, cancel := s.callContext(ctx)
	result, err := s.deps.Cleaner.Clean(callCtx, selected)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if uerr := classifyClean(result, err); uerr != nil {
		if s.deps.Policy == ClearToken {
			s.token = ""
			s.preview = nil
		}
		s.reference = ""
		s.lastErr = uerr.Error()
		s.transitionLocked(ctx, EventCleanFailed, uerr.Kind.String())
		s.log.Warn("clean failed", zap.String("kind", uerr.Kind.String()), zap.Error(uerr))
		return result, uerr
	}

	s.token = result.DownloadToken
	s.reference = ""
	s.amount = 0
	s.preview = previewFrom(result)
	s.transitionLocked(ctx, EventCleanSucceeded, "")
	return result, nil
}

func classifyClean(result *models.CleanResult, err error) *UploadError {
	if err != nil {
		var statusErr *remote.StatusError
		if errors.As(err, &statusErr) {
			msg := statusErr.Message
			if msg == "" {
				msg = fmt.Sprintf("cleaning service returned HTTP %d", statusErr.Code)
			}
			return &UploadError{Kind: UploadHTTPStatus, Message: msg, Err: err}
		}
		return &UploadError{Kind: UploadTransport, Message: "could not reach the cleaning service", Err: err}
	}
	if !result.Succeeded() {
		msg := "the cleaning service could not process this file"
		if result != nil && result.Message != "" {
			msg = result.Message
		}
		return &UploadError{Kind: UploadRejected, Message: msg}
	}
	return nil
}

func checkExtension(name string) error {
	if strings.TrimSpace(name) == "" {
		return &UploadError{Kind: UploadNoFile, Message: "please select a file to upload"}
	}
	if !allowedExtensions[strings.ToLower(filepath.Ext(name))] {
		return &UploadError{Kind: UploadUnsupportedType, Message: "unsupported file type, please upload CSV, JSON, or TXT"}
	}
	return nil
}

// InitiatePayment opens a checkout for the current token. An empty email or
// currency falls back to the value entered earlier.
func (s *Session) InitiatePayment(ctx context.Context, email string, currency models.Currency) (*models.Checkout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StatePaymentInFlight {
		return nil, ErrPaymentInFlight
	}
	if email = strings.TrimSpace(email); email == "" {
		email = s.email
	}
	if email == "" {
		return nil, &UploadError{Kind: UploadNoEmail, Message: "please enter your email address"}
	}
	if currency == "" {
		currency = s.currency
	}
	if s.token == "" {
		return nil, ErrNoToken
	}
	if !s.state.Allows(EventInitiatePayment) {
		return nil, &TransitionError{State: s.state, Event: EventInitiatePayment}
	}
	amount, err := s.deps.Pricing.Amount(currency)
	if err != nil {
		return nil, err
	}
	checkout, err := s.deps.Gateway.Checkout(ctx, email, amount, currency)
	if err != nil {
		return nil, fmt.Errorf("prepare checkout: %w", err)
	}

	s.email = email
	s.currency = currency
	s.amount = amount
	s.reference = ""
	s.lastErr = ""
	s.transitionLocked(ctx, EventInitiatePayment, "")
	return checkout, nil
}

// ClosePayment handles the widget closing without a completed charge. A close
// that arrives after the success callback is ignored.
func (s *Session) ClosePayment(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StatePaymentInFlight:
		s.transitionLocked(ctx, EventPaymentClosed, "")
		return nil
	case StateVerifying, StateVerified, StatePaymentFailed, StateDownloaded:
		return nil
	}
	return &TransitionError{State: s.state, Event: EventPaymentClosed}
}

// OnPaymentCallback records the gateway's reference and confirms it with the
// verification endpoint. Exactly one verification request is issued per
// callback; the token survives a failed verification so payment can be retried.
func (s *Session) OnPaymentCallback(ctx context.Context, outcome models.PaymentOutcome) (*models.VerificationResult, error) {
	reference := strings.TrimSpace(outcome.Reference)

	s.mu.Lock()
	if s.state == StateVerifying {
		s.mu.Unlock()
		return nil, ErrVerificationInFlight
	}
	if reference == "" {
		s.mu.Unlock()
		return nil, ErrMissingReference
	}
	if !s.state.Allows(EventPaymentCallback) {
		state := s.state
		s.mu.Unlock()
		return nil, &TransitionError{State: state, Event: EventPaymentCallback}
	}
	s.reference = reference
	s.transitionLocked(ctx, EventPaymentCallback, "")
	amount, currency := s.amount, s.currency
	s.mu.Unlock()

	callCtx, cancel := s.callContext(ctx)
	result, err := s.deps.Verifier.Verify(callCtx, reference)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if verr := classifyVerification(result, err, amount, currency); verr != nil {
		s.lastErr = verr.Error()
		s.transitionLocked(ctx, EventVerificationFailed, verr.Kind.String())
		s.log.Warn("payment verification failed",
			zap.String("reference", reference),
			zap.String("kind", verr.Kind.String()),
			zap.Error(verr))
		return result, verr
	}
	s.lastErr = ""
	s.transitionLocked(ctx, EventVerificationSucceeded, "")
	return result, nil
}

func classifyVerification(result *models.VerificationResult, err error, amount int64, currency models.Currency) *VerificationError {
	if err != nil {
		var statusErr *remote.StatusError
		if errors.As(err, &statusErr) {
			return &VerificationError{Kind: VerificationHTTPStatus, Message: "payment verification failed, please try again", Err: err}
		}
		return &VerificationError{Kind: VerificationTransport, Message: "could not reach the payment verifier, please try again", Err: err}
	}
	if !result.Succeeded() {
		msg := "payment verification failed"
		if result != nil && result.Message != "" {
			msg = result.Message
		}
		return &VerificationError{Kind: VerificationRejected, Message: msg}
	}
	if result.Amount != nil && *result.Amount != amount {
		return &VerificationError{
			Kind:    VerificationAmountMismatch,
			Message: fmt.Sprintf("paid amount %d does not match the expected %d", *result.Amount, amount),
		}
	}
	if result.Currency != "" && result.Currency != currency {
		return &VerificationError{
			Kind:    VerificationAmountMismatch,
			Message: fmt.Sprintf("paid currency %s does not match the expected %s", result.Currency, currency),
		}
	}
	return nil
}

// Download returns the gated download location for the verified token.
// Repeating it after the first download yields the same location.
func (s *Session) Download(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Allows(EventDownload) || s.token == "" {
		return "", &DownloadPreconditionError{State: s.state}
	}
	location, err := s.deps.Downloader.URL(s.token)
	if err != nil {
		return "", fmt.Errorf("resolve download: %w", err)
	}
	if s.state != StateDownloaded {
		s.transitionLocked(ctx, EventDownload, "")
	}
	return location, nil
}

func (s *Session) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.deps.Timeout > 0 {
		return context.WithTimeout(ctx, s.deps.Timeout)
	}
	return context.WithCancel(ctx)
}

// transitionLocked applies event to the current state. Callers have checked
// the table; an event it does not allow here is a programming error.
func (s *Session) transitionLocked(ctx context.Context, event Event, detail string) {
	from := s.state
	to, ok := next(from, event)
	if !ok {
		panic(fmt.Sprintf("orchestrator: %s not allowed while %s", event, from))
	}
	now := s.deps.Now()
	s.state = to
	s.updatedAt = now

	s.log.Debug("transition",
		zap.String("event", string(event)),
		zap.String("from", string(from)),
		zap.String("to", string(to)))

	if len(s.deps.Observers) == 0 {
		return
	}
	t := Transition{
		SessionID:     s.id,
		Event:         event,
		From:          from,
		To:            to,
		DownloadToken: s.token,
		Reference:     s.reference,
		Currency:      s.currency,
		Amount:        s.amount,
		Detail:        detail,
		At:            now,
	}
	snap := s.snapshotLocked()
	for _, o := range s.deps.Observers {
		o.Observe(ctx, t, snap)
	}
}
