package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition indicates the action is not allowed in the current state.
	ErrInvalidTransition = errors.New("action not allowed in current state")

	// ErrUploadInFlight indicates a clean request is already outstanding.
	ErrUploadInFlight = errors.New("an upload is already being cleaned")

	// ErrPaymentInFlight indicates the payment widget is already open.
	ErrPaymentInFlight = errors.New("a payment is already in progress")

	// ErrVerificationInFlight indicates a verification request is already outstanding.
	ErrVerificationInFlight = errors.New("payment verification already in progress")

	// ErrNoToken indicates there is no cleaned file to pay for.
	ErrNoToken = errors.New("no cleaned file to pay for")

	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrMissingReference    = errors.New("payment reference is required")
)

// TransitionError reports an event the transition table rejects.
type TransitionError struct {
	State State
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s not allowed while %s", e.Event, e.State)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

type UploadErrorKind int

const (
	UploadNoFile UploadErrorKind = iota + 1
	UploadNoEmail
	UploadUnsupportedType
	UploadTransport
	UploadHTTPStatus
	UploadRejected
)

func (k UploadErrorKind) String() string {
	switch k {
	case UploadNoFile:
		return "no_file"
	case UploadNoEmail:
		return "no_email"
	case UploadUnsupportedType:
		return "unsupported_type"
	case UploadTransport:
		return "transport"
	case UploadHTTPStatus:
		return "http_status"
	case UploadRejected:
		return "rejected"
	}
	return "unknown"
}

// UploadError covers local validation before a clean and failures of the
// clean request itself.
type UploadError struct {
	Kind    UploadErrorKind
	Message string
	Err     error
}

func (e *UploadError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *UploadError) Unwrap() error { return e.Err }

// Local reports whether the error came from input validation rather than the
// cleaning service. Local errors never change state.
func (e *UploadError) Local() bool {
	switch e.Kind {
	case UploadNoFile, UploadNoEmail, UploadUnsupportedType:
		return true
	}
	return false
}

type VerificationErrorKind int

const (
	VerificationTransport VerificationErrorKind = iota + 1
	VerificationHTTPStatus
	VerificationRejected
	VerificationAmountMismatch
)

func (k VerificationErrorKind) String() string {
	switch k {
	case VerificationTransport:
		return "transport"
	case VerificationHTTPStatus:
		return "http_status"
	case VerificationRejected:
		return "rejected"
	case VerificationAmountMismatch:
		return "amount_mismatch"
	}
	return "unknown"
}

// VerificationError reports why a payment could not be confirmed.
type VerificationError struct {
	Kind    VerificationErrorKind
	Message string
	Err     error
}

func (e *VerificationError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *VerificationError) Unwrap() error { return e.Err }

// DownloadPreconditionError reports a download attempted without a verified payment.
type DownloadPreconditionError struct {
	State State
}

func (e *DownloadPreconditionError) Error() string {
	return fmt.Sprintf("download requires a verified payment (state %s)", e.State)
}
