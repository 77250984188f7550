package sessions

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"cleanpay/internal/orchestrator"
)

// ErrSessionNotFound indicates the id is unknown or has expired.
var ErrSessionNotFound = errors.New("session not found")

// Store owns the live orchestrator sessions of this process.
type Store interface {
	Create(ctx context.Context) (*orchestrator.Session, error)
	Get(ctx context.Context, id string) (*orchestrator.Session, error)
	Delete(ctx context.Context, id string) error
}

func newID() string {
	return uuid.NewString()
}
