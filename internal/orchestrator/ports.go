package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"cleanpay/internal/models"
)

// Cleaner submits a file to the cleaning service.
type Cleaner interface {
	Clean(ctx context.Context, file models.Upload) (*models.CleanResult, error)
}

// Gateway prepares the checkout widget for a charge.
type Gateway interface {
	Checkout(ctx context.Context, email string, amount int64, currency models.Currency) (*models.Checkout, error)
}

// Verifier confirms a completed charge by its reference.
type Verifier interface {
	Verify(ctx context.Context, reference string) (*models.VerificationResult, error)
}

// Downloader resolves the gated download location of a token.
type Downloader interface {
	URL(token string) (string, error)
}

// Observer receives every committed transition together with the session
// state right after it. Observers run under the session lock, in order, and
// must not call back into the session.
type Observer interface {
	Observe(ctx context.Context, t Transition, snap Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, t Transition, snap Snapshot)

func (f ObserverFunc) Observe(ctx context.Context, t Transition, snap Snapshot) { f(ctx, t, snap) }

// TokenPolicy decides what a failed upload does to a token the session
// already held.
type TokenPolicy string

const (
	RetainToken TokenPolicy = "retain"
	ClearToken  TokenPolicy = "clear"
)

// Deps are the collaborators and settings shared by sessions.
type Deps struct {
	Cleaner    Cleaner
	Gateway    Gateway
	Verifier   Verifier
	Downloader Downloader
	Pricing    Pricing
	Policy     TokenPolicy
	// Timeout bounds each remote call; zero leaves it to the caller's context.
	Timeout   time.Duration
	Observers []Observer
	Logger    *zap.Logger
	Now       func() time.Time
}

// WithObserver returns a copy of d with o appended.
func (d Deps) WithObserver(o Observer) Deps {
	observers := make([]Observer, 0, len(d.Observers)+1)
	observers = append(observers, d.Observers...)
	d.Observers = append(observers, o)
	return d
}
