package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"cleanpay/internal/logging"
	"cleanpay/internal/models"
	"cleanpay/internal/orchestrator"
)

// Ledger appends every session transition to the session_events table. It
// is an audit trail; sessions never read their state back from it.
type Ledger struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewLedger(db *sql.DB, logger *zap.Logger) (*Ledger, error) {
	if db == nil {
		return nil, errors.New("ledger database required")
	}
	return &Ledger{db: db, logger: logging.OrNop(logger)}, nil
}

// Observe records t. Failures are logged and never block the session.
func (l *Ledger) Observe(ctx context.Context, t orchestrator.Transition, _ orchestrator.Snapshot) {
	if err := l.Record(context.WithoutCancel(ctx), t); err != nil {
		l.logger.Error("record session event",
			zap.String("session_id", t.SessionID),
			zap.String("event", string(t.Event)),
			zap.Error(err))
	}
}

// Record inserts one transition.
func (l *Ledger) Record(ctx context.Context, t orchestrator.Transition) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO session_events (session_id, event, from_state, to_state, download_token, reference, currency, amount, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.SessionID,
		string(t.Event),
		string(t.From),
		string(t.To),
		t.DownloadToken,
		t.Reference,
		string(t.Currency),
		t.Amount,
		t.Detail,
		t.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert session event: %w", err)
	}
	return nil
}

// History returns the events of one session in the order they happened.
func (l *Ledger) History(ctx context.Context, sessionID string) ([]models.SessionEvent, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, session_id, event, from_state, to_state, download_token, reference, currency, amount, detail, created_at
		FROM session_events WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list session events: %w", err)
	}
	defer rows.Close()

	var events []models.SessionEvent
	for rows.Next() {
		var e models.SessionEvent
		var currency string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Event, &e.FromState, &e.ToState,
			&e.DownloadToken, &e.Reference, &currency, &e.Amount, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session event: %w", err)
		}
		e.Currency = models.Currency(currency)
		events = append(events, e)
	}
	return events, rows.Err()
}
