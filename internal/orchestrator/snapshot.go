package orchestrator

import (
	"time"

	"cleanpay/internal/models"
)

// maxPreviewRows caps the sample kept for display.
const maxPreviewRows = 10

// Preview summarises the last successful clean for display before payment.
type Preview struct {
	OriginalRows *int                `json:"original_rows,omitempty"`
	CleanedRows  *int                `json:"cleaned_rows,omitempty"`
	Sample       []models.PreviewRow `json:"sample,omitempty"`
}

func previewFrom(r *models.CleanResult) *Preview {
	if r == nil {
		return nil
	}
	sample := r.Sample
	if len(sample) > maxPreviewRows {
		sample = sample[:maxPreviewRows]
	}
	return &Preview{
		OriginalRows: r.OriginalRows,
		CleanedRows:  r.CleanedRows,
		Sample:       append([]models.PreviewRow(nil), sample...),
	}
}

// Snapshot is a point-in-time copy of a session without the file handle. It
// carries the download token and must not be handed to the browser as is.
type Snapshot struct {
	ID            string          `json:"id"`
	State         State           `json:"state"`
	Email         string          `json:"email,omitempty"`
	Currency      models.Currency `json:"currency"`
	DownloadToken string          `json:"download_token,omitempty"`
	Reference     string          `json:"reference,omitempty"`
	Amount        int64           `json:"amount,omitempty"`
	Preview       *Preview        `json:"preview,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Transition records one committed state change.
type Transition struct {
	SessionID     string
	Event         Event
	From          State
	To            State
	DownloadToken string
	Reference     string
	Currency      models.Currency
	Amount        int64
	Detail        string
	At            time.Time
}
