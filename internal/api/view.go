package api

import (
	"time"

	"cleanpay/internal/models"
	"cleanpay/internal/orchestrator"
)

// sessionView is what the browser sees of a session. The download token stays
// on the server; the page only learns whether one exists.
type sessionView struct {
	ID          string                `json:"id"`
	State       orchestrator.State    `json:"state"`
	Email       string                `json:"email,omitempty"`
	Currency    models.Currency       `json:"currency"`
	Amount      int64                 `json:"amount,omitempty"`
	HasToken    bool                  `json:"has_token"`
	Reference   string                `json:"reference,omitempty"`
	Preview     *orchestrator.Preview `json:"preview,omitempty"`
	LastError   string                `json:"last_error,omitempty"`
	DownloadURL string                `json:"download_url,omitempty"`
	Actions     []string              `json:"actions"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

func newSessionView(snap orchestrator.Snapshot) sessionView {
	v := sessionView{
		ID:        snap.ID,
		State:     snap.State,
		Email:     snap.Email,
		Currency:  snap.Currency,
		Amount:    snap.Amount,
		HasToken:  snap.DownloadToken != "",
		Reference: snap.Reference,
		Preview:   snap.Preview,
		LastError: snap.LastError,
		Actions:   actions(snap),
		UpdatedAt: snap.UpdatedAt,
	}
	if snap.State.Allows(orchestrator.EventDownload) && v.HasToken {
		v.DownloadURL = downloadPath
	}
	return v
}

// actions lists the buttons the page should enable.
func actions(snap orchestrator.Snapshot) []string {
	out := make([]string, 0, 3)
	if snap.State.Allows(orchestrator.EventSubmitUpload) {
		out = append(out, "upload")
	}
	if snap.State.Allows(orchestrator.EventInitiatePayment) && snap.DownloadToken != "" {
		out = append(out, "pay")
	}
	if snap.State.Allows(orchestrator.EventDownload) && snap.DownloadToken != "" {
		out = append(out, "download")
	}
	return out
}
