package models

const (
	EventChargeSuccess        = "charge.success"
	VerificationStatusSuccess = "success"
)

// Checkout carries the parameters the browser passes to the payment widget.
type Checkout struct {
	Key      string   `json:"key"`
	Email    string   `json:"email"`
	Amount   int64    `json:"amount"`
	Currency Currency `json:"currency"`
}

// PaymentOutcome is what the widget's success callback reports.
type PaymentOutcome struct {
	Reference string `json:"reference"`
}

type VerificationData struct {
	Reference string `json:"reference"`
}

// VerificationRequest is the body posted to the verification endpoint.
type VerificationRequest struct {
	Event string           `json:"event"`
	Data  VerificationData `json:"data"`
}

// VerificationResult is the verification endpoint's answer. Amount and
// Currency are optional; when present they are checked against the charge.
type VerificationResult struct {
	Status   string   `json:"status"`
	Amount   *int64   `json:"amount,omitempty"`
	Currency Currency `json:"currency,omitempty"`
	Message  string   `json:"message,omitempty"`
}

func (r *VerificationResult) Succeeded() bool {
	return r != nil && r.Status == VerificationStatusSuccess
}
