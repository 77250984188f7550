package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"cleanpay/internal/models"
	"cleanpay/internal/service/remote"
)

const serviceName = "payment verifier"

// Verifier confirms charges with the verification endpoint.
type Verifier struct {
	baseURL string
	http    *http.Client
}

// NewVerifier builds a verifier for the endpoint rooted at baseURL. A nil
// httpClient gets one with the given timeout.
func NewVerifier(baseURL string, timeout time.Duration, httpClient *http.Client) *Verifier {
	if httpClient == nil {
		httpClient = remote.NewHTTPClient(timeout)
	}
	return &Verifier{baseURL: baseURL, http: httpClient}
}

// Verify posts a charge.success event for reference.
func (v *Verifier) Verify(ctx context.Context, reference string) (*models.VerificationResult, error) {
	payload, err := json.Marshal(models.VerificationRequest{
		Event: models.EventChargeSuccess,
		Data:  models.VerificationData{Reference: reference},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", serviceName, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/paystack/webhook/", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", serviceName, err)
	}
	remote.Prepare(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", serviceName, err)
	}
	defer resp.Body.Close()
	if err := remote.CheckStatus(serviceName, resp); err != nil {
		return nil, err
	}
	var result models.VerificationResult
	if err := remote.DecodeJSON(serviceName, resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
