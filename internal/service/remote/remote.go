package remote

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	userAgent       = "cleanpay/0.1"
	maxErrorBody    = 4 << 10
	maxMessageChars = 200
)

// StatusError reports a non-2xx answer from a remote collaborator.
type StatusError struct {
	Service string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Service, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: HTTP %d", e.Service, e.Code)
}

// NewHTTPClient returns a client with the given overall request timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// Prepare sets the headers every outbound request carries.
func Prepare(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
}

// CheckStatus turns a non-2xx response into a *StatusError, pulling a
// message from a JSON body ("message", "detail" or "error") or the raw text.
func CheckStatus(service string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Service: service, Code: resp.StatusCode, Message: extractMessage(body)}
}

func extractMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Detail  any    `json:"detail"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Message != "":
			return truncate(payload.Message)
		case payload.Error != "":
			return truncate(payload.Error)
		}
		if detail, ok := payload.Detail.(string); ok && detail != "" {
			return truncate(detail)
		}
		return ""
	}
	return truncate(strings.TrimSpace(string(body)))
}

func truncate(s string) string {
	if len(s) > maxMessageChars {
		return s[:maxMessageChars]
	}
	return s
}

// DecodeJSON decodes the response body into v.
func DecodeJSON(service string, resp *http.Response, v any) error {
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%s: decode response: %w", service, err)
	}
	return nil
}
