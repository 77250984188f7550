package remote

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func response(code int, body string) *http.Response {
	return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(body))}
}

func TestCheckStatus(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		body    string
		wantErr bool
		message string
	}{
		{"ok", http.StatusOK, `{}`, false, ""},
		{"fastapi detail", http.StatusBadRequest, `{"detail":"Unsupported file type."}`, true, "Unsupported file type."},
		{"message field", http.StatusInternalServerError, `{"status":"error","message":"boom"}`, true, "boom"},
		{"plain text", http.StatusBadGateway, "upstream down\n", true, "upstream down"},
		{"empty json", http.StatusInternalServerError, `{}`, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckStatus("cleaning", response(tt.code, tt.body))
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.code, statusErr.Code)
			assert.Equal(t, tt.message, statusErr.Message)
			assert.Contains(t, statusErr.Error(), "cleaning")
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Len(t, truncate(strings.Repeat("x", 500)), maxMessageChars)
}
