package web

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleanpay/internal/models"
	"cleanpay/internal/orchestrator"
)

func TestFormatMajor(t *testing.T) {
	assert.Equal(t, "500.00", formatMajor(50000))
	assert.Equal(t, "15.05", formatMajor(1505))
	assert.Equal(t, "0.07", formatMajor(7))
	assert.Equal(t, "-1.50", formatMajor(-150))
}

func TestIndexRenders(t *testing.T) {
	var buf bytes.Buffer
	err := Template().ExecuteTemplate(&buf, IndexTemplate, Page{
		PublicKey:  "pk_test_<x>",
		CSRFCookie: "csrf_token",
		CSRFHeader: "X-CSRF-Token",
		Prices:     []orchestrator.PriceEntry{{Currency: models.CurrencyUSD, Amount: 1500}},
		SessionID:  "s1",
	})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, `<option value="USD">USD 15.00</option>`)
	assert.Contains(t, out, `data-session="s1"`)
	assert.NotContains(t, out, "pk_test_<x>")
	assert.Contains(t, out, "inline.js")
}
