package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPricingCommand(t *testing.T) {
	path := writeTestConfig(t, `{"services": {"cleaning_url": "http://clean"}, "payment": {"public_key": "pk"}}`)
	out, err := run(t, "pricing", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "KES")
	assert.Contains(t, out, "50000")
	assert.Contains(t, out, "500.00")
	assert.Contains(t, out, "15.00")
}

func TestPricingCommandFlat(t *testing.T) {
	path := writeTestConfig(t, `{"services": {"cleaning_url": "http://clean"}, "payment": {"public_key": "pk", "flat_amount": 2500}}`)
	out, err := run(t, "pricing", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "USD")
	assert.Contains(t, out, "25.00")
	assert.NotContains(t, out, "50000")
}

func TestConfigCheck(t *testing.T) {
	path := writeTestConfig(t, `{"services": {"cleaning_url": "http://clean/"}, "payment": {"public_key": "pk"}}`)
	out, err := run(t, "config", "check", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "config ok")
	assert.Contains(t, out, "http://clean\n")

	bad := writeTestConfig(t, `{"payment": {"public_key": "pk"}}`)
	t.Setenv("CLEANPAY_CLEANING_URL", "")
	_, err = run(t, "config", "check", "--config", bad)
	assert.Error(t, err)
}
