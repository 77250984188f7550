package download

import (
	"errors"
	"net/url"
	"strings"
)

// Endpoint builds download links on the cleaning service. The browser follows
// the link directly; the file never passes through this process.
type Endpoint struct {
	base string
}

func NewEndpoint(base string) *Endpoint {
	return &Endpoint{base: strings.TrimRight(base, "/")}
}

// URL returns the download address for token.
func (e *Endpoint) URL(token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", errors.New("download token required")
	}
	return e.base + "/download/" + url.PathEscape(token), nil
}
