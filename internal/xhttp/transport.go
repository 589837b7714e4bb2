package xhttp

import (
	"fmt"
	"net/http"

	"github.com/garrettladley/payhook/internal/version"
)

const UserAgent = "User-Agent"

type payhookTransport struct {
	base http.RoundTripper
}

var _ http.RoundTripper = (*payhookTransport)(nil)

func (t *payhookTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set(UserAgent, version.UserAgent())
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform round trip: %w", err)
	}
	return resp, nil
}

// NewTransport returns an http.RoundTripper that stamps the service user agent.
func NewTransport() http.RoundTripper {
	return &payhookTransport{base: http.DefaultTransport}
}
