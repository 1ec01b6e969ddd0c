// Package transport builds the HTTP clients used to talk to the relay and
// to the upstream chat API.
package transport

import (
	"fmt"
	"time"

	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
)

// DefaultTimeout is used when no timeout is configured. Blocking chat
// responses can take minutes.
const DefaultTimeout = 300 * time.Second

// NewHTTPClient creates a TLS client with a Chrome profile
func NewHTTPClient(timeout time.Duration) (tls_client.HttpClient, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	options := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(int(timeout.Seconds())),
		tls_client.WithClientProfile(profiles.Chrome_120),
		tls_client.WithNotFollowRedirects(),
	}

	httpClient, err := tls_client.NewHttpClient(tls_client.NewNoopLogger(), options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	return httpClient, nil
}
