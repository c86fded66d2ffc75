package observability

import (
	"net/http"
	"net/url"
	"time"

	sentryhttpclient "github.com/getsentry/sentry-go/httpclient"
)

// NewHTTPClient returns a client whose requests are recorded as Sentry spans.
// Trace headers are only sent to the order backend's host.
func NewHTTPClient(timeout time.Duration, backendURL string) *http.Client {
	client := &http.Client{
		Transport: sentryhttpclient.NewSentryRoundTripper(
			http.DefaultTransport,
			sentryhttpclient.WithTracePropagationTargets(propagationTargets(backendURL)),
		),
	}
	if timeout > 0 {
		client.Timeout = timeout
	}
	return client
}

func propagationTargets(backendURL string) []string {
	parsed, err := url.Parse(backendURL)
	if err != nil || parsed.Hostname() == "" {
		return nil
	}
	return []string{parsed.Hostname()}
}
