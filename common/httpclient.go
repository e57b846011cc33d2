package common

import (
	"net/http"
	"time"
)

// DefaultTimeout bounds every call made through an HttpClient built by
// NewHttpClient, including refresh calls.
const DefaultTimeout = 10 * time.Second

// HttpClient is the transport the API client sends through.
// This allows mocking or custom transport layers in testing.
type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
	CloseIdleConnections()
}

// userAgentRoundTripper is a custom RoundTripper that adds a User-Agent header.
type userAgentRoundTripper struct {
	Wrapped   http.RoundTripper
	UserAgent string
}

func (rt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone request to avoid mutating the original
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", rt.UserAgent)
	return rt.Wrapped.RoundTrip(clone)
}

// Implementation of HttpClient that wraps a standard *http.Client.
type httpClient struct {
	client *http.Client
}

// NewHttpClient returns a new HttpClient with a custom User-Agent and a
// bounded timeout. A zero timeout falls back to DefaultTimeout: the Remote
// API gives no deadline of its own, so none of our calls may hang forever.
func NewHttpClient(userAgent string, base *http.Client, timeout time.Duration) HttpClient {
	if base == nil {
		base = &http.Client{}
	}
	if base.Transport == nil {
		base.Transport = http.DefaultTransport
	}
	if userAgent != "" {
		base.Transport = &userAgentRoundTripper{
			Wrapped:   base.Transport,
			UserAgent: userAgent,
		}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base.Timeout = timeout

	return &httpClient{client: base}
}

func (h *httpClient) Do(req *http.Request) (*http.Response, error) {
	return h.client.Do(req)
}

func (h *httpClient) CloseIdleConnections() {
	h.client.CloseIdleConnections()
}
