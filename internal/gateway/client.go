// Package gateway is the HTTP façade over the interview backend: session
// management, answer submission, clip transcription, and speech synthesis.
//
// The backend contract follows the HR-agent server API: /interview/start,
// /interview/{id}, /interview/submit, /interview/{id}/results, /transcribe,
// /synthesize, and /health. All calls honour a per-request timeout; the
// transcription upload gets a longer allowance because the speech model may
// run for a while on long answers.
package gateway

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	// defaultTimeout bounds generic API calls.
	defaultTimeout = 15 * time.Second

	// defaultTranscribeTimeout bounds the transcription upload, which waits
	// for the speech model to finish.
	defaultTranscribeTimeout = 2 * time.Minute
)

// APIError is a non-success HTTP response from the backend.
type APIError struct {
	Status int
	Body   string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("gateway: backend returned %d: %s", e.Status, e.Body)
}

// Client talks to one interview backend.
// It is safe for concurrent use.
type Client struct {
	baseURL           string
	httpClient        *http.Client
	transcribeTimeout time.Duration
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout for generic API calls.
// Defaults to 15 s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithTranscribeTimeout sets the timeout for transcription uploads.
// Defaults to 2 min.
func WithTranscribeTimeout(d time.Duration) Option {
	return func(c *Client) { c.transcribeTimeout = d }
}

// WithHTTPClient replaces the underlying HTTP client. Mainly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// New creates a Client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:           strings.TrimRight(baseURL, "/"),
		httpClient:        &http.Client{Timeout: defaultTimeout},
		transcribeTimeout: defaultTranscribeTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// url joins the base URL with a path.
func (c *Client) url(path string) string { return c.baseURL + path }
