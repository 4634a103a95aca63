// Package transport is the HTTPS request/response primitive used to talk to
// the Conjur API. It carries no business logic.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"

	"github.com/arwahdevops/conjursecrets/internal/logger"
)

// Request describes a single call to the remote service.
type Request struct {
	Hostname      string // host[:port], no scheme
	Path          string
	Method        string
	Authorization string // omitted when empty
	Body          string

	// AllowInsecureTLS skips certificate verification for this request only.
	AllowInsecureTLS bool
}

// StatusError is returned when the service answers with anything but 200.
// The response body is still returned alongside it.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("received status code '%d': %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// NetworkError wraps connection, DNS and TLS handshake failures.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Doer is the subset of *http.Client used by Transport.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Transport issues HTTPS requests. It holds one verifying and one
// non-verifying client so TLS policy stays per request.
type Transport struct {
	secure   Doer
	insecure Doer
	logger   *zap.Logger
}

// Option customises a Transport.
type Option func(*Transport)

// WithClients replaces the verifying and non-verifying clients.
func WithClients(secure, insecure Doer) Option {
	return func(t *Transport) {
		t.secure = secure
		t.insecure = insecure
	}
}

// New builds a Transport on pooled cleanhttp transports.
func New(baseLogger *zap.Logger, opts ...Option) *Transport {
	if baseLogger == nil {
		baseLogger = zap.NewNop()
	}

	insecureTransport := cleanhttp.DefaultPooledTransport()
	insecureTransport.TLSClientConfig = &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: true, //nolint:gosec // opt-in via ignoressl
	}

	t := &Transport{
		secure:   &http.Client{Transport: cleanhttp.DefaultPooledTransport()},
		insecure: &http.Client{Transport: insecureTransport},
		logger:   baseLogger.Named("transport"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Do sends req and returns the full response body. A non-200 status yields
// both the body and a *StatusError; a transport failure yields a
// *NetworkError and no body.
func (t *Transport) Do(ctx context.Context, req Request) ([]byte, error) {
	url := "https://" + req.Hostname + req.Path

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return nil, fmt.Errorf("building %s request for %s: %w", req.Method, url, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.ContentLength = int64(len(req.Body))
	if req.Authorization != "" {
		httpReq.Header.Set("Authorization", req.Authorization)
	}

	client := t.secure
	if req.AllowInsecureTLS {
		client = t.insecure
	}

	log := t.logger.With(zap.String("method", req.Method), zap.String("url", url))
	log.Debug("Sending request",
		logger.Redacted("authorization", req.Authorization),
		zap.Int("content_length", len(req.Body)),
		zap.Bool("insecure_tls", req.AllowInsecureTLS),
	)

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		log.Debug("Request failed", zap.Error(err))
		return nil, &NetworkError{Method: req.Method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Method: req.Method, URL: url, Err: fmt.Errorf("reading response body: %w", err)}
	}
	log.Debug("Received response",
		zap.Int("status_code", resp.StatusCode),
		zap.Int("body_bytes", len(respBody)),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		return respBody, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

// IsStatus reports whether err carries a *StatusError with the given code.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}
