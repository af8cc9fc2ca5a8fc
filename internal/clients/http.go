package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/orderpay/internal/domain/errors"
	"github.com/cassiomorais/orderpay/pkg/retry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config configures an HTTP peer client.
type Config struct {
	BaseURL string
	// Timeout bounds every single attempt.
	Timeout time.Duration
	Retry   retry.Config
	// Transport overrides the instrumented default transport.
	Transport http.RoundTripper
}

// StatusError is a non-2xx response from a peer service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

type httpClient struct {
	service string
	baseURL string
	timeout time.Duration
	retry   retry.Config
	http    *http.Client
	logger  zerolog.Logger
}

func newHTTPClient(service string, cfg Config, logger zerolog.Logger) *httpClient {
	transport := cfg.Transport
	if transport == nil {
		transport = otelhttp.NewTransport(http.DefaultTransport)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	c := &httpClient{
		service: service,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: timeout,
		retry:   cfg.Retry,
		http:    &http.Client{Transport: transport},
		logger:  logger.With().Str("peer", service).Logger(),
	}
	c.retry.Retryable = isRetryable
	c.retry.OnRetry = func(n uint, err error) {
		c.logger.Warn().Err(err).Uint("attempt", n+1).Msg("retrying peer call")
	}
	return c
}

// do sends a JSON request, retrying transient failures. A 404 is returned as notFound when set.
func (c *httpClient) do(ctx context.Context, op, method, path string, body, out any, notFound error) error {
	err := retry.Do(ctx, c.retry, func() error {
		return c.once(ctx, method, path, body, out)
	})
	if err == nil {
		return nil
	}

	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound && notFound != nil {
		return domainErrors.NewDependencyError(c.service, op, notFound)
	}
	return domainErrors.NewDependencyError(c.service, op, fmt.Errorf("%w: %v", domainErrors.ErrDependencyUnavailable, err))
}

func (c *httpClient) once(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// isRetryable retries transport failures, timeouts and 5xx/429 responses.
func isRetryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
