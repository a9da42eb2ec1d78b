// Package api is the REST client for the marketplace backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/models"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/observability"
)

const maxErrorBody = 64 << 10

// TokenSource supplies the bearer token for authenticated calls.
type TokenSource interface {
	Token() string
}

// Client calls the marketplace REST backend.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	log     *observability.APILogger
	traces  *observability.TraceLayer
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets a per-request timeout. Zero leaves requests unbounded.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// NewClient returns a Client for baseURL (e.g. "https://api.example.com/api").
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		tokens:  tokens,
		log:     observability.NewAPILogger("marketplace"),
		traces:  observability.GetTraceLayer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do issues a JSON request. route is the templated path used for metrics and
// spans; path is the concrete path. out may be nil.
func (c *Client) do(ctx context.Context, method, route, path string, body, out any) error {
	ctx = observability.EnsureCorrelationID(ctx)
	ctx, span := c.traces.TraceAPICall(ctx, method, route)
	defer span.End()
	done := observability.TrackAPICall(method, route)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, route, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, route, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	req.Header.Set("X-Correlation-ID", observability.ExtractCorrelationID(ctx))
	observability.InjectHeaders(ctx, req.Header)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		done(0)
		observability.APIErrors.WithLabelValues(route, "TRANSPORT").Inc()
		observability.RecordSpanError(span, err)
		c.log.LogError(ctx, method, path, err)
		return fmt.Errorf("%s %s: %w", method, route, err)
	}
	defer func() { _ = resp.Body.Close() }()
	done(resp.StatusCode)
	c.log.LogRequest(ctx, method, path, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(resp)
		observability.APIErrors.WithLabelValues(route, apiErr.Code).Inc()
		observability.RecordSpanError(span, apiErr)
		c.log.LogError(ctx, method, path, apiErr)
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		observability.RecordSpanError(span, err)
		return fmt.Errorf("decode %s %s: %w", method, route, err)
	}
	return nil
}

func decodeError(resp *http.Response) *models.AppError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload models.ErrorResponse
	message := ""
	if json.Unmarshal(raw, &payload) == nil {
		message = payload.Message
		if message == "" {
			message = payload.Error
		}
	}
	apiErr := models.NewAPIError(resp.StatusCode, message)
	if payload.Code != "" {
		apiErr.Code = payload.Code
	}
	return apiErr
}
