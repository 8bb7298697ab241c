// Package client is a typed client for the adqueue HTTP API.
package client

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

	"github.com/dusk-indust/adqueue/internal/archive"
	"github.com/dusk-indust/adqueue/internal/gameconfig"
	"github.com/dusk-indust/adqueue/internal/httpapi"
	"github.com/dusk-indust/adqueue/internal/orchestrator"
	"github.com/dusk-indust/adqueue/internal/request"
)

// Client calls a running adqueue server.
type Client struct {
	base string
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithHTTPClient replaces the underlying *http.Client entirely.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 3 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response. It unwraps to the matching request
// sentinel so callers can use errors.Is.
type APIError struct {
	Status  int
	Message string
	Field   string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("client: HTTP %d: %s (%s)", e.Status, e.Message, e.Field)
	}
	return fmt.Sprintf("client: HTTP %d: %s", e.Status, e.Message)
}

// Unwrap maps the status back to a sentinel error.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest:
		return request.ErrValidation
	case http.StatusNotFound:
		return request.ErrNotFound
	case http.StatusConflict:
		return request.ErrInvalidTransition
	case http.StatusBadGateway:
		return request.ErrMergeService
	}
	return nil
}

// ErrNeedsConfirmation is returned by Build when the server asks for the
// critical conflicts to be confirmed.
var ErrNeedsConfirmation = errors.New("client: build needs confirmation")

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	var out httpapi.HealthResponse
	return c.do(ctx, http.MethodGet, "/health", nil, &out)
}

// Queue returns the active queue.
func (c *Client) Queue(ctx context.Context) (*httpapi.QueueResponse, error) {
	var out httpapi.QueueResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/queue", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Request returns one active request.
func (c *Client) Request(ctx context.Context, id string) (*request.ChangeRequest, error) {
	var out request.ChangeRequest
	if err := c.do(ctx, http.MethodGet, "/api/v1/requests/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateDraft adds a drafting request.
func (c *Client) CreateDraft(ctx context.Context, in orchestrator.DraftInput) (*request.ChangeRequest, error) {
	var out request.ChangeRequest
	if err := c.do(ctx, http.MethodPost, "/api/v1/drafts", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Submit submits a draft for processing.
func (c *Client) Submit(ctx context.Context, id string) (*request.Summary, error) {
	return c.summary(ctx, http.MethodPost, "/api/v1/requests/"+id+"/submit", nil)
}

// Retry re-runs a failed step.
func (c *Client) Retry(ctx context.Context, id string) (*request.Summary, error) {
	return c.summary(ctx, http.MethodPost, "/api/v1/requests/"+id+"/retry", nil)
}

// Delete removes an active request.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/requests/"+id, nil, nil)
}

// Duplicate copies a request into a new draft.
func (c *Client) Duplicate(ctx context.Context, id string) (*request.ChangeRequest, error) {
	var out request.ChangeRequest
	if err := c.do(ctx, http.MethodPost, "/api/v1/requests/"+id+"/duplicate", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Select picks a generated variation.
func (c *Client) Select(ctx context.Context, id string, index int) (*request.Summary, error) {
	return c.summary(ctx, http.MethodPost, "/api/v1/requests/"+id+"/select", httpapi.SelectRequest{Index: index})
}

// Annotate finishes annotation and starts reasoning.
func (c *Client) Annotate(ctx context.Context, id string, annotations []byte) (*request.Summary, error) {
	return c.summary(ctx, http.MethodPost, "/api/v1/requests/"+id+"/annotate",
		httpapi.AnnotateRequest{Annotations: annotations})
}

// SetQA toggles the QA label of a built request.
func (c *Client) SetQA(ctx context.Context, id string, status request.QAStatus) (*request.Summary, error) {
	return c.summary(ctx, http.MethodPut, "/api/v1/requests/"+id+"/qa", httpapi.QARequest{Status: string(status)})
}

// Preflight reports what a build would consume.
func (c *Client) Preflight(ctx context.Context) (*httpapi.PreflightResponse, error) {
	var out httpapi.PreflightResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/build/preflight", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Build triggers a build. Without confirm, critical conflicts yield
// ErrNeedsConfirmation.
func (c *Client) Build(ctx context.Context, confirm bool) (*archive.BuildRecord, error) {
	var out archive.BuildRecord
	err := c.do(ctx, http.MethodPost, "/api/v1/build", httpapi.BuildRequest{Confirm: confirm}, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict && !confirm && apiErr.Message == "" {
		return nil, ErrNeedsConfirmation
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Builds lists archived builds, newest first.
func (c *Client) Builds(ctx context.Context) ([]httpapi.BuildSummary, error) {
	var out []httpapi.BuildSummary
	if err := c.do(ctx, http.MethodGet, "/api/v1/builds", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// BuildRecord returns one archived build.
func (c *Client) BuildRecord(ctx context.Context, id string) (*archive.BuildRecord, error) {
	var out archive.BuildRecord
	if err := c.do(ctx, http.MethodGet, "/api/v1/builds/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Config returns the configuration the next build starts from.
func (c *Client) Config(ctx context.Context) (*gameconfig.Snapshot, error) {
	var out gameconfig.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/v1/config", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SuggestPrompts asks for refined image prompts.
func (c *Client) SuggestPrompts(ctx context.Context, rough string, screenshot []byte) ([]string, error) {
	var out httpapi.SuggestResponse
	body := httpapi.SuggestRequest{RoughPrompt: rough, Screenshot: screenshot}
	if err := c.do(ctx, http.MethodPost, "/api/v1/prompts/suggest", body, &out); err != nil {
		return nil, err
	}
	return out.Prompts, nil
}

func (c *Client) summary(ctx context.Context, method, path string, body any) (*request.Summary, error) {
	var out request.Summary
	if err := c.do(ctx, method, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do sends body as JSON and decodes a 2xx response into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("client: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("client: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, respBody)
	}
	if result == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}

// decodeError builds an APIError. A body without an error message (the
// build confirmation reply) leaves Message empty.
func decodeError(status int, body []byte) error {
	var e httpapi.ErrorResponse
	if err := json.Unmarshal(body, &e); err != nil {
		return &APIError{Status: status, Message: strings.TrimSpace(string(body))}
	}
	return &APIError{Status: status, Message: e.Error, Field: e.Field}
}
