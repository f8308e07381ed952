package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/TheLazyLemur/benpdf/internal/core"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	_ core.Backend       = (*Backend)(nil)
	_ core.HealthChecker = (*Backend)(nil)
)

const requestIDHeader = "X-Request-ID"

// Backend implements core.Backend over HTTP using resty.
type Backend struct {
	client  *resty.Client
	baseURL string
}

// NewBackend creates a backend client for baseURL. Retries stay disabled and no
// client-side timeout is set; the caller's context bounds each request.
func NewBackend(baseURL string) *Backend {
	baseURL = strings.TrimRight(baseURL, "/")
	client := resty.New().
		SetBaseURL(baseURL).
		SetRetryCount(0).
		SetHeader("Accept", "application/json, */*")
	return &Backend{client: client, baseURL: baseURL}
}

// NewBackendWithClient wraps an existing http.Client, e.g. one from httptest.
func NewBackendWithClient(baseURL string, hc *http.Client) *Backend {
	b := NewBackend(baseURL)
	b.client = resty.NewWithClient(hc).
		SetBaseURL(b.baseURL).
		SetRetryCount(0).
		SetHeader("Accept", "application/json, */*")
	return b
}

// BaseURL returns the backend root URL.
func (b *Backend) BaseURL() string {
	return b.baseURL
}

// Post sends one request and returns the response without judging its status.
func (b *Backend) Post(ctx context.Context, endpoint string, payload core.Payload) (*core.RawResponse, error) {
	reqID := uuid.NewString()
	req := b.client.R().
		SetContext(ctx).
		SetHeader(requestIDHeader, reqID)

	if payload.JSON != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(payload.JSON)
	} else {
		for _, f := range payload.Files {
			req.SetFileReader(f.Field, f.Filename, bytes.NewReader(f.Content))
		}
		req.SetMultipartFormData(payload.Form)
	}

	slog.Debug("backend request", "id", reqID, "endpoint", endpoint, "files", len(payload.Files), "json", payload.JSON != nil)
	resp, err := req.Post(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "POST %s", endpoint)
	}
	slog.Debug("backend response", "id", reqID, "endpoint", endpoint, "status", resp.StatusCode(), "bytes", len(resp.Body()))

	return &core.RawResponse{
		StatusCode: resp.StatusCode(),
		Status:     resp.Status(),
		Header:     resp.Header(),
		Body:       resp.Body(),
	}, nil
}

// Health reads the boolean capability flags from /healthz.
func (b *Backend) Health(ctx context.Context) (core.Features, error) {
	resp, err := b.client.R().
		SetContext(ctx).
		SetHeader(requestIDHeader, uuid.NewString()).
		Get("/healthz")
	if err != nil {
		return nil, errors.Wrap(err, "GET /healthz")
	}
	if resp.IsError() {
		return nil, errors.Errorf("healthz returned %s", resp.Status())
	}

	var raw map[string]any
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, errors.Wrap(err, "decoding healthz")
	}

	features := core.Features{}
	for k, v := range raw {
		if flag, ok := v.(bool); ok {
			features[k] = flag
		}
	}
	return features, nil
}
