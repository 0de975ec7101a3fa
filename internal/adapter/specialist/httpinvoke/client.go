// Package httpinvoke dispatches specialist invocations over HTTP. Each
// specialist service exposes a single synchronous POST /invoke endpoint
// taking a request envelope and returning a result envelope.
package httpinvoke

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-career-assist/internal/domain"
)

// Client implements domain.Specialist against one specialist base URL.
type Client struct {
	name    domain.SpecialistName
	baseURL string
	hc      *http.Client
}

// NewClient constructs a specialist HTTP client. Requests are traced through
// otelhttp so specialist calls appear as children of the job trace.
func NewClient(name domain.SpecialistName, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		name:    name,
		baseURL: baseURL,
		hc: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Name returns the specialist identity this client dispatches to.
func (c *Client) Name() domain.SpecialistName { return c.name }

// Invoke performs one synchronous specialist call. Transport-level failures
// are wrapped in the domain error taxonomy so the dispatcher can classify
// them as transient or permanent.
func (c *Client) Invoke(ctx domain.Context, req domain.SpecialistRequest) (domain.SpecialistResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return domain.SpecialistResponse{}, fmt.Errorf("%w: marshal request: %v", domain.ErrInvalidArgument, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/invoke", bytes.NewReader(body))
	if err != nil {
		return domain.SpecialistResponse{}, fmt.Errorf("%w: build request: %v", domain.ErrInternal, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return domain.SpecialistResponse{}, fmt.Errorf("%w: %s: %v", domain.ErrUpstreamTimeout, c.name, err)
		}
		return domain.SpecialistResponse{}, fmt.Errorf("%w: %s: %v", domain.ErrTransport, c.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.SpecialistResponse{}, fmt.Errorf("%w: %s: http 429", domain.ErrUpstreamRateLimit, c.name)
	case resp.StatusCode >= 500:
		return domain.SpecialistResponse{}, fmt.Errorf("%w: %s: http %d", domain.ErrTransport, c.name, resp.StatusCode)
	case resp.StatusCode >= 400:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return domain.SpecialistResponse{}, fmt.Errorf("%w: %s: http %d: %s", domain.ErrInternal, c.name, resp.StatusCode, snippet)
	}

	var out domain.SpecialistResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.SpecialistResponse{}, fmt.Errorf("%w: %s: decode response: %v", domain.ErrTransport, c.name, err)
	}
	return out, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
