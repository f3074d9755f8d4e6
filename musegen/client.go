// Package musegen implements the music generation pipeline: typed job
// handlers for the plan, audio, vocals, mix, and video stages, a client
// for the external engine bridges that do the actual model inference,
// and the prompt suggestion vocabulary.
package musegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/musewave/maestro"
)

// Engine names. Circuit breakers track failures per engine, so each
// name maps to one upstream bridge process.
const (
	EngineLLM       = "llm"
	EngineRiffusion = "riffusion"
	EngineCoqui     = "coqui"
	EngineFFmpeg    = "ffmpeg"
)

// Client talks to the engine bridge service: a sidecar exposing the
// Python model bridges (riffusion, coqui, the LLM providers, ffmpeg)
// over HTTP. JSON in; JSON or raw media out.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithClientLogger sets the logger. Defaults to slog.Default.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a bridge client. Model inference is slow, so the
// default HTTP timeout is generous; per-job deadlines are enforced by
// the worker's timeout middleware via ctx.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Minute},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// postJSON sends in as JSON and decodes the JSON response into out.
func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	resp, err := c.post(ctx, path, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// postMedia sends in as JSON and returns the raw media body. The caller
// owns the ReadCloser.
func (c *Client) postMedia(ctx context.Context, path string, in any) (io.ReadCloser, error) {
	resp, err := c.post(ctx, path, in)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) post(ctx context.Context, path string, in any) (*http.Response, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, maestro.Permanent(fmt.Errorf("encode %s request: %w", path, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, maestro.Permanent(fmt.Errorf("build %s request: %w", path, err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Network failures are transient: the bridge may be restarting.
		return nil, fmt.Errorf("bridge %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("bridge %s: status %d: %s", path, resp.StatusCode, bytes.TrimSpace(msg))
		if rejectsRequest(resp.StatusCode) {
			// The bridge understood the request and refused it; retrying
			// the same params cannot succeed.
			return nil, maestro.Permanent(err)
		}
		return nil, err
	}
	return resp, nil
}

// rejectsRequest reports whether a status code means the request itself
// is bad. Timeouts and throttling are transient even though they are
// 4xx.
func rejectsRequest(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return false
	}
	return code >= 400 && code < 500
}
