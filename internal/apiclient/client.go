package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fpconsole/internal/apperr"
	"fpconsole/internal/metrics"
)

// TokenSource hands out bearer tokens for the signed-in operator.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client calls the attendance backend REST API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Tokens  TokenSource
}

// New creates a client with configurable timeout.
func New(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Tokens:  tokens,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Request performs one authenticated JSON call. body may be nil; out may be
// nil when the response is not needed. There are no retries.
func (c *Client) Request(ctx context.Context, method, path string, body, out any) error {
	return c.do(ctx, path, method, path, body, out)
}

func (c *Client) do(ctx context.Context, route, method, path string, body, out any) error {
	token, err := c.Tokens.Token(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		metrics.ObserveAPI(method, route, 0, started)
		return &apperr.NetworkError{Err: err}
	}
	defer resp.Body.Close()
	metrics.ObserveAPI(method, route, resp.StatusCode, started)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return &apperr.APIError{Status: resp.StatusCode, Detail: errorDetail(bodyBytes)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// errorDetail extracts the message from a backend error body. The backend
// answers {"detail": ...}; "error" and "message" are accepted as well.
func errorDetail(body []byte) string {
	var shaped struct {
		Detail  any    `json:"detail"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &shaped); err == nil {
		switch d := shaped.Detail.(type) {
		case string:
			if d != "" {
				return d
			}
		case nil:
		default:
			if raw, err := json.Marshal(d); err == nil {
				return string(raw)
			}
		}
		if shaped.Error != "" {
			return shaped.Error
		}
		if shaped.Message != "" {
			return shaped.Message
		}
	}
	return strings.TrimSpace(string(body))
}
