package docuscan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/docuflow/capture/internal/core/domain"
)

func withCorrelation(ctx context.Context, id string) context.Context {
	return domain.WithCorrelationID(ctx, id)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(body), "application/json", out, operation)
}

func (c *Client) postBytes(ctx context.Context, path string, data []byte, operation string) error {
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(data), "application/octet-stream", nil, operation)
}

func (c *Client) getJSON(ctx context.Context, path string, out any, operation string) error {
	return c.do(ctx, http.MethodGet, path, nil, "", out, operation)
}

func (c *Client) delete(ctx context.Context, path string, operation string) error {
	return c.do(ctx, http.MethodDelete, path, nil, "", nil, operation)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any, operation string) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if correlationID := domain.CorrelationIDFromContext(ctx); correlationID != "" {
		req.Header.Set("X-Correlation-Id", correlationID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return mapTransportError(operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return mapStatusError(operation, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func readErrorBody(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return strings.TrimSpace(string(body))
}
