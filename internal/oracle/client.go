// Package oracle implements the reasoning oracle client and the
// deterministic fallback used when the oracle is unreachable or returns
// an unparseable verdict.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Client posts the structured evidence summary to an external reasoning
// endpoint and parses the structured verdict out of its reply. The call
// is bounded by the configured timeout and retried at most once, on
// transport failure only; a reply that fails to parse is never retried.
type Client struct {
	endpoint string
	model    string
	backoff  time.Duration
	http     *http.Client
	logger   *slog.Logger
}

// NewClient creates a reasoning oracle client from config.
func NewClient(cfg domain.OracleConfig, logger *slog.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("oracle endpoint is required")
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	backoff := time.Duration(cfg.RetryBackoffMs) * time.Millisecond
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		backoff:  backoff,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
	}, nil
}

// Decide implements domain.ReasoningOracle.
func (c *Client) Decide(ctx context.Context, req *domain.OracleRequest) (*domain.OracleResponse, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal oracle request: %w", err)
	}

	raw, err := c.post(ctx, body)
	if err != nil {
		// One retry with backoff, transport failures only.
		c.logger.Warn("oracle call failed, retrying once", "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.backoff):
		}
		raw, err = c.post(ctx, body)
		if err != nil {
			return nil, fmt.Errorf("oracle call: %w", err)
		}
	}

	resp, err := ParseVerdict(raw)
	if err != nil {
		return nil, fmt.Errorf("parse oracle verdict: %w", err)
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oracle returned status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}
