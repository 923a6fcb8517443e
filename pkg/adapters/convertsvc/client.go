package convertsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chartport/chartport/internal/ports"
)

// Client talks to the markup conversion service over HTTP. It implements
// ports.ConversionService.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new conversion service client
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type extractRequest struct {
	Wikitext string `json:"wikitext"`
}

type extractResponse struct {
	Graphs []string `json:"graphs"`
}

type convertRequest struct {
	Graph string `json:"graph"`
}

type convertResponse struct {
	Converted string `json:"converted"`
	Rejected  bool   `json:"rejected"`
	Reason    string `json:"reason"`
}

// Extract returns every legacy graph block in the wikitext, in document order
func (c *Client) Extract(ctx context.Context, text string) ([]string, error) {
	var resp extractResponse
	if err := c.post(ctx, "/extract", extractRequest{Wikitext: text}, &resp); err != nil {
		return nil, err
	}
	return resp.Graphs, nil
}

// Convert translates one legacy graph block. A markup the service cannot
// express comes back as Rejected with a reason; errors mean the service
// itself was unreachable or failed.
func (c *Client) Convert(ctx context.Context, raw string) (ports.ConvertResult, error) {
	var resp convertResponse
	if err := c.post(ctx, "/convert", convertRequest{Graph: raw}, &resp); err != nil {
		return ports.ConvertResult{}, err
	}
	if resp.Rejected {
		c.logger.Debug("conversion rejected", zap.String("reason", resp.Reason))
		return ports.ConvertResult{Rejected: true, Reason: resp.Reason}, nil
	}
	return ports.ConvertResult{Converted: resp.Converted}, nil
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("converter %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("converter %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("converter %s: decode response: %w", path, err)
	}
	return nil
}
