// Package pricefeed fetches token prices from the RPC node's price endpoint.
package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/pascal/internal/domain"
)

// maxBody caps how much of a price response is read.
const maxBody = 64 << 10

// ErrNoPrice means the node answered but did not quote a usable price.
var ErrNoPrice = errors.New("pricefeed: no price in response")

// Client is the REST client for GET {node}/api/token-price/{mint}.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client for the node at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type priceResponse struct {
	Price *float64 `json:"price"`
}

// TokenPrice returns the node's current price for mint. A missing, zero or
// negative price is ErrNoPrice.
func (c *Client) TokenPrice(ctx context.Context, mint string) (float64, error) {
	if c.baseURL == "" {
		return 0, fmt.Errorf("pricefeed: %w", domain.ErrNotConfigured)
	}

	body, err := c.doGet(ctx, "/api/token-price/"+url.PathEscape(mint))
	if err != nil {
		return 0, fmt.Errorf("pricefeed: token price %s: %w", mint, err)
	}

	var resp priceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("pricefeed: decode token price: %w", err)
	}
	if resp.Price == nil || *resp.Price <= 0 {
		return 0, ErrNoPrice
	}
	return *resp.Price, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
