// Package oracle implements the HTTP clients for the external price oracle
// and the token-metadata resolver.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/trailbot/internal/decimal"
	"github.com/alanyoungcy/trailbot/internal/domain"
)

// Client talks to a Jupiter-style price API: GET /price?ids=<token>&vsToken=<vs>
// returning {"data": {"<token>": {"price": ...}}}. Absence of the requested
// token key signals a delisted or unknown token.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a price oracle client.
//
// baseURL is the API root, e.g. "https://price.jup.ag/v4".
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type priceResponse struct {
	Data map[string]struct {
		Price json.Number `json:"price"`
	} `json:"data"`
}

// TokenPrice fetches the current price of token denominated in vsToken.
// Delisted tokens and malformed responses surface domain.ErrPriceUnavailable;
// callers must never substitute a zero price.
func (c *Client) TokenPrice(ctx context.Context, tokenAddress, vsTokenAddress string) (decimal.Amount, error) {
	params := url.Values{}
	params.Set("ids", tokenAddress)
	params.Set("vsToken", vsTokenAddress)

	body, err := c.doGet(ctx, "/price?"+params.Encode())
	if err != nil {
		return decimal.Zero(), fmt.Errorf("oracle: get price %s/%s: %w", tokenAddress, vsTokenAddress, err)
	}

	var resp priceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero(), fmt.Errorf("oracle: decode price response: %w", err)
	}

	entry, ok := resp.Data[tokenAddress]
	if !ok {
		return decimal.Zero(), fmt.Errorf("oracle: token %s: %w", tokenAddress, domain.ErrPriceUnavailable)
	}
	price, err := decimal.Parse(entry.Price.String())
	if err != nil {
		return decimal.Zero(), fmt.Errorf("oracle: token %s price %q: %w", tokenAddress, entry.Price, domain.ErrPriceUnavailable)
	}
	return price, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
