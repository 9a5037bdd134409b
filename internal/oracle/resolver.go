package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/trailbot/internal/domain"
)

// Resolver fetches token metadata from a token-registry API:
// GET /token/<address> returning {address, symbol, name, decimals}. A 404
// maps to domain.ErrNotFound.
type Resolver struct {
	baseURL    string
	httpClient *http.Client
}

// NewResolver creates a token metadata resolver.
func NewResolver(baseURL string, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Resolver{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ResolveToken looks up the metadata for a token address.
func (r *Resolver) ResolveToken(ctx context.Context, address string) (domain.TokenInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		r.baseURL+"/token/"+url.PathEscape(address), nil)
	if err != nil {
		return domain.TokenInfo{}, fmt.Errorf("oracle: create resolve request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return domain.TokenInfo{}, fmt.Errorf("oracle: resolve token %s: %w", address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.TokenInfo{}, fmt.Errorf("oracle: token %s: %w", address, domain.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.TokenInfo{}, fmt.Errorf("oracle: resolve token %s: status %d", address, resp.StatusCode)
	}

	var info domain.TokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return domain.TokenInfo{}, fmt.Errorf("oracle: decode token metadata: %w", err)
	}
	if info.Address == "" {
		info.Address = address
	}
	return info, nil
}
