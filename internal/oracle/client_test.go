package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/trailbot/internal/decimal"
	"github.com/alanyoungcy/trailbot/internal/domain"
)

func TestTokenPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok111", r.URL.Query().Get("ids"))
		assert.Equal(t, "vs222", r.URL.Query().Get("vsToken"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"tok111":{"price":0.004028}}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	price, err := c.TokenPrice(context.Background(), "tok111", "vs222")
	require.NoError(t, err)

	want, err := decimal.Parse("0.004028")
	require.NoError(t, err)
	assert.Equal(t, 0, decimal.Cmp(want, price))
}

func TestTokenPriceStringNumber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"tok":{"price":"1.25"}}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	price, err := c.TokenPrice(context.Background(), "tok", "vs")
	require.NoError(t, err)
	want, _ := decimal.Parse("1.25")
	assert.Equal(t, 0, decimal.Cmp(want, price))
}

func TestTokenPriceDelisted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A delisted token comes back as an empty data object, not an error.
		w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.TokenPrice(context.Background(), "gone", "vs")
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestTokenPriceServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broken", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.TokenPrice(context.Background(), "tok", "vs")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestResolveToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token/tok111", r.URL.Path)
		w.Write([]byte(`{"address":"tok111","symbol":"TOK","name":"Token","decimals":9}`))
	}))
	defer srv.Close()

	res := NewResolver(srv.URL, time.Second)
	info, err := res.ResolveToken(context.Background(), "tok111")
	require.NoError(t, err)
	assert.Equal(t, domain.TokenInfo{Address: "tok111", Symbol: "TOK", Name: "Token", Decimals: 9}, info)
}

func TestResolveTokenNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	res := NewResolver(srv.URL, time.Second)
	_, err := res.ResolveToken(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
