package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/trailbot/internal/actor"
	"github.com/alanyoungcy/trailbot/internal/decimal"
	"github.com/alanyoungcy/trailbot/internal/domain"
	"github.com/alanyoungcy/trailbot/internal/state"
)

type fixedOracle struct{}

func (fixedOracle) TokenPrice(ctx context.Context, token, vsToken string) (decimal.Amount, error) {
	return decimal.FromInt64(100), nil
}

type fixedResolver struct{}

func (fixedResolver) ResolveToken(ctx context.Context, address string) (domain.TokenInfo, error) {
	return domain.TokenInfo{Address: address}, nil
}

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	reg := actor.NewRegistry(actor.Deps{
		Store:    state.NewMemStore(),
		Oracle:   fixedOracle{},
		Resolver: fixedResolver{},
		Logger:   slog.New(slog.DiscardHandler),
	})
	mux := http.NewServeMux()
	mux.HandleFunc("POST /rpc/{method}", NewRPCHandler(reg, slog.New(slog.DiscardHandler)).Dispatch)
	return mux
}

func post(t *testing.T, mux *http.ServeMux, method, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rpc/"+method, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestDispatchRoundTrip(t *testing.T) {
	mux := newTestMux(t)

	rec := post(t, mux, "submitBuy",
		`{"tokenAddress":"tok","vsTokenAddress":"vs","userID":7,"triggerPercent":10}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"positionID"`)
	assert.Contains(t, rec.Body.String(), `"pending_buy"`)

	rec = post(t, mux, "getPositionCounts", `{"tokenAddress":"tok","vsTokenAddress":"vs"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)
}

func TestDispatchRequiresPairAddressing(t *testing.T) {
	mux := newTestMux(t)

	rec := post(t, mux, "listPositions", `{"tokenAddress":"tok"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(t, mux, "listPositions", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDispatchErrorMapping(t *testing.T) {
	mux := newTestMux(t)

	rec := post(t, mux, "getPosition",
		`{"tokenAddress":"tok","vsTokenAddress":"vs","positionID":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = post(t, mux, "noSuchMethod", `{"tokenAddress":"tok","vsTokenAddress":"vs"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// A second pair hitting the same actor namespace is its own actor, not a
	// mismatch.
	rec = post(t, mux, "listPositions", `{"tokenAddress":"tok2","vsTokenAddress":"vs"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}
