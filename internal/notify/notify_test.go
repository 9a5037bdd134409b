package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/trailbot/internal/decimal"
	"github.com/alanyoungcy/trailbot/internal/domain"
)

type memSender struct {
	name     string
	messages []string
	err      error
}

func (s *memSender) Send(ctx context.Context, title, message string) error {
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, title+"|"+message)
	return nil
}

func (s *memSender) Name() string { return s.name }

func TestNotifierFiltersEvents(t *testing.T) {
	sender := &memSender{name: "mem"}
	n := NewNotifier([]Sender{sender}, []string{EventPositionClosed}, slog.New(slog.DiscardHandler))

	require.NoError(t, n.Notify(context.Background(), "other.event", "t", "m"))
	assert.Empty(t, sender.messages)

	require.NoError(t, n.Notify(context.Background(), EventPositionClosed, "t", "m"))
	assert.Len(t, sender.messages, 1)
}

func TestNotifierDeliversToAllDespiteFailure(t *testing.T) {
	bad := &memSender{name: "bad", err: errors.New("down")}
	good := &memSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, slog.New(slog.DiscardHandler))

	err := n.NotifyAll(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Len(t, good.messages, 1)
}

func TestClosedSinkBroadcastsAndMessagesOwner(t *testing.T) {
	type tgCall struct {
		ChatID string `json:"chat_id"`
		Text   string `json:"text"`
	}
	var calls []tgCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		var c tgCall
		require.NoError(t, json.NewDecoder(r.Body).Decode(&c))
		calls = append(calls, c)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	owners := NewTelegramSender("TOKEN", "ops-chat")
	owners.apiBase = srv.URL

	broadcast := &memSender{name: "mem"}
	sink := NewClosedSink(
		NewNotifier([]Sender{broadcast}, nil, slog.New(slog.DiscardHandler)),
		owners,
		slog.New(slog.DiscardHandler),
	)

	pos := domain.Position{
		ID:        "pos-007",
		ChatID:    4242,
		Token:     domain.TokenInfo{Symbol: "WIF"},
		FillPrice: decimal.FromInt64(100),
		PeakPrice: decimal.FromInt64(120),
		NetPNL:    decimal.FromInt64(-5),
		Status:    domain.StatusClosed,
	}
	require.NoError(t, sink.PositionClosed(context.Background(), "tok-vs", pos))

	require.Len(t, calls, 1, "owner gets a direct message")
	assert.Equal(t, "4242", calls[0].ChatID)
	assert.Contains(t, calls[0].Text, "pos-007")
	assert.Contains(t, calls[0].Text, "WIF")

	require.Len(t, broadcast.messages, 1)
	assert.Contains(t, broadcast.messages[0], "net PNL: -5")
}

func TestClosedSinkWithoutOwnerChat(t *testing.T) {
	broadcast := &memSender{name: "mem"}
	sink := NewClosedSink(
		NewNotifier([]Sender{broadcast}, nil, slog.New(slog.DiscardHandler)),
		nil,
		slog.New(slog.DiscardHandler),
	)

	require.NoError(t, sink.PositionClosed(context.Background(), "tok-vs", domain.Position{ID: "p"}))
	assert.Len(t, broadcast.messages, 1)
}
