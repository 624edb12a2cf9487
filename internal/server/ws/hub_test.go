package ws

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/editionshop/internal/domain"
	"github.com/alanyoungcy/editionshop/internal/service"
)

type fakeBus struct {
	msgs    chan []byte
	backlog []domain.StreamMessage
	since   chan string
}

func (b *fakeBus) Publish(context.Context, string, []byte) error { return nil }

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) { return b.msgs, nil }

func (b *fakeBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *fakeBus) StreamRead(_ context.Context, _ string, lastID string, count int) ([]domain.StreamMessage, error) {
	b.since <- lastID
	if count < len(b.backlog) {
		return b.backlog[:count], nil
	}
	return b.backlog, nil
}

func event(t *testing.T, kind, market string) []byte {
	t.Helper()
	raw, err := service.Event{Kind: kind, At: time.Now(), Fields: map[string]string{"market": market}}.Marshal()
	require.NoError(t, err)
	return raw
}

func TestClientFilter(t *testing.T) {
	c := &client{kinds: map[string]bool{}, markets: map[string]bool{}}
	sale := service.Event{Kind: service.EventSale, Fields: map[string]string{"market": "0xabc"}}
	payout := service.Event{Kind: service.EventPayout, Fields: map[string]string{"market": "0xdef"}}

	assert.True(t, c.matches(sale))
	assert.True(t, c.matches(payout))

	c.apply(filterMsg{Action: "subscribe", Kinds: []string{service.EventSale}})
	assert.True(t, c.matches(sale))
	assert.False(t, c.matches(payout))

	c.apply(filterMsg{Action: "subscribe", Markets: []string{"0xABC"}})
	assert.True(t, c.matches(sale))

	c.apply(filterMsg{Action: "subscribe", Markets: []string{"0x111"}})
	c.apply(filterMsg{Action: "unsubscribe", Markets: []string{"0xabc"}})
	assert.False(t, c.matches(sale))

	c.apply(filterMsg{Action: "unsubscribe", Kinds: []string{service.EventSale}, Markets: []string{"0x111"}})
	assert.True(t, c.matches(payout))
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"sale", "payout"}, splitList(" sale, ,payout "))
}

func TestHubReplaysAndStreams(t *testing.T) {
	bus := &fakeBus{
		msgs:  make(chan []byte),
		since: make(chan string, 1),
		backlog: []domain.StreamMessage{
			{ID: "1-0", Payload: event(t, service.EventPayout, "0xabc")},
			{ID: "2-0", Payload: event(t, service.EventSale, "0xabc")},
		},
	}
	hub := NewHub(bus, Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?kinds=sale&since=0-0"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	assert.Equal(t, "0-0", <-bus.since)

	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	ev, err := service.DecodeEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, service.EventSale, ev.Kind)

	bus.msgs <- event(t, service.EventPayout, "0xabc")
	bus.msgs <- event(t, service.EventSale, "0xdef")

	_, raw, err = conn.ReadMessage()
	require.NoError(t, err)
	ev, err = service.DecodeEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, service.EventSale, ev.Kind)
	assert.Equal(t, "0xdef", ev.Fields["market"])
}
