package ws

import (
	"context"
	"encoding/json"
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

	"github.com/alanyoungcy/hyperlocal/internal/domain"
)

type chanBus struct {
	live   chan []byte
	stored []domain.StreamMessage
}

func (b *chanBus) Publish(context.Context, string, []byte) error { return nil }

func (b *chanBus) Subscribe(context.Context, string) (<-chan []byte, error) { return b.live, nil }

func (b *chanBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *chanBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return b.stored, nil
}

func envelope(t *testing.T, ev domain.Event) []byte {
	t.Helper()
	env, err := domain.NewEnvelope(ev, time.Unix(1_700_000_000, 0))
	require.NoError(t, err)
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return raw
}

func startHub(t *testing.T, bus *chanBus) *httptest.Server {
	t.Helper()
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Mode: "full"})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	typ, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	if typ == websocket.BinaryMessage {
		raw, err = DecodeProto(raw)
		require.NoError(t, err)
	}
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestHubReplaysThenStreams(t *testing.T) {
	market := domain.Address{0x42}
	bus := &chanBus{
		live: make(chan []byte, 4),
		stored: []domain.StreamMessage{
			{ID: "1-0", Payload: envelope(t, domain.MarketCreated{Market: market, Question: "q"})},
		},
	}
	srv := startHub(t, bus)
	conn := dial(t, srv, "?since=0")

	assert.Equal(t, "hello", readEvent(t, conn)["event"])
	assert.Equal(t, domain.EventMarketCreated, readEvent(t, conn)["event"])

	// give the hub time to register the client before publishing
	time.Sleep(50 * time.Millisecond)
	bus.live <- envelope(t, domain.PayoutClaimed{Market: market, Payout: 7})
	ev := readEvent(t, conn)
	assert.Equal(t, domain.EventPayoutClaimed, ev["event"])
	assert.Equal(t, domain.ChannelClaim, ev["channel"])
}

func TestHubMarketFilterAndProto(t *testing.T) {
	wanted := domain.Address{0x42}
	bus := &chanBus{live: make(chan []byte, 4)}
	srv := startHub(t, bus)
	conn := dial(t, srv, "?format=proto&market="+wanted.Hex())

	assert.Equal(t, "hello", readEvent(t, conn)["event"])
	time.Sleep(50 * time.Millisecond)

	bus.live <- envelope(t, domain.PayoutClaimed{Market: domain.Address{0x99}, Payout: 1})
	bus.live <- envelope(t, domain.PayoutClaimed{Market: wanted, Payout: 2})

	ev := readEvent(t, conn)
	data := ev["data"].(map[string]any)
	assert.Equal(t, wanted.Hex(), data["market"])
	assert.Equal(t, float64(2), data["payout"])
}

func TestRoute(t *testing.T) {
	_, ok := route([]byte(`not json`))
	assert.False(t, ok)
	_, ok = route([]byte(`{"event":"x"}`))
	assert.False(t, ok)

	msg, ok := route([]byte(`{"channel":"ch:order","data":{"market":"0xAB"}}`))
	require.True(t, ok)
	assert.Equal(t, "ch:order", msg.channel)
	assert.Equal(t, "0xab", msg.market)
}

func TestClientSubscriptions(t *testing.T) {
	c := &client{subs: map[string]bool{}}
	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{"ch:*"}})
	assert.True(t, c.wants(domain.ChannelOrder, ""))

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{"ch:*"}})
	assert.False(t, c.wants(domain.ChannelOrder, ""))

	c.subs[domain.ChannelClaim] = true
	c.market = "0x01"
	assert.False(t, c.wants(domain.ChannelClaim, "0x02"))
	assert.True(t, c.wants(domain.ChannelClaim, "0x01"))
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:3000"})
	req := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, check(req))
	req.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, check(req))
	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, check(req))
}
