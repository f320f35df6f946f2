package ws

import (
	"context"
	"encoding/json"
	"errors"
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

	"github.com/alanyoungcy/pascal/internal/domain"
)

// chanBus is a SignalBus whose single subscription is fed by the test.
type chanBus struct {
	feed       chan []byte
	subscribed chan string
}

func (b *chanBus) Publish(context.Context, string, []byte) error { return nil }

func (b *chanBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	b.subscribed <- channel
	return b.feed, nil
}

func (b *chanBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *chanBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func event(t *testing.T, runID string, status domain.CreationStatus) []byte {
	t.Helper()
	data, err := json.Marshal(domain.StatusEvent{RunID: runID, Status: status, Timestamp: time.Now()})
	require.NoError(t, err)
	return data
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHubDeliversCreationEvents(t *testing.T) {
	bus := &chanBus{feed: make(chan []byte, 8), subscribed: make(chan string, 1)}
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Mode: "full", Operator: "Op1"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)
	assert.Equal(t, CreationPattern, <-bus.subscribed)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	hello := readEnvelope(t, conn)
	assert.Equal(t, "hello", hello.Type)
	assert.Contains(t, string(hello.Payload), `"operator":"Op1"`)

	// Narrow to a single run; events of other runs are no longer delivered.
	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "unsubscribe", Channels: []string{CreationPattern}}))
	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "subscribe", Channels: []string{"ch:creation:run-2"}}))
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			if c.isSubscribed("ch:creation:run-2") && !c.isSubscribed("ch:creation:run-1") {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)

	bus.feed <- event(t, "run-1", domain.StatusCreatingMarket)
	bus.feed <- []byte("not json")
	bus.feed <- event(t, "run-2", domain.StatusAddingPrices)

	got := readEnvelope(t, conn)
	assert.Equal(t, "creation_status", got.Type)
	assert.Equal(t, "ch:creation:run-2", got.Channel)
	var ev domain.StatusEvent
	require.NoError(t, json.Unmarshal(got.Payload, &ev))
	assert.Equal(t, domain.StatusAddingPrices, ev.Status)
}

func TestHubShutdownWithConnectingClients(t *testing.T) {
	bus := &chanBus{feed: make(chan []byte), subscribed: make(chan string, 1)}
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Mode: "api"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(stopped)
	}()
	<-bus.subscribed

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	// Clients racing the shutdown are either registered and closed by Run or
	// turned away; none may take the server down.
	var conns []*websocket.Conn
	for i := 0; i < 20; i++ {
		if i == 10 {
			cancel()
		}
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			conns = append(conns, conn)
		}
	}
	<-stopped

	for _, conn := range conns {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		var err error
		for err == nil {
			_, _, err = conn.ReadMessage()
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) {
			assert.False(t, netErr.Timeout(), "connection left open after shutdown")
		}
		conn.Close()
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestIsSubscribedPrefix(t *testing.T) {
	c := &client{subs: map[string]bool{"ch:creation:*": true}}
	assert.True(t, c.isSubscribed("ch:creation:abc"))
	assert.False(t, c.isSubscribed("ch:other:abc"))

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{"ch:creation:*"}})
	assert.False(t, c.isSubscribed("ch:creation:abc"))
}

func TestCheckOrigin(t *testing.T) {
	hub := NewHub(nil, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{AllowedOrigins: []string{"http://localhost:3000"}})

	req := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, hub.checkOrigin(req))
	req.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, hub.checkOrigin(req))
	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, hub.checkOrigin(req))
}
