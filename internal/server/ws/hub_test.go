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

	"github.com/alanyoungcy/tradeloop/internal/cache/memory"
	"github.com/alanyoungcy/tradeloop/internal/domain"
)

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHubStreamsBusMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := memory.NewBus()
	hub := NewHub(bus, func() any { return map[string]string{"run_id": "run-1"} },
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	go func() { _ = hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	env := readEnvelope(t, conn)
	assert.Equal(t, domain.ChannelStatus, env.Channel)
	assert.JSONEq(t, `{"run_id":"run-1"}`, string(env.Payload))

	require.NoError(t, bus.Publish(ctx, domain.ChannelTick, []byte(`{"seq":1}`)))
	env = readEnvelope(t, conn)
	assert.Equal(t, domain.ChannelTick, env.Channel)
	assert.JSONEq(t, `{"seq":1}`, string(env.Payload))
	assert.Equal(t, 1, hub.ClientCount())
}

func TestClientSubscriptions(t *testing.T) {
	c := &client{subs: map[string]bool{domain.ChannelTick: true, domain.ChannelOrder: true}}

	c.apply(subscribeMsg{Action: "unsubscribe", Channels: []string{domain.ChannelTick}})
	assert.False(t, c.isSubscribed(domain.ChannelTick))
	assert.True(t, c.isSubscribed(domain.ChannelOrder))

	c.apply(subscribeMsg{Action: "subscribe", Channels: []string{domain.ChannelStatus}})
	assert.True(t, c.isSubscribed(domain.ChannelStatus))

	c.apply(subscribeMsg{Action: "bogus", Channels: []string{domain.ChannelTick}})
	assert.False(t, c.isSubscribed(domain.ChannelTick))
}
