package feed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// fakeStream speaks enough of the market-data stream protocol for one
// session: connected, auth, subscribe, then the given trade frames.
func fakeStream(t *testing.T, secret string, frames ...string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`[{"T":"success","msg":"connected"}]`))

		var auth authMessage
		if err := conn.ReadJSON(&auth); err != nil {
			return
		}
		if auth.Secret != secret {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`[{"T":"error","code":402,"msg":"auth failed"}]`))
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`[{"T":"success","msg":"authenticated"}]`))

		var sub subscribeMessage
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`[{"T":"subscription","trades":["`+strings.Join(sub.Trades, `","`)+`"]}]`))

		for _, f := range frames {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(f))
		}
		// hold the session open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestTradeStreamDeliversTrades(t *testing.T) {
	srv := fakeStream(t, "s3cret",
		`[{"T":"t","S":"PLTR","p":101.25,"s":10,"t":"2025-11-03T15:00:01.5Z"},{"T":"q","S":"PLTR","bp":101,"ap":101.5}]`,
		`not json`,
		`[{"T":"t","S":"NFLX","p":0,"s":1,"t":"2025-11-03T15:00:02Z"},{"T":"t","S":"NFLX","p":205,"s":1,"t":"2025-11-03T15:00:02Z"}]`,
	)
	defer srv.Close()

	var (
		mu  sync.Mutex
		got []Trade
	)
	stream := NewTradeStream(Config{
		URL:       wsURL(srv),
		KeyID:     "key",
		SecretKey: "s3cret",
		Symbols:   []string{"PLTR", "NFLX"},
	}, func(tr Trade) {
		mu.Lock()
		got = append(got, tr)
		mu.Unlock()
	}, discard())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- stream.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "PLTR", got[0].Symbol)
	assert.Equal(t, 101.25, got[0].Price)
	assert.Equal(t, 10.0, got[0].Size)
	assert.Equal(t, time.Date(2025, 11, 3, 15, 0, 1, 500_000_000, time.UTC), got[0].At)
	assert.Equal(t, "NFLX", got[1].Symbol)
	assert.Equal(t, 205.0, got[1].Price)
}

func TestTradeStreamAuthFailureIsFinal(t *testing.T) {
	srv := fakeStream(t, "right")
	defer srv.Close()

	stream := NewTradeStream(Config{
		URL:       wsURL(srv),
		KeyID:     "key",
		SecretKey: "wrong",
		Symbols:   []string{"PLTR"},
	}, nil, discard())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := stream.Run(ctx)
	require.ErrorIs(t, err, ErrAuth)
	assert.Contains(t, err.Error(), "402")
}

func TestTradeStreamCloseStopsReconnecting(t *testing.T) {
	stream := NewTradeStream(Config{
		URL:     "ws://127.0.0.1:1/unreachable",
		Symbols: []string{"PLTR"},
	}, nil, discard())

	errCh := make(chan error, 1)
	go func() { errCh <- stream.Run(context.Background()) }()
	time.Sleep(50 * time.Millisecond)
	stream.Close()
	stream.Close()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not stop after Close")
	}
}

func TestTradeStreamNoSymbols(t *testing.T) {
	stream := NewTradeStream(Config{URL: "ws://unused"}, nil, discard())
	assert.NoError(t, stream.Run(context.Background()))
}
