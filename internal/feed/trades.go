// Package feed streams last-trade prices from the Alpaca market-data
// websocket into a price sink, reconnecting on disconnect.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	handshakeTimeout  = 15 * time.Second
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// Trade is one last-trade print.
type Trade struct {
	Symbol string
	Price  float64
	Size   float64
	At     time.Time
}

// TradeHandler is called for every trade received.
type TradeHandler func(Trade)

// ErrAuth is returned when the stream rejects the credentials. It is not
// retried.
var ErrAuth = errors.New("feed: authentication rejected")

// Config identifies the stream and the account.
type Config struct {
	URL       string
	KeyID     string
	SecretKey string
	Symbols   []string
}

// TradeStream subscribes to trades for a fixed symbol set and reconnects
// with exponential backoff until its context ends or Close is called.
type TradeStream struct {
	cfg     Config
	onTrade TradeHandler
	dialer  *websocket.Dialer
	logger  *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewTradeStream creates a stream. onTrade must be safe for concurrent use
// with the rest of the program; it is called from the read goroutine.
func NewTradeStream(cfg Config, onTrade TradeHandler, logger *slog.Logger) *TradeStream {
	return &TradeStream{
		cfg:     cfg,
		onTrade: onTrade,
		dialer:  &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		logger:  logger.With(slog.String("component", "trade_stream")),
		done:    make(chan struct{}),
	}
}

// Run connects, authenticates, subscribes and reads until ctx is cancelled.
func (s *TradeStream) Run(ctx context.Context) error {
	if len(s.cfg.Symbols) == 0 {
		s.logger.Info("no symbols to subscribe, exiting")
		return nil
	}

	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		default:
		}

		subscribed, err := s.runConnection(ctx)
		if errors.Is(err, ErrAuth) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if subscribed {
			delay = reconnectDelay
		}
		s.logger.Warn("trade stream disconnected, reconnecting",
			slog.String("error", fmt.Sprint(err)),
			slog.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// Close stops the stream.
func (s *TradeStream) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// runConnection owns one websocket session. subscribed reports whether the
// session got as far as an acknowledged subscription.
func (s *TradeStream) runConnection(ctx context.Context) (subscribed bool, err error) {
	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	conn, _, err := s.dialer.DialContext(dialCtx, s.cfg.URL, nil)
	cancel()
	if err != nil {
		return false, fmt.Errorf("feed: dial: %w", err)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		case <-stop:
		}
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(v)
	}

	if err := s.expect(conn, "success", "connected"); err != nil {
		return false, err
	}
	if err := write(authMessage{Action: "auth", Key: s.cfg.KeyID, Secret: s.cfg.SecretKey}); err != nil {
		return false, fmt.Errorf("feed: send auth: %w", err)
	}
	if err := s.expect(conn, "success", "authenticated"); err != nil {
		return false, err
	}
	if err := write(subscribeMessage{Action: "subscribe", Trades: s.cfg.Symbols}); err != nil {
		return false, fmt.Errorf("feed: send subscribe: %w", err)
	}
	if err := s.expect(conn, "subscription", ""); err != nil {
		return false, err
	}
	s.logger.Info("trade stream subscribed", slog.Int("symbols", len(s.cfg.Symbols)))

	go s.pingLoop(conn, &writeMu, stop)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("feed: read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		if err := s.handleMessage(raw); err != nil {
			return true, err
		}
	}
}

// expect reads one frame and requires a message of type typ (and, when msg
// is set, that text). Error frames map to ErrAuth for auth codes.
func (s *TradeStream) expect(conn *websocket.Conn, typ, msg string) error {
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("feed: waiting for %s: %w", typ, err)
	}
	var msgs []streamMessage
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return fmt.Errorf("feed: decode control frame: %w", err)
	}
	for _, m := range msgs {
		switch {
		case m.Type == "error":
			return controlError(m)
		case m.Type == typ && (msg == "" || m.Msg == msg):
			return nil
		}
	}
	return fmt.Errorf("feed: expected %s %q, got %s", typ, msg, strings.TrimSpace(string(raw)))
}

func (s *TradeStream) handleMessage(raw []byte) error {
	var msgs []streamMessage
	if err := json.Unmarshal(raw, &msgs); err != nil {
		s.logger.Debug("dropping undecodable frame", slog.String("error", err.Error()))
		return nil
	}
	for _, m := range msgs {
		switch m.Type {
		case "t":
			if m.Symbol == "" || m.Price <= 0 {
				continue
			}
			if s.onTrade != nil {
				s.onTrade(Trade{Symbol: m.Symbol, Price: m.Price, Size: m.Size, At: m.Timestamp})
			}
		case "error":
			return controlError(m)
		}
	}
	return nil
}

func (s *TradeStream) pingLoop(conn *websocket.Conn, writeMu *sync.Mutex, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Alpaca auth failure codes: 401 not authenticated, 402 auth failed,
// 404 auth timeout, 406 connection limit exceeded.
func controlError(m streamMessage) error {
	switch m.Code {
	case 401, 402, 404, 406:
		return fmt.Errorf("%w: %d %s", ErrAuth, m.Code, m.Msg)
	}
	return fmt.Errorf("feed: stream error %d: %s", m.Code, m.Msg)
}

type authMessage struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

type subscribeMessage struct {
	Action string   `json:"action"`
	Trades []string `json:"trades"`
}

// streamMessage covers the control and trade frames we read.
type streamMessage struct {
	Type      string    `json:"T"`
	Msg       string    `json:"msg"`
	Code      int       `json:"code"`
	Symbol    string    `json:"S"`
	Price     float64   `json:"p"`
	Size      float64   `json:"s"`
	Timestamp time.Time `json:"t"`
}
