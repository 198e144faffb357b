// Package alpaca is the REST client for the Alpaca trading and market data
// APIs. It implements the broker, quote, bar and market clock capabilities.
package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// Default API roots.
const (
	PaperBaseURL   = "https://paper-api.alpaca.markets"
	DefaultDataURL = "https://data.alpaca.markets"
)

// Config holds the credentials and endpoints of one Alpaca account.
type Config struct {
	KeyID     string
	SecretKey string
	BaseURL   string
	DataURL   string
	Feed      string
	Timeout   time.Duration
}

// Client talks to both the trading and the data API.
type Client struct {
	trading *resty.Client
	data    *resty.Client
	feed    string
}

var (
	_ domain.Broker         = (*Client)(nil)
	_ domain.PositionSource = (*Client)(nil)
	_ domain.QuoteSource    = (*Client)(nil)
	_ domain.BarSource      = (*Client)(nil)
	_ domain.MarketClock    = (*Client)(nil)
)

// New creates a Client. Empty URLs fall back to the paper trading and public
// data endpoints.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = PaperBaseURL
	}
	if cfg.DataURL == "" {
		cfg.DataURL = DefaultDataURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	mk := func(base string) *resty.Client {
		return resty.New().
			SetBaseURL(base).
			SetTimeout(cfg.Timeout).
			SetHeader("APCA-API-KEY-ID", cfg.KeyID).
			SetHeader("APCA-API-SECRET-KEY", cfg.SecretKey).
			SetHeader("Accept", "application/json")
	}
	return &Client{
		trading: mk(cfg.BaseURL),
		data:    mk(cfg.DataURL),
		feed:    cfg.Feed,
	}
}

// apiError is the error body Alpaca returns on non-2xx responses.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// do executes req and decodes a 2xx body into out. Rate-limit responses map
// to domain.ErrRateLimited and 404 to domain.ErrNotFound.
func do(ctx context.Context, req *resty.Request, method, path string, out any) error {
	resp, err := req.SetContext(ctx).Execute(method, path)
	if err != nil {
		return err
	}
	switch code := resp.StatusCode(); {
	case code == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case code == http.StatusNotFound:
		return domain.ErrNotFound
	case code < 200 || code >= 300:
		var ae apiError
		if json.Unmarshal(resp.Body(), &ae) == nil && ae.Message != "" {
			return fmt.Errorf("status %d: %s", code, ae.Message)
		}
		return fmt.Errorf("status %d: %s", code, resp.String())
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
