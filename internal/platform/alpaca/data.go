package alpaca

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

type apiTrade struct {
	Price float64 `json:"p"`
}

type apiBar struct {
	Time   time.Time `json:"t"`
	Open   float64   `json:"o"`
	High   float64   `json:"h"`
	Low    float64   `json:"l"`
	Close  float64   `json:"c"`
	Volume int64     `json:"v"`
}

func (b apiBar) toDomain() domain.Bar {
	return domain.Bar{Time: b.Time.UTC(), Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
}

// LatestPrice returns the latest trade price, falling back to the close of
// the latest bar when no trade is available.
func (c *Client) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	path := "/v2/stocks/" + url.PathEscape(symbol)

	var trade struct {
		Trade *apiTrade `json:"trade"`
	}
	tradeErr := do(ctx, c.dataReq(), http.MethodGet, path+"/trades/latest", &trade)
	if tradeErr == nil && trade.Trade != nil && trade.Trade.Price > 0 {
		return trade.Trade.Price, nil
	}
	if ctx.Err() != nil {
		return 0, fmt.Errorf("alpaca: latest price %s: %w", symbol, ctx.Err())
	}

	var bar struct {
		Bar *apiBar `json:"bar"`
	}
	if err := do(ctx, c.dataReq(), http.MethodGet, path+"/bars/latest", &bar); err != nil {
		return 0, fmt.Errorf("alpaca: latest price %s: %w", symbol, errors.Join(tradeErr, err))
	}
	if bar.Bar == nil || bar.Bar.Close <= 0 {
		return 0, fmt.Errorf("alpaca: latest price %s: %w", symbol, domain.ErrNoPrice)
	}
	return bar.Bar.Close, nil
}

// Bars returns bars in [start, end], following pagination tokens.
func (c *Client) Bars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.Bar, error) {
	path := "/v2/stocks/" + url.PathEscape(symbol) + "/bars"
	var out []domain.Bar
	token := ""
	for {
		req := c.dataReq().SetQueryParams(map[string]string{
			"timeframe":  timeframe,
			"start":      start.UTC().Format(time.RFC3339),
			"end":        end.UTC().Format(time.RFC3339),
			"limit":      "10000",
			"adjustment": "raw",
		})
		if token != "" {
			req.SetQueryParam("page_token", token)
		}
		var page struct {
			Bars          []apiBar `json:"bars"`
			NextPageToken *string  `json:"next_page_token"`
		}
		if err := do(ctx, req, http.MethodGet, path, &page); err != nil {
			return nil, fmt.Errorf("alpaca: bars %s %s: %w", symbol, timeframe, err)
		}
		for _, b := range page.Bars {
			out = append(out, b.toDomain())
		}
		if page.NextPageToken == nil || *page.NextPageToken == "" {
			return out, nil
		}
		token = *page.NextPageToken
	}
}

func (c *Client) dataReq() *resty.Request {
	req := c.data.R()
	if c.feed != "" {
		req.SetQueryParam("feed", c.feed)
	}
	return req
}
