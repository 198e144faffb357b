package decision

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// fakeReasoner returns canned outputs and records call order per symbol.
type fakeReasoner struct {
	mu    sync.Mutex
	calls map[string][]string

	market    func(symbol string) (domain.RoleOutput, error)
	valuation func(symbol string) (domain.RoleOutput, error)
	risk      func(symbol string) (domain.RoleOutput, error)
	coord     func(symbol string) (domain.RoleOutput, error)
}

func newFake() *fakeReasoner {
	hold := func(string) (domain.RoleOutput, error) {
		return domain.RoleOutput{Side: domain.SideHold, Confidence: 0.5, Reason: "hold"}, nil
	}
	return &fakeReasoner{
		calls:     map[string][]string{},
		market:    hold,
		valuation: hold,
		risk:      hold,
		coord:     hold,
	}
}

func (f *fakeReasoner) record(symbol, role string) {
	f.mu.Lock()
	f.calls[symbol] = append(f.calls[symbol], role)
	f.mu.Unlock()
}

func (f *fakeReasoner) Market(_ context.Context, in domain.RoleInput) (domain.RoleOutput, error) {
	f.record(in.Symbol, domain.RoleMarket)
	return f.market(in.Symbol)
}

func (f *fakeReasoner) Valuation(_ context.Context, in domain.RoleInput, _ domain.RoleOutput) (domain.RoleOutput, error) {
	f.record(in.Symbol, domain.RoleValuation)
	return f.valuation(in.Symbol)
}

func (f *fakeReasoner) Risk(_ context.Context, in domain.RoleInput, _, _ domain.RoleOutput) (domain.RoleOutput, error) {
	f.record(in.Symbol, domain.RoleRisk)
	return f.risk(in.Symbol)
}

func (f *fakeReasoner) Coordinate(_ context.Context, in domain.RoleInput, _, _, _ domain.RoleOutput) (domain.RoleOutput, error) {
	f.record(in.Symbol, domain.RoleCoordinator)
	return f.coord(in.Symbol)
}

func snapshot(symbols ...string) domain.MarketSnapshot {
	prices := map[string]float64{}
	for _, s := range symbols {
		prices[s] = 100
	}
	return domain.MarketSnapshot{
		Timestamp:  time.Date(2025, 11, 3, 15, 0, 0, 0, time.UTC),
		Symbols:    symbols,
		Prices:     prices,
		MarketOpen: true,
	}
}

func newPipeline(r domain.Reasoner, timeout time.Duration) *Pipeline {
	return NewPipeline(r, timeout, 4, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRolesCalledInOrder(t *testing.T) {
	f := newFake()
	p := newPipeline(f, time.Second)

	out := p.Decide(context.Background(), snapshot("PLTR", "NFLX"), domain.PortfolioView{})
	require.Len(t, out, 2)

	want := []string{domain.RoleMarket, domain.RoleValuation, domain.RoleRisk, domain.RoleCoordinator}
	assert.Equal(t, want, f.calls["PLTR"])
	assert.Equal(t, want, f.calls["NFLX"])
}

func TestVetoIsAbsolute(t *testing.T) {
	f := newFake()
	f.risk = func(string) (domain.RoleOutput, error) {
		return domain.RoleOutput{Side: domain.SideHold, Veto: true, Confidence: 1, Reason: "market closed"}, nil
	}
	f.coord = func(string) (domain.RoleOutput, error) {
		return domain.RoleOutput{Side: domain.SideBuy, Quantity: 3, Confidence: 0.9, Reason: "buy anyway"}, nil
	}

	out := newPipeline(f, time.Second).Decide(context.Background(), snapshot("PLTR"), domain.PortfolioView{})
	a := out["PLTR"]
	assert.Equal(t, domain.SideHold, a.Side)
	assert.Equal(t, 0, a.Quantity)
	assert.True(t, a.Veto)
	assert.Equal(t, "market closed", a.VetoReason)
	assert.True(t, strings.HasPrefix(a.Reason, "risk veto: market closed"))
	assert.True(t, a.IsHold())
}

func TestCoordinatorActionCarriesRoleOutputs(t *testing.T) {
	f := newFake()
	f.coord = func(string) (domain.RoleOutput, error) {
		return domain.RoleOutput{Side: domain.SideBuy, Quantity: 2, Confidence: 0.8, Reason: "cheap"}, nil
	}
	f.market = func(string) (domain.RoleOutput, error) {
		return domain.RoleOutput{Side: domain.SideBuy, Confidence: 0.7, Reason: "up"}, nil
	}

	a := newPipeline(f, time.Second).Decide(context.Background(), snapshot("PLTR"), domain.PortfolioView{})["PLTR"]
	assert.Equal(t, domain.SideBuy, a.Side)
	assert.Equal(t, 2, a.Quantity)
	assert.Equal(t, "cheap", a.Reason)
	assert.Equal(t, domain.RoleMarket, a.Market.Role)
	assert.Equal(t, "up", a.Market.Reason)
	assert.False(t, a.Failed)
}

func TestRoleErrorIsIsolatedToSymbol(t *testing.T) {
	f := newFake()
	f.valuation = func(symbol string) (domain.RoleOutput, error) {
		if symbol == "NFLX" {
			return domain.RoleOutput{}, errors.New("boom")
		}
		return domain.RoleOutput{Side: domain.SideHold, Confidence: 0.5}, nil
	}
	f.coord = func(string) (domain.RoleOutput, error) {
		return domain.RoleOutput{Side: domain.SideBuy, Quantity: 1, Confidence: 0.8, Reason: "ok"}, nil
	}

	out := newPipeline(f, time.Second).Decide(context.Background(), snapshot("PLTR", "NFLX"), domain.PortfolioView{})

	assert.Equal(t, domain.SideBuy, out["PLTR"].Side)
	assert.Equal(t, domain.SideHold, out["NFLX"].Side)
	assert.True(t, out["NFLX"].Failed)
	assert.Equal(t, "pipeline_error: valuation: boom", out["NFLX"].Reason)
	// later roles are not called after a failure
	assert.Equal(t, []string{domain.RoleMarket, domain.RoleValuation}, f.calls["NFLX"])
}

func TestMalformedOutputBecomesHold(t *testing.T) {
	f := newFake()
	f.market = func(string) (domain.RoleOutput, error) {
		return domain.RoleOutput{Side: "maybe", Confidence: 0.5}, nil
	}

	a := newPipeline(f, time.Second).Decide(context.Background(), snapshot("PLTR"), domain.PortfolioView{})["PLTR"]
	assert.Equal(t, domain.SideHold, a.Side)
	assert.True(t, a.Failed)
	assert.True(t, strings.HasPrefix(a.Reason, "pipeline_error: market:"))
}

func TestMalformedOutputKinds(t *testing.T) {
	tests := []struct {
		name string
		out  domain.RoleOutput
		want string
	}{
		{"unknown side", domain.RoleOutput{Side: "maybe", Confidence: 0.5}, `side "maybe"`},
		{"negative quantity", domain.RoleOutput{Side: domain.SideBuy, Quantity: -1, Confidence: 0.5}, "negative quantity -1"},
		{"confidence above one", domain.RoleOutput{Side: domain.SideHold, Confidence: 1.5}, "confidence 1.500 out of range"},
		{"negative confidence", domain.RoleOutput{Side: domain.SideHold, Confidence: -0.1}, "confidence -0.100 out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFake()
			f.valuation = func(string) (domain.RoleOutput, error) { return tt.out, nil }

			a := newPipeline(f, time.Second).Decide(context.Background(), snapshot("PLTR"), domain.PortfolioView{})["PLTR"]
			assert.Equal(t, domain.SideHold, a.Side)
			assert.True(t, a.Failed)
			assert.True(t, strings.HasPrefix(a.Reason, "pipeline_error: valuation:"), a.Reason)
			assert.Contains(t, a.Reason, tt.want)
		})
	}
}

func TestRoleTimeoutBecomesHold(t *testing.T) {
	f := newFake()
	f.risk = func(string) (domain.RoleOutput, error) {
		time.Sleep(500 * time.Millisecond) // ignores its context
		return domain.RoleOutput{Side: domain.SideHold}, nil
	}

	start := time.Now()
	a := newPipeline(f, 20*time.Millisecond).Decide(context.Background(), snapshot("PLTR"), domain.PortfolioView{})["PLTR"]
	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.True(t, a.Failed)
	assert.Equal(t, "pipeline_error: risk: "+context.DeadlineExceeded.Error(), a.Reason)
}

func TestMissingPriceSkipsRoles(t *testing.T) {
	f := newFake()
	snap := snapshot("PLTR")
	snap.Symbols = append(snap.Symbols, "NFLX")

	out := newPipeline(f, time.Second).Decide(context.Background(), snap, domain.PortfolioView{})
	assert.Equal(t, domain.SideHold, out["NFLX"].Side)
	assert.Equal(t, "no price", out["NFLX"].Reason)
	assert.Empty(t, f.calls["NFLX"])
}
