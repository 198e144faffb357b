package loop

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// State is the driver lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateTicking
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTicking:
		return "ticking"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// TickFunc runs the body of one tick.
type TickFunc interface {
	Tick(ctx context.Context, at time.Time) (domain.TickRecord, error)
}

// Driver moves Idle -> Ticking -> Idle until the clock exhausts (Terminal)
// or ctx is cancelled.
type Driver struct {
	clock  Clock
	body   TickFunc
	logger *slog.Logger

	state atomic.Int32
	ticks atomic.Int64
}

// NewDriver creates a Driver.
func NewDriver(clock Clock, body TickFunc, logger *slog.Logger) *Driver {
	return &Driver{
		clock:  clock,
		body:   body,
		logger: logger.With(slog.String("component", "loop")),
	}
}

// Run blocks until the clock exhausts, returning nil, or ctx is cancelled,
// returning ctx.Err(). Cancellation is observed between ticks only.
func (d *Driver) Run(ctx context.Context) error {
	for {
		d.state.Store(int32(StateIdle))
		at, ok, err := d.clock.Next(ctx)
		if err != nil {
			d.logger.Info("loop: stopped", slog.Int64("ticks", d.ticks.Load()), slog.String("reason", err.Error()))
			return err
		}
		if !ok {
			d.state.Store(int32(StateTerminal))
			d.logger.Info("loop: clock exhausted", slog.Int64("ticks", d.ticks.Load()))
			return nil
		}

		d.state.Store(int32(StateTicking))
		if _, err := d.body.Tick(ctx, at); err != nil {
			d.state.Store(int32(StateIdle))
			return err
		}
		d.ticks.Add(1)

		if err := ctx.Err(); err != nil {
			d.state.Store(int32(StateIdle))
			return err
		}
	}
}

// State returns the current lifecycle state.
func (d *Driver) State() State { return State(d.state.Load()) }

// Ticks returns the number of completed ticks.
func (d *Driver) Ticks() int64 { return d.ticks.Load() }
