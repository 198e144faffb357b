package domain

import "context"

// Channels carried on the signal bus.
const (
	ChannelTick   = "ch:tick"
	ChannelOrder  = "ch:order"
	ChannelStatus = "ch:status"
)

// SignalBus is a fire-and-forget pub/sub transport for JSON payloads. The
// tick loop publishes to it; the WebSocket hub subscribes.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
