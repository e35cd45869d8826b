// Package sink adapts fanned-out domain events onto per-connection
// buffered channels. The transport's write loop drains the channel; the
// rest of the core never touches a socket.
package sink

import (
	"context"
	"fmt"

	"chat-relay/domain/event"
)

// ChannelSink decouples event producers from one connection's write
// loop. Consume never blocks beyond ctx: when the buffer is full the
// event is rejected and the caller decides whether that matters.
type ChannelSink struct {
	Events chan event.DomainEvent
}

func NewChannelSink(bufferSize int) *ChannelSink {
	return &ChannelSink{Events: make(chan event.DomainEvent, bufferSize)}
}

// Consume is called by the fanout paths. It hands the event to the
// owning connection's channel; the transport write loop takes it from
// there.
func (s *ChannelSink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case s.Events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("connection buffer full, dropping %s", e.EventName())
	}
}
