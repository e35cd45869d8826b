package sink

import (
	"context"
	"testing"

	"chat-relay/domain"
	"chat-relay/domain/event"

	"github.com/stretchr/testify/require"
)

func TestChannelSink_Consume_Buffers_Events(t *testing.T) {
	req := require.New(t)
	s := NewChannelSink(2)
	e := event.FriendOnline{UserID: domain.UserID(1)}

	req.NoError(s.Consume(context.Background(), e))
	req.Equal(e, <-s.Events)
}

func TestChannelSink_Consume_Rejects_When_Full(t *testing.T) {
	req := require.New(t)
	s := NewChannelSink(1)
	e := event.FriendOnline{UserID: domain.UserID(1)}

	// Given a full buffer
	req.NoError(s.Consume(context.Background(), e))

	// When one more event arrives
	err := s.Consume(context.Background(), e)

	// Then it is dropped instead of blocking the producer
	req.Error(err)
}
