package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageStatus_CanAdvance_Only_Forward(t *testing.T) {
	req := require.New(t)

	req.True(StatusSent.CanAdvance(StatusDelivered))
	req.True(StatusSent.CanAdvance(StatusRead))
	req.True(StatusDelivered.CanAdvance(StatusRead))

	req.False(StatusDelivered.CanAdvance(StatusSent))
	req.False(StatusRead.CanAdvance(StatusDelivered))
	req.False(StatusRead.CanAdvance(StatusSent))

	// Re-applying the current status is not an advance
	req.False(StatusDelivered.CanAdvance(StatusDelivered))
}

func TestMessageStatus_Unknown_Is_Invalid(t *testing.T) {
	req := require.New(t)

	req.False(MessageStatus("SEEN").Valid())
	req.False(StatusSent.CanAdvance(MessageStatus("SEEN")))
}
