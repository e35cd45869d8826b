package auth

import (
	"log/slog"
	"testing"
	"time"

	"chat-relay/domain"
	"chat-relay/errors"

	"github.com/stretchr/testify/require"
)

func TestGatekeeper_Accepts_A_Valid_Token(t *testing.T) {
	req := require.New(t)
	key := []byte("0123456789abcdef")
	gatekeeper := NewGatekeeper(key, slog.Default())
	identity := domain.Identity{UserID: 10, Username: "alice", Avatar: "a.png"}

	token, err := GenerateToken(identity, key, time.Minute)
	req.NoError(err)

	verified, err := gatekeeper.Verify(token)
	req.NoError(err)
	req.Equal(identity, verified)
}

func TestGatekeeper_Rejects_An_Expired_Token(t *testing.T) {
	req := require.New(t)
	key := []byte("0123456789abcdef")
	gatekeeper := NewGatekeeper(key, slog.Default())

	token, err := GenerateToken(domain.Identity{UserID: 10}, key, -time.Minute)
	req.NoError(err)

	_, err = gatekeeper.Verify(token)
	req.ErrorIs(err, errors.ErrAuthentication)
}

func TestGatekeeper_Rejects_A_Forged_Token(t *testing.T) {
	req := require.New(t)
	gatekeeper := NewGatekeeper([]byte("0123456789abcdef"), slog.Default())

	token, err := GenerateToken(domain.Identity{UserID: 10}, []byte("another-key-here"), time.Minute)
	req.NoError(err)

	_, err = gatekeeper.Verify(token)
	req.ErrorIs(err, errors.ErrAuthentication)
}

func TestGatekeeper_Rejects_Garbage(t *testing.T) {
	req := require.New(t)
	gatekeeper := NewGatekeeper([]byte("0123456789abcdef"), slog.Default())

	_, err := gatekeeper.Verify("not-a-token")
	req.ErrorIs(err, errors.ErrAuthentication)
}
