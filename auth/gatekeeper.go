// Package auth is the connection gatekeeper: it verifies the bearer
// credential of every new persistent connection before any other
// component sees it. There is no retry; a failed handshake terminates
// the connection and the client must reconnect with a fresh token.
package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"chat-relay/domain"
	"chat-relay/errors"
)

type Gatekeeper struct {
	key []byte
	log *slog.Logger
}

func NewGatekeeper(key []byte, log *slog.Logger) *Gatekeeper {
	return &Gatekeeper{key: key, log: log}
}

// Verify checks signature and expiry and returns the authenticated
// identity. Every failure collapses into ErrAuthentication; the caller
// never learns whether the token was malformed, forged or expired.
func (g *Gatekeeper) Verify(token string) (domain.Identity, error) {
	claims, err := ValidateToken(token, g.key)
	if err != nil {
		g.log.Debug("credential rejected", "error", err)
		return domain.Identity{}, fmt.Errorf("%w: %v", errors.ErrAuthentication, err)
	}
	return domain.Identity{
		UserID:   domain.UserID(claims.UserID),
		Username: claims.Username,
		Avatar:   claims.Avatar,
	}, nil
}

// Authenticate extracts the bearer credential from an upgrade request.
// Browsers cannot set headers on websocket handshakes, so a token query
// parameter is accepted as a fallback.
func (g *Gatekeeper) Authenticate(r *http.Request) (domain.Identity, error) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing credential", errors.ErrAuthentication)
	}
	return g.Verify(token)
}
