// Package ws is the websocket transport of the relay: it upgrades
// authenticated HTTP requests into persistent connections, decodes
// inbound frames into service calls and encodes fanned-out domain
// events into wire envelopes.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"chat-relay/auth"
	"chat-relay/services"

	"github.com/gorilla/websocket"
)

// GatewayConfig carries the transport tunables. Zero values are not
// usable; the caller fills it from the process configuration.
type GatewayConfig struct {
	ConnectionBufferSize int
	PingInterval         time.Duration
	PongTimeout          time.Duration
	WriteTimeout         time.Duration
	TeardownTimeout      time.Duration
	SearchLimit          int
}

// Gateway accepts websocket upgrades and hands each authenticated
// connection to the presence service before its pumps start.
type Gateway struct {
	gatekeeper *auth.Gatekeeper
	presence   *services.PresenceService
	rooms      *services.RoomService
	typing     *services.TypingService
	messages   *services.MessageService

	upgrader websocket.Upgrader
	cfg      GatewayConfig
	log      *slog.Logger
}

func NewGateway(log *slog.Logger, cfg GatewayConfig, gatekeeper *auth.Gatekeeper,
	presence *services.PresenceService, rooms *services.RoomService,
	typing *services.TypingService, messages *services.MessageService) *Gateway {
	return &Gateway{
		gatekeeper: gatekeeper,
		presence:   presence,
		rooms:      rooms,
		typing:     typing,
		messages:   messages,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  maxFrameSize,
			WriteBufferSize: maxFrameSize,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		cfg: cfg,
		log: log,
	}
}

// ServeHTTP is the single entry point of the transport. Authentication
// happens before the upgrade: a rejected credential costs a plain 401,
// never a socket.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := g.gatekeeper.Authenticate(r)
	if err != nil {
		g.log.Debug("handshake rejected", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := newClient(g, conn, identity)
	g.presence.Connect(context.Background(), client)
	client.log.Info("connection established", "remote", r.RemoteAddr)

	go client.writePump()
	go client.readPump()
}
