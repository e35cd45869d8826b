package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-relay/auth"
	"chat-relay/infrastructure/ws"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/registry"
	"chat-relay/repositories"
	"chat-relay/runtime/workers"
	"chat-relay/services"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for the HTTP server and background workers.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Storage (BadgerDB + bluge index)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	//  Defer will be executed before run() returned anything to main()
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	indexWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return fmt.Errorf("index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing bluge index...")
		_ = indexWriter.Close()
	}()

	// 3. Persistence collaborators
	messages := repositories.NewMessageRepository(db, log, config.HistoryPageSize)
	presence := repositories.NewPresenceRepository(db, log)
	social := repositories.NewSocialRepository(db, log)
	search := repositories.NewSearchIndex(indexWriter, log)

	// 4. Moderation
	mask, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	var filter *moderation.Filter
	if words := config.CensoredWordList(); len(words) > 0 {
		filter, err = moderation.NewFilter(words, mask)
		if err != nil {
			return fmt.Errorf("moderation dictionary rejected: %w", err)
		}
	}

	// 5. Core: registries and services
	stats := &observability.Stats{}
	sessions := registry.NewSessionRegistry(log, presence)
	rooms := registry.NewRoomManager(log)
	notify := services.NewNotifyService(log, sessions, rooms, stats)
	presenceService := services.NewPresenceService(log, sessions, rooms, social, notify)
	roomService := services.NewRoomService(log, rooms)
	typingService := services.NewTypingService(log, rooms, stats)
	messageService := services.NewMessageService(
		log, messages, search, social, sessions, rooms, notify, filter, stats,
	)

	// 6. Transport
	gatekeeper := auth.NewGatekeeper([]byte(config.JWTSecret), log)
	gateway := ws.NewGateway(log, ws.GatewayConfig{
		ConnectionBufferSize: config.ConnectionBufferSize,
		PingInterval:         config.PingInterval,
		PongTimeout:          config.PongTimeout,
		WriteTimeout:         config.WriteTimeout,
		TeardownTimeout:      config.TeardownTimeout,
		SearchLimit:          config.SearchLimit,
	}, gatekeeper, presenceService, roomService, typingService, messageService)

	mux := http.NewServeMux()
	mux.Handle("/ws", gateway)

	// 7. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 8. Supervised background workers
	sup := workers.NewSupervisor(log, config.RestartInterval).Add(
		workers.NewHeartbeatWorker(log, config.MetricInterval, sessions, rooms, stats),
		workers.NewStorageGCWorker(log, db, config.GCInterval),
	)
	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		sup.Run(ctx)
	}()

	if config.DebugPort > 0 {
		internal.StartDebugServer(db, config.DebugPort, nil, func() map[string]any {
			snapshot := stats.Snapshot()
			return map[string]any{
				"connections":   sessions.ConnectionCount(),
				"online_users":  sessions.UserCount(),
				"rooms":         rooms.RoomCount(),
				"messages_sent": snapshot.MessagesSent,
				"messages_read": snapshot.MessagesRead,
			}
		})
	}

	// 9. HTTP Server
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: mux}

	// Use an error channel to capture ListenAndServe() issues
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting websocket server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	// 10. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 11. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server shutdown incomplete", "error", err)
	}
	sup.Stop()
	<-supDone
	log.Info("Program stopped cleanly")

	return nil
}
