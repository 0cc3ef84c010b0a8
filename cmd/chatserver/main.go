package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/haven/support-chat/internal/config"
	"github.com/haven/support-chat/internal/conversation"
	"github.com/haven/support-chat/internal/events"
	"github.com/haven/support-chat/internal/moderation"
	"github.com/haven/support-chat/internal/presence"
	"github.com/haven/support-chat/internal/ratelimit"
	"github.com/haven/support-chat/internal/rest"
	"github.com/haven/support-chat/internal/session"
	"github.com/haven/support-chat/internal/ws"
)

// wsSender adapts the WebSocket server to the events.Sender interface.
type wsSender struct {
	server *ws.Server
}

func (s *wsSender) Send(connID string, data []byte) error {
	return s.server.SendMessage(connID, data)
}

func (s *wsSender) Broadcast(data []byte) {
	s.server.Connections().Broadcast(data)
}

func main() {
	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: could not load .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	// --- Shared state components ---
	registry := presence.NewRegistry()
	rooms := session.NewRouter()
	conv := conversation.NewStore(
		moderation.NewTermFilter(cfg.BannedTerms),
		moderation.NewSpamFilter(),
	)
	limits := ratelimit.New(cfg.MessageRate, cfg.MessageBurst)

	// --- WebSocket transport ---
	wsConfig := ws.ServerConfig{
		ListenAddr:     cfg.ListenAddr,
		WorkerPoolSize: cfg.WorkerPoolSize,
		MaxConnections: cfg.MaxConnections,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
	}
	dispatcher := ws.NewMessageDispatcher(nil)
	server := ws.NewServer(wsConfig, dispatcher.Dispatch)
	dispatcher.SetServer(server)

	// --- Realtime event handlers ---
	evd := events.New(registry, rooms, conv, limits, &wsSender{server: server})
	evd.Register(dispatcher)
	server.SetOnDisconnect(evd.HandleDisconnect)

	// --- REST API on the same listener ---
	api := rest.New(registry, rooms, conv, evd, rest.Config{
		AdminUsername:   cfg.AdminUsername,
		AdminPassword:   cfg.AdminPassword,
		QuickReplies:    cfg.QuickReplies,
		HelplineContact: cfg.HelplineContact,
	})
	server.SetAppHandler(api.Router())

	log.Printf("support chat server starting")
	log.Printf("  listen_addr:     %s", cfg.ListenAddr)
	log.Printf("  worker_pool:     %d", cfg.WorkerPoolSize)
	log.Printf("  max_connections: %d", cfg.MaxConnections)
	log.Printf("  read_timeout:    %s", cfg.ReadTimeout)
	log.Printf("  write_timeout:   %s", cfg.WriteTimeout)
	log.Printf("  banned_terms:    %d", len(cfg.BannedTerms))
	log.Printf("  message_rate:    %g/s burst %d", cfg.MessageRate, cfg.MessageBurst)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
