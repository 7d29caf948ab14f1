// Command crowdchess runs the crowd-play engine: it reads a config file
// path from argv, connects to the remote chess service and a chat feed,
// and drives the event loop in internal/engine until interrupted. Grounded
// on cmd/server/main.go's wiring shape (goroutine-per-listener, signal-driven
// graceful shutdown) adapted from an HTTP API server to a single background
// engine plus a small admin surface.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chess-crowd/internal/chatclient"
	"chess-crowd/internal/config"
	"chess-crowd/internal/engine"
	"chess-crowd/internal/events"
	"chess-crowd/internal/lichessapi"
	"chess-crowd/internal/presentation"
	"chess-crowd/internal/telemetry"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: %s <config-file>", os.Args[0])
	}

	cfg, err := config.Load(os.Args[1])
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var store *telemetry.Store
	if cfg.Telemetry.MongoURI != "" {
		store, err = telemetry.Connect(cfg.Telemetry.MongoURI, cfg.Telemetry.Database)
		if err != nil {
			log.Fatalf("failed to connect telemetry store: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			store.Close(ctx)
		}()
		log.Printf("telemetry connected to database %s", cfg.Telemetry.Database)
	} else {
		log.Println("telemetry not configured, engine decisions are not recorded")
	}

	actor := lichessapi.NewClient(cfg.Lichess.BaseURL, cfg.Lichess.AccessToken, 200*time.Millisecond)

	account, err := actor.GetAccount(context.Background())
	if err != nil {
		log.Fatalf("failed to fetch bot account: %v", err)
	}
	log.Printf("authenticated as %s (%s)", account.Username, account.ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	external := make(chan events.ExternalEvent, 256)
	stream := lichessapi.NewStream(cfg.Lichess.BaseURL, cfg.Lichess.AccessToken, external)
	go stream.Run(ctx)

	if cfg.Chat.Channel != "" {
		chatSource, err := newChatSource(cfg)
		if err != nil {
			log.Fatalf("failed to set up chat feed: %v", err)
		}
		go func() {
			if err := chatclient.Run(ctx, chatSource, external); err != nil && ctx.Err() == nil {
				log.Printf("chat feed ended: %v", err)
			}
		}()
	} else {
		log.Println("no chat channel configured, running without crowd input")
	}

	hub := presentation.NewHub()
	stopHub := make(chan struct{})
	go hub.Run(stopHub)
	defer close(stopHub)

	eng := engine.New(engine.Deps{
		OurID:     account.ID,
		Actor:     actor,
		External:  external,
		Streamer:  stream,
		Hub:       hub,
		Telemetry: store,
	})

	admin := &http.Server{
		Addr:         cfg.Admin.ListenAddr,
		Handler:      presentation.NewServer(hub, eng.Model),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Printf("admin server listening on %s", cfg.Admin.ListenAddr)
		if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("admin server error: %v", err)
		}
	}()

	eng.Setup(ctx)
	go eng.Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := admin.Shutdown(shutdownCtx); err != nil {
		log.Printf("admin server shutdown error: %v", err)
	}

	log.Println("stopped")
}

// newChatSource opens the configured chat feed as a chatclient.LineSource.
// A real deployment bridges the actual chat platform (e.g. Twitch IRC, a
// Discord bot) into a local FIFO of "username: text" lines; this reads that
// FIFO the same way the reference client reads ndjson: line by line, never
// re-parsing more than what's newly available. The bridge process itself is
// out of scope here, same as the video rendering pipeline (spec.md §1).
func newChatSource(cfg *config.Config) (chatclient.LineSource, error) {
	path := cfg.Chat.FeedPath
	if path == "" {
		return nil, fmt.Errorf("chat.channel is set but chat.feedPath is not configured")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening chat feed %s: %w", path, err)
	}
	return chatclient.NewReaderSource(f), nil
}
