package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/room4-2/gemini-chat/audio"
	"github.com/room4-2/gemini-chat/chat"
	"github.com/room4-2/gemini-chat/config"
	"github.com/room4-2/gemini-chat/gemini"
	"github.com/room4-2/gemini-chat/knowledge"
	"github.com/room4-2/gemini-chat/log"
	"github.com/room4-2/gemini-chat/prompts"
	"github.com/room4-2/gemini-chat/server"
	"github.com/room4-2/gemini-chat/session"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.SetLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey,
		gemini.WithTranscriptionModel(cfg.TranscriptionModel))
	if err != nil {
		log.Fatalf("Failed to create Gemini client: %v", err)
	}

	sessionManager := session.NewManager(cfg)

	kb, err := knowledge.NewStore(cfg.KnowledgeDir, sessionManager.Redis())
	if err != nil {
		log.Fatalf("Failed to open knowledge base: %v", err)
	}

	transcriber := audio.NewTranscriber(client, cfg.TempDir, prompts.MustLoad().Transcription.Instruction)
	srv := server.New(cfg, sessionManager, chat.NewService(client, transcriber), kb)

	// Start cleanup routine
	go sessionManager.StartCleanupRoutine(ctx)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("Received shutdown signal...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Server shutdown error: %v", err)
		}
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}

	log.Info("Server stopped")
}
