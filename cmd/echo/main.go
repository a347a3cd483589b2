// Package main boots the Project Echo API server and wires application
// dependencies.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/easeaico/project-echo/internal/agentbuilder"
	"github.com/easeaico/project-echo/internal/config"
	"github.com/easeaico/project-echo/internal/dailyloop"
	"github.com/easeaico/project-echo/internal/evaluator"
	"github.com/easeaico/project-echo/internal/eventchain"
	"github.com/easeaico/project-echo/internal/eventloop"
	"github.com/easeaico/project-echo/internal/handler"
	"github.com/easeaico/project-echo/internal/models"
	"github.com/easeaico/project-echo/internal/repository"
	"github.com/easeaico/project-echo/internal/schedule"
	"github.com/easeaico/project-echo/internal/session"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)
	slog.Info("slog logger initialized", "level", "debug")

	cfg := config.Load()
	slog.Info("configuration loaded", "chat_model", cfg.ChatModel, "image_model", cfg.ImageModel, "listen_addr", cfg.ListenAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := repository.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer store.Close()

	llm, err := models.NewChatClient(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.ChatModel,
		models.WithRetry(cfg.MaxRetries, cfg.RetryBackoff))
	if err != nil {
		log.Fatalf("failed to create llm client: %v", err)
	}

	var images handler.ImageService
	if cfg.GoogleAPIKey != "" {
		generator, err := models.NewAvatarGenerator(ctx, cfg.GoogleAPIKey, cfg.ImageModel, cfg.AspectRatio)
		if err != nil {
			log.Fatalf("failed to create image generator: %v", err)
		}
		images = generator
	} else {
		slog.Warn("GOOGLE_API_KEY not set, avatar generation disabled")
	}

	chainGen := eventchain.NewGenerator(llm, store.EventChains, store.GlobalEvents,
		eventchain.WithRetry(cfg.MaxRetries, cfg.RetryBackoff))
	eval := evaluator.NewEvaluator(llm)
	merger := evaluator.NewMerger(store.Agents, store.EventChains)
	sessions := session.NewManager(store.Dialogs)

	dailyEngine := dailyloop.NewEngine(dailyloop.Config{
		LLM:          llm,
		Agents:       store.Agents,
		Goals:        store.Goals,
		Schedules:    store.Schedules,
		Messages:     store.Messages,
		Scheduler:    schedule.NewGenerator(llm),
		Evaluator:    eval,
		Merger:       merger,
		MaxTurns:     cfg.MaxTurns,
		HistoryLimit: cfg.HistoryLimit,
		IdleTimeout:  cfg.SessionIdleTimeout,
	})

	eventEngine := eventloop.NewEngine(eventloop.Config{
		LLM:      llm,
		Agents:   store.Agents,
		Goals:    store.Goals,
		Chains:   store.EventChains,
		Messages: store.Messages,
	})

	builder := agentbuilder.NewBuilder(llm, store.Agents, store.Goals, chainGen, images)

	h := handler.New(handler.Config{
		Builder:      builder,
		Daily:        dailyEngine,
		Events:       eventEngine,
		Sessions:     sessions,
		Agents:       store.Agents,
		Goals:        store.Goals,
		Chains:       store.EventChains,
		ChainGen:     chainGen,
		GlobalEvents: store.GlobalEvents,
		Messages:     store.Messages,
		Images:       images,
	})

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: handler.NewRouter(h),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.ListenAddr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("graceful shutdown failed", "error", err.Error())
		}
	}

	slog.Info("server shutdown complete")
}
