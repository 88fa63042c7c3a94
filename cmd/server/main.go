// Package main boots the analysis service and wires application dependencies.
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

	"github.com/meliorhq/melior/internal/analysis"
	"github.com/meliorhq/melior/internal/config"
	"github.com/meliorhq/melior/internal/llm"
	"github.com/meliorhq/melior/internal/memory"
	"github.com/meliorhq/melior/internal/repository"
	"github.com/meliorhq/melior/internal/server"
	"github.com/meliorhq/melior/internal/subscription"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	cfg := config.Load()
	slog.Info("configuration loaded", "llm_provider", cfg.LLMProvider, "cache_ttl", cfg.CacheTTL, "http_addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := repository.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer store.Close()

	var embedder memory.Embedder
	if cfg.GoogleAPIKey != "" {
		genaiEmbedder, err := memory.NewGenAIEmbedder(ctx, cfg.GoogleAPIKey, cfg.EmbeddingModel)
		if err != nil {
			log.Fatalf("failed to create embedder: %v", err)
		}
		embedder = genaiEmbedder
	} else {
		slog.Warn("no google api key configured, semantic recall disabled")
	}

	aggregator := memory.NewAggregator(store.Signals, store.Signals, embedder, memory.AggregatorConfig{
		SourceLimit:         cfg.SourceLimit,
		SourceTimeout:       cfg.SourceTimeout,
		MaxSignalAge:        cfg.MaxSignalAge,
		MaxContextChars:     cfg.MaxContextChars,
		WindowSize:          cfg.WindowSize,
		TopK:                cfg.TopK,
		SimilarityThreshold: cfg.SimilarityThreshold,
	})

	cache, err := memory.NewCache(aggregator, memory.CacheConfig{
		TTL:        cfg.CacheTTL,
		MaxEntries: cfg.CacheMaxEntries,
		RebuildCap: cfg.RebuildCap,
	})
	if err != nil {
		log.Fatalf("failed to create memory cache: %v", err)
	}

	ingestor := memory.NewIngestor(store.Signals, cache, embedder)

	backend, err := llm.New(ctx, &cfg)
	if err != nil {
		log.Fatalf("failed to create generative backend: %v", err)
	}
	if backend == nil {
		slog.Warn("generative backend disabled, every domain uses the heuristic analyzer")
	}

	analyzer := analysis.NewAnalyzer(backend, cfg.AnalysisDeadline)
	gate := subscription.NewGate(store.Subscriptions, subscription.Config{
		FreeQuota:    cfg.FreeQuota,
		PremiumQuota: cfg.PremiumQuota,
		Period:       cfg.QuotaPeriod,
	})
	facade := analysis.NewFacade(gate, cache, analyzer)

	handler := server.NewHandler(facade, gate, ingestor)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server failed: %v", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "error", err.Error())
		}
	}

	slog.Info("server shutdown complete")
}
