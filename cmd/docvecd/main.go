// docvecd is the document vectorization daemon: it accepts uploads over
// HTTP, processes them in a background worker (layout analysis, section
// splitting, embedding) and serves the resulting vector store.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chamlab/docvec/api"
	"github.com/chamlab/docvec/dbopen"
	"github.com/chamlab/docvec/embedder"
	"github.com/chamlab/docvec/ingest"
	"github.com/chamlab/docvec/taskstore"
	"github.com/chamlab/docvec/tokenize"
	"github.com/chamlab/docvec/vecstore"
)

func main() {
	configPath := flag.String("config", env("DOCVEC_CONFIG", "docvecd.yaml"), "path to YAML config")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Task queue.
	taskDB, err := dbopen.Open(cfg.TaskDBPath, dbopen.WithMkdirAll())
	if err != nil {
		logger.Error("task db", "error", err)
		os.Exit(1)
	}
	defer taskDB.Close()

	tasks := taskstore.New(taskDB, taskstore.Options{Logger: logger})
	if err := tasks.EnsureTable(ctx); err != nil {
		logger.Error("task table", "error", err)
		os.Exit(1)
	}
	if _, err := tasks.RequeueStale(ctx, time.Duration(cfg.StaleMinutes)*time.Minute); err != nil {
		logger.Warn("requeue stale tasks", "error", err)
	}

	// Vector store.
	store, err := vecstore.New(vecstore.Config{DBPath: cfg.VectorDBPath, Logger: logger})
	if err != nil {
		logger.Error("vector store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Tokenizer.
	var codec tokenize.Codec
	if cfg.TokenizerPath != "" {
		codec, err = tokenize.LoadHF(cfg.TokenizerPath)
		if err != nil {
			logger.Error("tokenizer", "path", cfg.TokenizerPath, "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("no tokenizer configured, using whitespace tokens")
		codec = tokenize.NewWordCodec()
	}

	emb := embedder.New(embedder.Config{
		Endpoint:  cfg.Embedding.Endpoint,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
		BatchSize: cfg.Embedding.BatchSize,
		Logger:    logger,
	})

	proc, err := ingest.New(ingest.Config{
		ImageDir:   cfg.ImageDir,
		BaseURL:    cfg.BaseURL,
		WindowSize: cfg.WindowSize,
		Overlap:    cfg.Overlap,
		Codec:      codec,
		Embedder:   emb,
		Store:      store,
		Tasks:      tasks,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("processor", "error", err)
		os.Exit(1)
	}

	// Background worker and housekeeping.
	go tasks.Run(ctx, proc.Process)
	go housekeeping(ctx, tasks, store, time.Duration(cfg.PurgeHours)*time.Hour, logger)

	// HTTP surface.
	svc, err := api.New(api.Config{
		UploadDir: cfg.UploadDir,
		ImageDir:  cfg.ImageDir,
		Tasks:     tasks,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("api", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()

	logger.Info("docvecd started", "listen", cfg.Listen, "indexed", store.Count())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server", "error", err)
		os.Exit(1)
	}
	logger.Info("docvecd stopped")
}

// housekeeping purges old finished tasks and compacts the vector index
// once an hour.
func housekeeping(ctx context.Context, tasks *taskstore.Store, store *vecstore.Store, keep time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := tasks.PurgeOld(ctx, keep); err != nil {
				logger.Warn("purge old tasks", "error", err)
			} else if n > 0 {
				logger.Info("purged old tasks", "n", n)
			}
			if err := store.Rebuild(ctx, false); err != nil {
				logger.Warn("index rebuild", "error", err)
			}
		}
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
