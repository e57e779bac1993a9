package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"moodspace/internal/auth"
	"moodspace/internal/config"
	"moodspace/internal/feed"
	"moodspace/internal/guidance"
	"moodspace/internal/journal"
	"moodspace/internal/llm"
	"moodspace/internal/mood"
	"moodspace/internal/notify"
	"moodspace/internal/player"
	"moodspace/internal/realtime"
	"moodspace/internal/session"
	"moodspace/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	classifier, completer, err := buildModels(ctx, cfg, logger)
	if err != nil {
		return err
	}

	broker, err := buildBroker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer broker.Close()

	store, err := session.Open(ctx, session.Options{Backend: cfg.Storage.Backend, DSN: cfg.Storage.DSN}, logger)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Storage.Backend, err)
	}
	defer store.Close()

	journalStore, err := journal.NewFileStore(cfg.Journal.File)
	if err != nil {
		return err
	}

	catalog := player.NewCatalog()
	if cfg.Catalog.File != "" {
		if err := catalog.LoadFile(cfg.Catalog.File); err != nil {
			return err
		}
	}

	opts := realtime.Options{
		Classifier: classifier,
		Sessions:   session.NewRecorder(store, broker, logger),
		Broker:     broker,
		Notices:    notify.NewCenter(broker, logger),
		Catalog:    catalog,
		Journal:    journalStore,
		Verifier:   auth.NewVerifier(cfg.Auth.JWTSecret),
		StaticDir:  cfg.Server.StaticDir,
		Logger:     logger,
	}
	if completer != nil {
		opts.Guider = guidance.NewGenerator(completer, logger)
	}
	rtServer := realtime.New(opts)

	// Initialize catalog watcher.
	catalogWatch := watcher.New(func(path string) {
		if err := catalog.LoadFile(path); err != nil {
			logger.Warn("catalog reload rejected", zap.String("path", path), zap.Error(err))
			return
		}
		logger.Info("catalog reloaded", zap.String("path", path))
		rtServer.OnCatalogReload()
	}, logger)
	if cfg.Catalog.File != "" {
		if err := catalogWatch.Watch(cfg.Catalog.File); err != nil {
			return fmt.Errorf("watch catalog: %w", err)
		}
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           rtServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("moodspace server running",
			zap.String("addr", "http://localhost"+httpServer.Addr),
			zap.String("classifier", cfg.Classifier.Provider),
			zap.String("storage", cfg.Storage.Backend),
			zap.String("feed", cfg.Feed.Backend),
			zap.Bool("auth", cfg.Auth.JWTSecret != ""),
		)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		catalogWatch.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		rtServer.Close()
		return err
	})
	return g.Wait()
}

// buildModels picks the classifier and the completer used for guidance.
// The completer is nil when no hosted model is configured.
func buildModels(ctx context.Context, cfg *config.Config, logger *zap.Logger) (mood.Classifier, llm.Completer, error) {
	newOpenAI := func() (*llm.OpenAI, error) {
		return llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout,
		}, logger)
	}
	newGemini := func() (*llm.Gemini, error) {
		return llm.NewGemini(ctx, llm.GeminiConfig{APIKey: cfg.Gemini.APIKey, Model: cfg.Gemini.Model}, logger)
	}

	switch cfg.Classifier.Provider {
	case "openai":
		o, err := newOpenAI()
		if err != nil {
			return nil, nil, err
		}
		return o, o, nil
	case "gemini":
		g, err := newGemini()
		if err != nil {
			return nil, nil, err
		}
		return g, g, nil
	case "keyword":
		keyword := mood.NewKeywordClassifier()
		switch {
		case !cfg.GuidanceEnabled():
			logger.Warn("no hosted model configured; action guidance disabled")
			return keyword, nil, nil
		case cfg.LLM.APIKey != "":
			o, err := newOpenAI()
			if err != nil {
				return nil, nil, err
			}
			return keyword, o, nil
		default:
			g, err := newGemini()
			if err != nil {
				return nil, nil, err
			}
			return keyword, g, nil
		}
	default:
		return nil, nil, fmt.Errorf("unknown classifier provider %q", cfg.Classifier.Provider)
	}
}

func buildBroker(ctx context.Context, cfg *config.Config, logger *zap.Logger) (feed.Broker, error) {
	if cfg.Feed.Backend == "redis" {
		return feed.NewRedisBroker(ctx, feed.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
	}
	return feed.NewLocalBroker(), nil
}
