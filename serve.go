package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/gogo/gallerybot/internal/adapter/llm"
	"github.com/xiaot623/gogo/gallerybot/internal/config"
	"github.com/xiaot623/gogo/gallerybot/internal/identity"
	"github.com/xiaot623/gogo/gallerybot/internal/logging"
	"github.com/xiaot623/gogo/gallerybot/internal/policy"
	"github.com/xiaot623/gogo/gallerybot/internal/ratelimit"
	"github.com/xiaot623/gogo/gallerybot/internal/repository"
	"github.com/xiaot623/gogo/gallerybot/internal/service"
	handler "github.com/xiaot623/gogo/gallerybot/internal/transport/http"
	"github.com/xiaot623/gogo/gallerybot/internal/transport/ws"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chatbot HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting gallerybot",
		zap.String("version", config.Version),
		zap.Int("port", cfg.HTTP.Port),
		zap.String("database", cfg.Database.Driver))

	// Initialize store
	db, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer db.Close()

	// Initialize LLM client
	llmClient, err := llm.NewClient(ctx, cfg.LLM, logger.Named("llm"))
	if err != nil {
		return fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	// Initialize policy engine
	policySrc := policy.DefaultPolicy
	if cfg.Auth.PolicyFile != "" {
		b, err := os.ReadFile(cfg.Auth.PolicyFile)
		if err != nil {
			return fmt.Errorf("failed to read policy file: %w", err)
		}
		policySrc = string(b)
	}
	policyEngine, err := policy.NewEngine(ctx, policySrc)
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	auth := identity.NewAuthenticator(cfg.Auth.JWTSecret)
	if !auth.Enabled() {
		logger.Warn("auth.jwt_secret is empty, admin endpoints are unreachable")
	}

	limiter := ratelimit.NewFixedWindow(cfg.RateLimit.Window, cfg.RateLimit.Quota)

	// Initialize service
	svc := service.New(db, llmClient, cfg, logger.Named("service"))

	hub := ws.NewHub()
	wsServer := ws.NewServer(cfg.WS, hub, svc, limiter, logger.Named("ws"))
	e, err := handler.NewServer(svc, handler.Deps{
		Limiter:        limiter,
		Auth:           auth,
		Policy:         policyEngine,
		WS:             wsServer,
		Logger:         logger.Named("http"),
		TrustedProxies: cfg.HTTP.TrustedProxies,
	})
	if err != nil {
		return fmt.Errorf("failed to configure http server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		svc.RunSessionSweeper(gctx, limiter)
		return nil
	})

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
		logger.Info("http server listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gallerybot")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		hub.CloseAll()
		err := e.Shutdown(shutdownCtx)
		svc.Close()
		if err != nil {
			return fmt.Errorf("failed to shutdown server gracefully: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("gallerybot stopped")
	return nil
}
