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

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/call-signaling/config"
	"github.com/mossy-p/call-signaling/internal/auth"
	"github.com/mossy-p/call-signaling/internal/handlers"
	"github.com/mossy-p/call-signaling/internal/logging"
	"github.com/mossy-p/call-signaling/internal/middleware"
	"github.com/mossy-p/call-signaling/internal/redis"
	"github.com/mossy-p/call-signaling/internal/signaling"
	"github.com/mossy-p/call-signaling/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.Environment)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	tokens := auth.NewTokenService(cfg.JWTSecret, 0, st)

	var presence signaling.Presence
	var online handlers.OnlineLister
	if cfg.Redis.Enabled() {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		p := redis.NewPresence(client)
		defer p.Close()
		if err := p.Reset(ctx); err != nil {
			logger.Warn("failed to reset presence set", "error", err)
		}
		presence, online = p, p
		logger.Info("Redis connection established")
	}

	hub := signaling.NewHub(ctx, tokens, st, presence, signaling.Options{
		SendBufferSize: cfg.Socket.SendBufferSize,
		MaxMessageSize: cfg.Socket.MaxMessageSize,
		FrameRateLimit: cfg.Socket.FrameRateLimit,
		FrameRateBurst: cfg.Socket.FrameRateBurst,
		StoreTimeout:   cfg.StoreTimeout,
	}, logger)
	if online == nil {
		online = hub
	}

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	handlers.Register(router, handlers.Deps{
		Hub:              hub,
		Users:            st,
		Calls:            st,
		Tokens:           tokens,
		Authenticator:    tokens,
		Online:           online,
		ICEServers:       cfg.ICEServers,
		AllowedOrigins:   cfg.AllowedOrigins,
		HandshakeLimiter: middleware.NewIPRateLimiter(ctx, cfg.Socket.HandshakeRateLimit, cfg.Socket.HandshakeRateBurst, 5*time.Minute),
		Log:              logger,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting call signaling server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	if err := hub.Shutdown(shutdownCtx); err != nil {
		logger.Error("socket shutdown timed out", "error", err)
	}

	logger.Info("Server exited gracefully")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.DatabaseURI == "" {
		logger.Warn("DATABASE_URI not set, using in-memory store")
		return store.NewMemoryStore(), nil
	}

	st, err := store.OpenPostgres(ctx, cfg.DatabaseURI)
	if err != nil {
		return nil, err
	}
	logger.Info("Postgres connection established")
	return st, nil
}
