package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/wendychen0731/chat-app/internal/config"
	"github.com/wendychen0731/chat-app/internal/history"
	"github.com/wendychen0731/chat-app/internal/httpapi"
	"github.com/wendychen0731/chat-app/internal/logging"
	"github.com/wendychen0731/chat-app/internal/presence"
	"github.com/wendychen0731/chat-app/internal/registry"
	"github.com/wendychen0731/chat-app/internal/router"
	"github.com/wendychen0731/chat-app/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// missing .env is fine; env vars may come from anywhere
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Logging)

	db, err := history.Open(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer db.Close()

	store := history.NewBadgerStore(db, logger)
	tracker := presence.NewTracker(logger)
	reg := registry.New(tracker, logger)
	rt := router.New(reg, store, cfg.History.ReplayLimit, logger)

	options := server.DefaultOptions()
	options.ReadTimeout = cfg.Server.ReadTimeout
	options.WriteTimeout = cfg.Server.WriteTimeout
	options.PingInterval = cfg.Server.PingInterval

	ws := server.NewHandler(reg, rt, logger, options)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Get("/ws", ws.ServeWS)
	r.Handle("/history", httpapi.NewHistoryHandler(store, cfg.History.ReplayLimit, logger))

	srv := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     r,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}

	return nil
}
