package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gatekeep/internal/auth"
	"gatekeep/internal/config"
	"gatekeep/internal/handlers"
	"gatekeep/internal/logging"
	"gatekeep/internal/session"
	"gatekeep/internal/storage"
	"gatekeep/web"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args, ".env")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if cfg.SecretGenerated {
		logger.Warn("SESSION_SECRET not set; using a random key, sessions will not survive a restart")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(ctx, cfg.DBDriver, cfg.DBDSN, storage.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	authSvc := auth.NewService(db, logger)
	if cfg.AdminUser != "" && cfg.AdminPassword != "" {
		if _, err := authSvc.EnsureAdmin(ctx, cfg.AdminUser, cfg.AdminPassword); err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}
	}

	sessions := session.NewManager([]byte(cfg.SessionSecret),
		session.WithIdleTimeout(cfg.SessionIdleTimeout),
		session.WithSecure(cfg.SecureCookie),
		session.WithLogger(logger),
	)
	logger.WithFields(logrus.Fields{
		"idle_timeout":  sessions.IdleTimeout().String(),
		"secure_cookie": cfg.SecureCookie,
	}).Info("session settings")
	h := handlers.NewHandlers(authSvc, db, web.Templates, logger)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           setupRouter(h, sessions, web.Static),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return serve(ctx, server, logger)
}

func setupRouter(h *handlers.Handlers, sessions *session.Manager, static fs.FS) *mux.Router {
	r := handlers.NewRouter(h, sessions)
	r.PathPrefix("/static/").Handler(http.FileServer(http.FS(static)))
	return r
}

func serve(ctx context.Context, server *http.Server, logger logrus.FieldLogger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", server.Addr).Info("starting server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
