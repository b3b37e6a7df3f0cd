package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/qumail/webmail/internal/api"
	"github.com/qumail/webmail/internal/auth"
	"github.com/qumail/webmail/internal/config"
	"github.com/qumail/webmail/internal/credentials"
	"github.com/qumail/webmail/internal/hosted"
	"github.com/qumail/webmail/internal/inbox"
	"github.com/qumail/webmail/internal/outbound"
	"github.com/qumail/webmail/internal/rawmail"
	"github.com/qumail/webmail/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx := context.Background()
	db, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		logger.Error("ensure schema", "error", err)
		os.Exit(1)
	}

	authManager, err := auth.New(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		logger.Error("init auth", "error", err)
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set; sessions reset on restart")
	}

	resolver := credentials.NewResolver(db, cfg.GoogleClientID, cfg.GoogleSecret, logger)
	openHosted := func(ctx context.Context, creds *credentials.HostedCreds) (inbox.HostedMailbox, error) {
		return hosted.NewClient(ctx, creds.Token, logger)
	}
	openRaw := func(creds *credentials.RawCreds) inbox.RawMailbox {
		return rawmail.NewClient(creds.Host, creds.Port, creds.Username, creds.Password, creds.TLS, logger)
	}
	inboxService := inbox.NewService(resolver, openHosted, openRaw, rawmail.ParseLocalID, cfg.DefaultQuery, logger)
	sender := outbound.NewSender(cfg.SMTPHost, cfg.SMTPPort, logger)

	apiServer := api.NewServer(cfg, db, authManager, inboxService, sender, resolver, logger)

	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	httpSrv := &http.Server{
		Addr:    httpAddr,
		Handler: apiServer,
	}

	go func() {
		logger.Info("http server listening", "addr", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("shutdown http", "error", err)
	}
}
