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

	"github.com/joho/godotenv"

	"github.com/commonpurse/commonpurse/internal/app"
	"github.com/commonpurse/commonpurse/internal/config"
	"github.com/commonpurse/commonpurse/internal/export"
	cpHttp "github.com/commonpurse/commonpurse/internal/http"
	activityHandler "github.com/commonpurse/commonpurse/internal/http/activity"
	"github.com/commonpurse/commonpurse/internal/http/auth"
	communityHandler "github.com/commonpurse/commonpurse/internal/http/community"
	exportHandler "github.com/commonpurse/commonpurse/internal/http/export"
	importHandler "github.com/commonpurse/commonpurse/internal/http/importcsv"
	proposalHandler "github.com/commonpurse/commonpurse/internal/http/proposal"
	txHandler "github.com/commonpurse/commonpurse/internal/http/transaction"
	"github.com/commonpurse/commonpurse/internal/roster"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, slog.Default())
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	var (
		rosterService = roster.NewService(a.Treasury)
		exportService = export.NewService(a.Treasury, cfg.Proof.FetchToken)
		authenticator = auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	)

	if !authenticator.Enabled() {
		slog.Warn("AUTH_JWT_SECRET not set, wallet sessions are not enforced")
	}

	router := cpHttp.New(cpHttp.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Auth:           authenticator,
		Health:         a.Store,
	}, cpHttp.Handlers{
		Communities:  communityHandler.NewHandler(a.Treasury),
		Proposals:    proposalHandler.NewHandler(a.Treasury),
		Transactions: txHandler.NewHandler(a.Treasury),
		Activities:   activityHandler.NewHandler(a.Treasury),
		Roster:       importHandler.NewHandler(rosterService),
		Export:       exportHandler.NewHandler(exportService),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "error", err)
		}
	}()

	slog.Info("starting server", "port", srv.Addr, "driver", cfg.DB.Driver)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
