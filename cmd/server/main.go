package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"escrowledger/internal/config"
	"escrowledger/internal/db"
	"escrowledger/internal/handlers"
	"escrowledger/internal/logging"
	"escrowledger/internal/services"
	"escrowledger/internal/store"
	"escrowledger/internal/tracing"
	"escrowledger/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown", "error", err)
		}
	}()

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	feePercent, err := cfg.FeePercent()
	if err != nil {
		return err
	}
	hub := websocket.NewHub()
	engine := services.New(services.Deps{
		TxRunner:   db.NewTxRunner(database, cfg.TxMaxAttempts),
		Wallets:    store.NewWalletStore(database),
		Ledger:     store.NewLedgerStore(database),
		Escrow:     store.NewEscrowStore(database),
		Orders:     store.NewOrderStore(database),
		Disputes:   store.NewDisputeStore(database),
		Payments:   store.NewPaymentStore(database),
		Audit:      store.NewAuditStore(database),
		Hub:        hub,
		FeePercent: feePercent,
	})

	handler := handlers.New(cfg, logger, engine.Wallets, engine.Auditor, engine.Gateway, hub)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("escrow ledger listening", "addr", server.Addr, "env", cfg.AppEnv, "fee_percent", feePercent.String())
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	return server.Shutdown(shutdownCtx)
}
