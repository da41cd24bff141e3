// Command auctiond serves sealed-ascending escrow auctions over vsock or
// TCP, optionally attesting every settlement through the Nitro Security
// Module.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cloudx-io/escrowauction/kvstore"
)

func main() {
	if err := run(); err != nil {
		slog.Error("auctiond stopped", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := LoadConfig(nil)
	if err != nil {
		return err
	}

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      cfg.LogLevel,
		TimeFormat: time.DateTime,
	}))
	slog.SetDefault(logger)

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var attester EnclaveAttester
	if cfg.Attest {
		attester, err = getEnclaveAttester()
		if err != nil {
			return fmt.Errorf("failed to initialize TEE attester: %w", err)
		}
		logger.Info("settlement attestation enabled")
	}

	m := newMetrics(prometheus.DefaultRegisterer)
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger)
	}

	ln, err := Listen(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	host := NewHost(store, cfg, attester, m, logger)
	return NewServer(host, cfg, m, logger).Serve(ctx, ln)
}

func openStore(cfg Config) (kvstore.Store, func(), error) {
	if cfg.DataDir == "" {
		slog.Warn("no data dir configured, state is kept in memory")
		return kvstore.NewMemStore(), func() {}, nil
	}
	db, err := kvstore.OpenLevelDB(cfg.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	slog.Info("opened store", "dir", cfg.DataDir)
	return db, func() {
		if err := db.Close(); err != nil {
			slog.Error("failed to close store", "err", err)
		}
	}, nil
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server stopped", "err", err)
	}
}
