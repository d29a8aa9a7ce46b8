package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"PresaleSettlement/internal/config"
	"PresaleSettlement/internal/db"
	"PresaleSettlement/internal/distributor"
	"PresaleSettlement/internal/ledger"
	"PresaleSettlement/internal/store"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if cfg.Wallet.SeedPhrase == "" {
		log.Fatalf("distribution wallet seed phrase is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	client, err := ledger.NewERC20Client(
		cfg.Chain.RPCEndpoint,
		cfg.Chain.ChainID,
		cfg.Chain.TokenContract,
		cfg.Wallet.SeedPhrase,
		ledger.RetryPolicy{
			MaxAttempts: cfg.Chain.ConfirmAttempts,
			Interval:    time.Duration(cfg.Chain.ConfirmSeconds) * time.Second,
		},
	)
	if err != nil {
		log.Fatalf("ledger client init failed: %v", err)
	}

	dist := &distributor.Distributor{
		Store:     store.New(pool, nil),
		Ledger:    client,
		BatchSize: cfg.Worker.BatchSize,
	}

	interval := time.Duration(cfg.Worker.IntervalSeconds) * time.Second
	log.Printf("worker started (rpc=%s wallet=%s interval=%s)",
		cfg.Chain.RPCEndpoint, client.HolderAddress(), interval)

	// One process, one batch at a time: concurrent runs would race the
	// custodial balance and nonce.
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		report, err := dist.RunBatch(ctx)
		if err != nil {
			log.Printf("distribution batch error: %v", err)
		}
		if report.Total > 0 {
			log.Printf("distribution batch done processed=%d total=%d", report.Processed, report.Total)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
