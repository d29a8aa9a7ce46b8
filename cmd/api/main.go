package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PresaleSettlement/internal/config"
	"PresaleSettlement/internal/db"
	"PresaleSettlement/internal/distributor"
	"PresaleSettlement/internal/events"
	internalhttp "PresaleSettlement/internal/http"
	"PresaleSettlement/internal/ledger"
	"PresaleSettlement/internal/pricing"
	"PresaleSettlement/internal/services"
	"PresaleSettlement/internal/store"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	bus := events.NewBus()
	st := store.New(pool, bus)
	orderSvc := &services.OrderService{
		Store:           st,
		PaymentCurrency: cfg.Presale.PaymentCurrency,
	}
	pricingSvc := pricing.Service{
		TokenPrice:  cfg.Presale.TokenPrice,
		CurrencyUSD: cfg.Presale.CurrencyUSD,
	}

	var dist *distributor.Distributor
	if cfg.Wallet.SeedPhrase != "" {
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
		log.Printf("distribution wallet: %s", client.HolderAddress())
		dist = &distributor.Distributor{
			Store:     st,
			Ledger:    client,
			BatchSize: cfg.Worker.BatchSize,
		}
	} else {
		log.Printf("distribution wallet seed phrase not set; /admin/distributions/run disabled")
	}

	h := &internalhttp.Handler{
		Orders:      orderSvc,
		Queries:     st,
		Pricing:     pricingSvc,
		Events:      bus,
		Distributor: dist,
	}
	srv := internalhttp.NewServer(h)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router,
	}

	go func() {
		log.Printf("api listening on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}
