package main

import (
	"context"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"monsearch/internal/config"
	"monsearch/internal/history"
	"monsearch/internal/logger"
	"monsearch/internal/metrics"
	"monsearch/internal/notify"
	"monsearch/internal/payment"
	"monsearch/internal/search"
	"monsearch/internal/server"
	"monsearch/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zlog := logger.NewZap(cfg.Service.LogLevel)

	ctx := context.Background()

	var kv history.KV
	var storeHealth func(context.Context) error
	if cfg.Service.PostgresDSN != "" {
		pg, err := history.NewPostgresKV(ctx, cfg.Service.PostgresDSN)
		if err != nil {
			log.Fatalf("history store error: %v", err)
		}
		defer pg.Close()
		kv = pg
		storeHealth = pg.Ping
	} else {
		fileKV, err := history.NewFileKV(cfg.Service.StorePath)
		if err != nil {
			log.Fatalf("history store error: %v", err)
		}
		kv = fileKV
	}

	hist, err := history.Load(ctx, kv)
	if err != nil {
		log.Fatalf("history load error: %v", err)
	}

	notifier := notify.New(cfg.Notify.SinkURL, cfg.Notify.Timeout, hist.NotificationsEnabled, zlog)

	var provider wallet.Provider
	var rpcHealth func(context.Context) error
	if cfg.Chain.PrivateKey != "" {
		ethProvider, err := wallet.NewEthProvider(ctx, wallet.EthProviderConfig{
			RPCURL:        cfg.Chain.RPCURL,
			PrivateKeyHex: cfg.Chain.PrivateKey,
		})
		if err != nil {
			log.Fatalf("wallet provider error: %v", err)
		}
		provider = ethProvider
		rpcHealth = ethProvider.Ping
	} else {
		// No key configured: run against a scripted provider so the flow
		// stays demonstrable without funds.
		provider = &wallet.FakeProvider{
			Accounts:     []string{"0x0000000000000000000000000000000000000001"},
			BalanceWei:   new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18)),
			TransferHash: "0x0000000000000000000000000000000000000000000000000000000000000001",
			Receipts:     []*wallet.Receipt{{Success: true}},
		}
	}

	fallback, err := decimal.NewFromString(cfg.Chain.BalanceFallback)
	if err != nil {
		fallback = decimal.NewFromInt(10)
	}

	session := wallet.NewSession(provider, wallet.ChainParams{
		ChainID:        cfg.Chain.ChainID,
		Name:           cfg.Chain.Name,
		CurrencyName:   cfg.Chain.CurrencyName,
		CurrencySymbol: cfg.Chain.CurrencySymbol,
		Decimals:       cfg.Chain.Decimals,
		RPCURL:         cfg.Chain.RPCURL,
		ExplorerURL:    cfg.Chain.ExplorerURL,
	}, fallback, zlog)

	feeWei, ok := new(big.Int).SetString(cfg.Payment.FeeWei, 10)
	if !ok {
		log.Fatalf("invalid fee wei: %s", cfg.Payment.FeeWei)
	}

	reg := metrics.NewRegistry()

	executor := payment.NewExecutor(session, hist, notifier, payment.Config{
		Destination:  cfg.Payment.Destination,
		FeeWei:       feeWei,
		FeeUnits:     cfg.Payment.FeeUnits,
		GasLimit:     cfg.Payment.GasLimit,
		PollInterval: cfg.Payment.PollInterval,
		MaxAttempts:  cfg.Payment.MaxAttempts,
	}, zlog, reg)

	endpoint := search.NewClient(cfg.Search.EndpointURL, cfg.Search.Timeout)
	orchestrator := search.NewOrchestrator(executor, endpoint, session, hist, notifier,
		cfg.Payment.FeeUnits, cfg.Search.DefaultLimit, zlog, reg)

	apiServer := server.NewServer(cfg, session, orchestrator, hist, notifier, reg, zlog)
	if rpcHealth != nil {
		apiServer.SetRPCHealth(rpcHealth)
	}
	if storeHealth != nil {
		apiServer.SetStoreHealth(storeHealth)
	}

	go func() {
		if err := apiServer.Start(); err != nil {
			zlog.Warn("server stopped", map[string]any{"error": err.Error()})
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = apiServer.Shutdown(shutdownCtx)
}
