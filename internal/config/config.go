package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// ChainConfig describes the one network the service pays on.
type ChainConfig struct {
	ChainID         int64  `json:"chainId"`
	Name            string `json:"name"`
	CurrencySymbol  string `json:"currencySymbol"`
	CurrencyName    string `json:"currencyName"`
	Decimals        int    `json:"decimals"`
	RPCURL          string `json:"rpcUrl"`
	ExplorerURL     string `json:"explorerUrl"`
	PrivateKey      string `json:"-"`
	BalanceFallback string `json:"balanceFallback"`
}

// PaymentConfig holds the fixed-fee transfer parameters and polling bounds.
type PaymentConfig struct {
	Destination  string `json:"destination"`
	FeeWei       string `json:"feeWei"`
	FeeUnits     int64  `json:"feeUnits"`
	GasLimit     uint64 `json:"gasLimit"`
	PollInterval time.Duration
	MaxAttempts  int
}

// SearchConfig points at the paid search endpoint.
type SearchConfig struct {
	EndpointURL  string `json:"endpointUrl"`
	DefaultLimit int    `json:"defaultLimit"`
	Timeout      time.Duration
}

// NotifyConfig points at the fire-and-forget notification sink.
type NotifyConfig struct {
	SinkURL string `json:"sinkUrl"`
	Timeout time.Duration
}

type ServiceConfig struct {
	HTTPPort      int
	HMACSecret    string
	HMACClockSkew time.Duration
	StorePath     string
	PostgresDSN   string
	LogLevel      string
}

// AppConfig aggregates everything cmd/server needs.
type AppConfig struct {
	Chain   ChainConfig
	Payment PaymentConfig
	Search  SearchConfig
	Notify  NotifyConfig
	Service ServiceConfig
}

type seedFile struct {
	Chain   ChainConfig   `json:"chain"`
	Payment PaymentConfig `json:"payment"`
	Search  SearchConfig  `json:"search"`
	Notify  NotifyConfig  `json:"notify"`
}

const defaultSeedPath = "seed.json"

// Load reads the optional seed file and applies environment overrides.
// A missing seed falls back to the built-in Monad testnet defaults.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := Default()

	seedPath := envOr("SEED_PATH", defaultSeedPath)
	if raw, err := os.ReadFile(seedPath); err == nil {
		var seed seedFile
		if err := json.Unmarshal(raw, &seed); err != nil {
			return nil, fmt.Errorf("parse seed %s: %w", seedPath, err)
		}
		applySeed(cfg, seed)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("load seed: %w", err)
	}

	cfg.Chain.RPCURL = envOr("CHAIN_RPC_URL", cfg.Chain.RPCURL)
	cfg.Chain.PrivateKey = envOr("CHAIN_PRIVATE_KEY", "")
	cfg.Payment.Destination = envOr("PAYMENT_DESTINATION", cfg.Payment.Destination)
	cfg.Payment.PollInterval = time.Duration(envOrInt("PAYMENT_POLL_INTERVAL_MS", int(cfg.Payment.PollInterval/time.Millisecond))) * time.Millisecond
	cfg.Payment.MaxAttempts = envOrInt("PAYMENT_MAX_ATTEMPTS", cfg.Payment.MaxAttempts)
	cfg.Search.EndpointURL = envOr("SEARCH_ENDPOINT_URL", cfg.Search.EndpointURL)
	cfg.Notify.SinkURL = envOr("NOTIFY_SINK_URL", cfg.Notify.SinkURL)

	cfg.Service.HTTPPort = envOrInt("API_HTTP_PORT", cfg.Service.HTTPPort)
	cfg.Service.HMACSecret = envOr("API_HMAC_SECRET", cfg.Service.HMACSecret)
	cfg.Service.HMACClockSkew = time.Duration(envOrInt("HMAC_CLOCK_SKEW_SECONDS", 60)) * time.Second
	cfg.Service.StorePath = envOr("HISTORY_STORE_PATH", cfg.Service.StorePath)
	cfg.Service.PostgresDSN = envOr("HISTORY_POSTGRES_DSN", "")
	cfg.Service.LogLevel = envOr("LOG_LEVEL", cfg.Service.LogLevel)

	return cfg, nil
}

// Default returns the Monad testnet configuration the service ships with.
func Default() *AppConfig {
	return &AppConfig{
		Chain: ChainConfig{
			ChainID:         10143,
			Name:            "Monad Testnet",
			CurrencySymbol:  "MON",
			CurrencyName:    "MON",
			Decimals:        18,
			RPCURL:          "https://testnet-rpc.monad.xyz",
			ExplorerURL:     "https://testnet-explorer.monad.xyz",
			BalanceFallback: "10",
		},
		Payment: PaymentConfig{
			Destination:  "0x28472c620d142DBfe49Bb5A28e680305EFf49aF",
			FeeWei:       "1000000000000000000",
			FeeUnits:     1,
			GasLimit:     21000,
			PollInterval: 2 * time.Second,
			MaxAttempts:  30,
		},
		Search: SearchConfig{
			DefaultLimit: 100,
			Timeout:      30 * time.Second,
		},
		Notify: NotifyConfig{
			Timeout: 5 * time.Second,
		},
		Service: ServiceConfig{
			HTTPPort:      3000,
			HMACClockSkew: time.Minute,
			StorePath:     filepath.Join(os.TempDir(), "monsearch-history.json"),
			LogLevel:      "info",
		},
	}
}

func applySeed(cfg *AppConfig, seed seedFile) {
	if seed.Chain.ChainID != 0 {
		cfg.Chain = seed.Chain
	}
	if seed.Payment.Destination != "" {
		pay := cfg.Payment
		pay.Destination = seed.Payment.Destination
		if seed.Payment.FeeWei != "" {
			pay.FeeWei = seed.Payment.FeeWei
		}
		if seed.Payment.FeeUnits > 0 {
			pay.FeeUnits = seed.Payment.FeeUnits
		}
		if seed.Payment.GasLimit > 0 {
			pay.GasLimit = seed.Payment.GasLimit
		}
		cfg.Payment = pay
	}
	if seed.Search.EndpointURL != "" {
		cfg.Search.EndpointURL = seed.Search.EndpointURL
		if seed.Search.DefaultLimit > 0 {
			cfg.Search.DefaultLimit = seed.Search.DefaultLimit
		}
	}
	if seed.Notify.SinkURL != "" {
		cfg.Notify.SinkURL = seed.Notify.SinkURL
	}
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}
