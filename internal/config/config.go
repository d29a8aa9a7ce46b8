package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	DB struct {
		DSN string `yaml:"dsn"`
	} `yaml:"db"`
	Wallet struct {
		// SeedPhrase funds outgoing token transfers. Supplied via env in
		// production; move to a secret store before any real deployment.
		SeedPhrase string `yaml:"seed_phrase"`
	} `yaml:"wallet"`
	Chain struct {
		RPCEndpoint     string `yaml:"rpc_endpoint"`
		ChainID         int64  `yaml:"chain_id"`
		TokenContract   string `yaml:"token_contract"`
		ConfirmAttempts int    `yaml:"confirm_attempts"`
		ConfirmSeconds  int64  `yaml:"confirm_interval_seconds"`
	} `yaml:"chain"`
	Presale struct {
		PaymentCurrency string `yaml:"payment_currency"`
		TokenPrice      string `yaml:"token_price"`
		CurrencyUSD     string `yaml:"currency_usd"`
	} `yaml:"presale"`
	Worker struct {
		BatchSize       int   `yaml:"batch_size"`
		IntervalSeconds int64 `yaml:"interval_seconds"`
	} `yaml:"worker"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if cfg.Server.Addr == "" {
		return nil, errors.New("server.addr is required")
	}
	if cfg.DB.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	if cfg.Chain.RPCEndpoint == "" || cfg.Chain.ChainID == 0 || cfg.Chain.TokenContract == "" {
		return nil, errors.New("chain config is incomplete")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Presale.PaymentCurrency == "" {
		cfg.Presale.PaymentCurrency = "POL"
	}
	if cfg.Presale.TokenPrice == "" {
		cfg.Presale.TokenPrice = "0.00001"
	}
	if cfg.Chain.ConfirmAttempts == 0 {
		cfg.Chain.ConfirmAttempts = 20
	}
	if cfg.Chain.ConfirmSeconds == 0 {
		cfg.Chain.ConfirmSeconds = 3
	}
	if cfg.Worker.BatchSize == 0 {
		cfg.Worker.BatchSize = 10
	}
	if cfg.Worker.IntervalSeconds == 0 {
		cfg.Worker.IntervalSeconds = 60
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("DISTRIBUTION_WALLET_SEED_PHRASE"); v != "" {
		cfg.Wallet.SeedPhrase = v
	}
	if v := os.Getenv("CHAIN_RPC_ENDPOINT"); v != "" {
		cfg.Chain.RPCEndpoint = v
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		cfg.Chain.ChainID = atoi64Or(cfg.Chain.ChainID, v)
	}
	if v := os.Getenv("TOKEN_CONTRACT"); v != "" {
		cfg.Chain.TokenContract = v
	}
	if v := os.Getenv("CONFIRM_ATTEMPTS"); v != "" {
		cfg.Chain.ConfirmAttempts = atoiOr(cfg.Chain.ConfirmAttempts, v)
	}
	if v := os.Getenv("CONFIRM_INTERVAL_SECONDS"); v != "" {
		cfg.Chain.ConfirmSeconds = atoi64Or(cfg.Chain.ConfirmSeconds, v)
	}
	if v := os.Getenv("PAYMENT_CURRENCY"); v != "" {
		cfg.Presale.PaymentCurrency = v
	}
	if v := os.Getenv("TOKEN_PRICE"); v != "" {
		cfg.Presale.TokenPrice = v
	}
	if v := os.Getenv("CURRENCY_USD"); v != "" {
		cfg.Presale.CurrencyUSD = v
	}
	if v := os.Getenv("WORKER_BATCH_SIZE"); v != "" {
		cfg.Worker.BatchSize = atoiOr(cfg.Worker.BatchSize, v)
	}
	if v := os.Getenv("WORKER_INTERVAL_SECONDS"); v != "" {
		cfg.Worker.IntervalSeconds = atoi64Or(cfg.Worker.IntervalSeconds, v)
	}
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return i
}

func atoi64Or(fallback int64, v string) int64 {
	i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return fallback
	}
	return i
}
