package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config carries everything the server wires at startup. Values load from an
// optional YAML file over built-in defaults, then environment variables (a
// .env file is honored) override the addresses and secret.
type Config struct {
	HTTPAddr      string `yaml:"http_addr"`
	MetricsAddr   string `yaml:"metrics_addr"`
	SigningSecret string `yaml:"signing_secret"`

	NotificationWorkers int `yaml:"notification_workers"`
	NotificationHistory int `yaml:"notification_history"`

	DefaultCurrency     string  `yaml:"default_currency"`
	DefaultDemoBalance  float64 `yaml:"default_demo_balance"`
	DailyWithdrawLimit  float64 `yaml:"daily_withdraw_limit"`
	VIPWithdrawLimit    float64 `yaml:"vip_withdraw_limit"`
	LowBalanceThreshold float64 `yaml:"low_balance_threshold"`
	ReturnRate          float64 `yaml:"return_rate"`

	// Rates maps currency codes to their USD conversion rate. Empty means
	// the engine's built-in table.
	Rates map[string]float64 `yaml:"rates"`
}

func Default() *Config {
	return &Config{
		HTTPAddr:            ":8080",
		MetricsAddr:         ":9090",
		SigningSecret:       "",
		NotificationWorkers: 3,
		NotificationHistory: 500,
		DefaultCurrency:     "USD",
		DefaultDemoBalance:  10000,
		DailyWithdrawLimit:  5000,
		VIPWithdrawLimit:    20000,
		LowBalanceThreshold: 100,
		ReturnRate:          0.05,
	}
}

// Load reads path if it exists and layers env overrides on top. An empty
// path skips the file entirely.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("LEDGER_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("LEDGER_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("LEDGER_SIGNING_SECRET"); v != "" {
		cfg.SigningSecret = v
	}
	if v := os.Getenv("LEDGER_NOTIFICATION_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.NotificationWorkers = n
		}
	}
}

func (c *Config) validate() error {
	if c.DefaultDemoBalance < 0 {
		return fmt.Errorf("default_demo_balance must not be negative")
	}
	if c.DailyWithdrawLimit <= 0 || c.VIPWithdrawLimit <= 0 {
		return fmt.Errorf("withdraw limits must be positive")
	}
	if c.VIPWithdrawLimit < c.DailyWithdrawLimit {
		return fmt.Errorf("vip_withdraw_limit must not be below daily_withdraw_limit")
	}
	if c.ReturnRate <= 0 {
		return fmt.Errorf("return_rate must be positive")
	}
	for code, rate := range c.Rates {
		if rate <= 0 {
			return fmt.Errorf("rate for %s must be positive", code)
		}
	}
	return nil
}
