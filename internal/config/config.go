package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Store backends.
const (
	StoreHTTP     = "http"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL              string
	Arbitrator          string
	ArbitratorFromBlock uint64
	Account             string
	Contracts           []string

	Store       string
	StoreURI    string
	PGDSN       string
	HTTPTimeout time.Duration

	PollInterval time.Duration
	TickTimeout  time.Duration
	BatchSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
	Workers      int

	RedisURL    string
	SeenTTL     time.Duration
	MetricsAddr string
	LogLevel    string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DISPUTESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("store", StoreHTTP)
	v.SetDefault("http-timeout", 30*time.Second)
	v.SetDefault("poll-interval", 5*time.Second)
	v.SetDefault("tick-timeout", 30*time.Second)
	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("workers", 4)
	v.SetDefault("seen-ttl", 72*time.Hour)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:              v.GetString("rpc"),
		Arbitrator:          v.GetString("arbitrator"),
		ArbitratorFromBlock: v.GetUint64("arbitrator-from-block"),
		Account:             v.GetString("account"),
		Contracts:           getStringSlice(v, "contracts"),
		Store:               strings.ToLower(v.GetString("store")),
		StoreURI:            v.GetString("store-uri"),
		PGDSN:               v.GetString("pg-dsn"),
		HTTPTimeout:         v.GetDuration("http-timeout"),
		PollInterval:        v.GetDuration("poll-interval"),
		TickTimeout:         v.GetDuration("tick-timeout"),
		BatchSize:           v.GetUint64("batch-size"),
		MaxRetries:          v.GetInt("max-retries"),
		RetryBackoff:        v.GetDuration("retry-backoff"),
		Workers:             v.GetInt("workers"),
		RedisURL:            v.GetString("redis-url"),
		SeenTTL:             v.GetDuration("seen-ttl"),
		MetricsAddr:         v.GetString("metrics-addr"),
		LogLevel:            v.GetString("log-level"),
	}

	return cfg, nil
}

// ValidateLedger checks the settings every ledger-facing command needs.
func (c Config) ValidateLedger() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if c.Arbitrator == "" {
		return fmt.Errorf("arbitrator address is required")
	}
	return c.ValidateStore()
}

// ValidateStore checks the store backend selection.
func (c Config) ValidateStore() error {
	switch c.Store {
	case StoreHTTP:
		if c.StoreURI == "" {
			return fmt.Errorf("store uri is required for the http store")
		}
	case StorePostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("pg dsn is required for the postgres store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store backend: %s", c.Store)
	}
	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	switch typed := v.Get(key).(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		if typed == "" {
			return nil
		}
		return cleanStrings(strings.Split(typed, ","))
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
