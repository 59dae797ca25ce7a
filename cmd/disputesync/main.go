package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"disputeSync/internal/arbitrator"
	"disputeSync/internal/chain"
	"disputeSync/internal/config"
	"disputeSync/internal/projection"
	"disputeSync/internal/service"
	"disputeSync/internal/store"
	"disputeSync/internal/store/memory"
	"disputeSync/internal/store/postgres"
	"disputeSync/internal/watcher"
)

func main() {
	root := &cobra.Command{
		Use:          "disputesync",
		Short:        "Dispute ledger projection and notifications",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file path")
	pf.String("account", "", "account address")
	pf.String("rpc", "", "ledger RPC URL (ws:// enables head subscriptions)")
	pf.String("arbitrator", "", "arbitrator contract address")
	pf.Uint64("arbitrator-from-block", 0, "arbitrator deployment block")
	pf.String("store", config.StoreHTTP, "store backend (http, postgres, memory)")
	pf.String("store-uri", "", "remote store base URL")
	pf.String("pg-dsn", "", "Postgres DSN")
	pf.Duration("http-timeout", 30*time.Second, "remote store request timeout")
	pf.Uint64("batch-size", 2000, "blocks per log query")
	pf.Int("workers", 4, "parallel ledger reads")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch arbitrator events for an account",
		RunE:  runWatch,
	}
	watchCmd.Flags().Duration("poll-interval", 5*time.Second, "log poll interval")
	watchCmd.Flags().Duration("tick-timeout", 30*time.Second, "timeout for one poll tick")
	watchCmd.Flags().Int("max-retries", 5, "maximum retry attempts per log query")
	watchCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	watchCmd.Flags().String("redis-url", "", "redis URL for event dedup across restarts")
	watchCmd.Flags().Duration("seen-ttl", 72*time.Hour, "redis dedup key lifetime")
	watchCmd.Flags().String("metrics-addr", "", "prometheus listen address (e.g. :9102)")
	watchCmd.Flags().StringSlice("contracts", nil, "arbitrable contracts owned by the account (comma-separated)")
	root.AddCommand(watchCmd)

	root.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Reconcile the account's disputes and print them",
		RunE:  runSync,
	})

	root.AddCommand(&cobra.Command{
		Use:   "profile",
		Short: "Print the account profile",
		RunE:  runProfile,
	})

	notificationsCmd := &cobra.Command{
		Use:   "notifications",
		Short: "Manage account notifications",
	}
	readCmd := &cobra.Command{
		Use:   "read <tx-hash> <log-index>",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(2),
		RunE:  runNotificationRead,
	}
	readCmd.Flags().Bool("unread", false, "mark as unread instead")
	notificationsCmd.AddCommand(readCmd)
	root.AddCommand(notificationsCmd)

	contractsCmd := &cobra.Command{
		Use:   "contracts",
		Short: "Manage arbitrable contracts owned by the account",
	}
	contractsCmd.AddCommand(&cobra.Command{
		Use:   "add <address> [key=value...]",
		Short: "Record a contract, merging optional fields",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runContractAdd,
	})
	root.AddCommand(contractsCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds what every subcommand builds from config.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	store    store.Store
	provider *projection.Provider
	client   *chain.Client
	binding  *arbitrator.Binding
	closers  []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}

func setup(ctx context.Context, cmd *cobra.Command, withLedger bool) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	if !common.IsHexAddress(cfg.Account) {
		a.close()
		return nil, fmt.Errorf("invalid account address: %q", cfg.Account)
	}
	validate := cfg.ValidateStore
	if withLedger {
		validate = cfg.ValidateLedger
	}
	if err := validate(); err != nil {
		a.close()
		return nil, err
	}

	if err := a.openStore(ctx); err != nil {
		a.close()
		return nil, err
	}
	a.provider = projection.NewProvider(a.store, logger.Named("projection"))

	if withLedger {
		if err := a.openLedger(ctx); err != nil {
			a.close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Store {
	case config.StorePostgres:
		pg, err := postgres.NewStore(ctx, a.cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		a.store = pg
	case config.StoreMemory:
		a.logger.Warn("using in-memory store, state is lost on exit")
		a.store = memory.NewStore()
	default:
		a.store = store.NewHTTPStore(a.cfg.StoreURI, a.cfg.HTTPTimeout, a.logger.Named("store"))
	}
	return nil
}

func (a *app) openLedger(ctx context.Context) error {
	client, err := chain.NewClient(ctx, a.cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	a.client = client
	a.closers = append(a.closers, client.Close)

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	a.logger.Info("ledger connected", zap.String("rpc", a.cfg.RPCURL), zap.String("chain_id", chainID.String()))

	binding, err := arbitrator.NewBinding(client, arbitrator.Config{
		Address:   a.cfg.Arbitrator,
		FromBlock: a.cfg.ArbitratorFromBlock,
		BatchSize: a.cfg.BatchSize,
		Workers:   a.cfg.Workers,
	}, a.logger.Named("arbitrator"))
	if err != nil {
		return err
	}
	a.binding = binding
	return nil
}

func (a *app) service(seen watcher.SeenSet, heads service.HeadSource) *service.Service {
	return service.New(a.client, a.binding, a.provider, seen, heads, service.Config{
		Watch: watcher.Config{
			PollInterval: a.cfg.PollInterval,
			TickTimeout:  a.cfg.TickTimeout,
			BatchSize:    a.cfg.BatchSize,
			MaxRetries:   a.cfg.MaxRetries,
			RetryBackoff: a.cfg.RetryBackoff,
		},
		FromBlock: a.cfg.ArbitratorFromBlock,
		Workers:   a.cfg.Workers,
	}, a.logger.Named("service"))
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
