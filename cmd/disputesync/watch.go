package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"disputeSync/internal/model"
	"disputeSync/internal/sequencer"
	"disputeSync/internal/watcher"
)

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer a.close()
	cfg, logger := a.cfg, a.logger

	var seen watcher.SeenSet
	if cfg.RedisURL != "" {
		prefix := "disputesync:seen:" + strings.ToLower(cfg.Account) + ":"
		rs, err := watcher.NewRedisSeenSet(cfg.RedisURL, prefix, cfg.SeenTTL)
		if err != nil {
			return err
		}
		defer rs.Close()
		seen = rs
	}

	if err := recordContracts(ctx, a, cfg.Contracts); err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		srv := newMetricsServer(cfg.MetricsAddr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	svc := a.service(seen, a.client.WatchHeads)
	out := json.NewEncoder(cmd.OutOrStdout())
	callback := func(n model.Notification) {
		logger.Info("notification",
			zap.Stringer("type", n.NotificationType),
			zap.String("tx", n.TxHash),
			zap.Uint64("log_index", n.LogIndex),
			zap.String("message", n.Message),
		)
		if err := out.Encode(n); err != nil {
			logger.Warn("write notification failed", zap.Error(err))
		}
	}

	logger.Info("watch start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("arbitrator", a.binding.ContractAddress()),
		zap.String("account", cfg.Account),
		zap.String("store", cfg.Store),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Bool("redis_dedup", seen != nil),
	)
	if _, err := svc.WatchForEvents(ctx, cfg.Account, callback); err != nil {
		return err
	}

	<-ctx.Done()
	svc.StopWatchingForEvents()

	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.provider.Sequencer().Flush(flushCtx); err != nil {
		logger.Warn("pending store writes not flushed", zap.Error(err))
	}
	logger.Info("watch stopped")
	return nil
}

// recordContracts stores the configured contracts so DisputeCreation events
// against them are picked up.
func recordContracts(ctx context.Context, a *app, contracts []string) error {
	futures := make([]*sequencer.Future, 0, len(contracts))
	for _, c := range contracts {
		futures = append(futures, a.provider.UpdateContract(ctx, a.cfg.Account, c, nil))
	}
	if err := sequencer.WaitAll(ctx, futures...); err != nil {
		return fmt.Errorf("record contracts: %w", err)
	}
	return nil
}

func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
