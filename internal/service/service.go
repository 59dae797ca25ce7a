package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"disputeSync/internal/model"
	"disputeSync/internal/notify"
	"disputeSync/internal/projection"
	"disputeSync/internal/reconcile"
	"disputeSync/internal/watcher"
)

// Ledger is the chain surface used for watching. *chain.Client implements it.
type Ledger interface {
	watcher.Ledger
	notify.BlockClock
}

// Arbitrator is one arbitrator binding. *arbitrator.Binding implements it.
type Arbitrator interface {
	reconcile.DisputeSource
	watcher.Decoder
}

// HeadSource pushes new block numbers; used to trigger ticks early.
type HeadSource func(ctx context.Context) (<-chan uint64, error)

// Config wires a Service.
type Config struct {
	Watch watcher.Config
	// FromBlock is where watching starts for an account without a last block.
	FromBlock uint64
	Workers   int
}

// Service is the exposed surface: watch an account's events and reconcile
// its disputes.
type Service struct {
	ledger     Ledger
	arbitrator Arbitrator
	provider   *projection.Provider
	engine     *reconcile.Engine
	seen       watcher.SeenSet
	heads      HeadSource
	cfg        Config
	logger     *zap.Logger

	mu          sync.Mutex
	session     *watcher.Session
	stopHeads   context.CancelFunc
	watchedAcct string
}

// New builds a Service. seen and heads may be nil.
func New(ledger Ledger, arb Arbitrator, provider *projection.Provider, seen watcher.SeenSet, heads HeadSource, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		ledger:     ledger,
		arbitrator: arb,
		provider:   provider,
		engine:     reconcile.NewEngine(arb, provider, cfg.Workers, logger),
		seen:       seen,
		heads:      heads,
		cfg:        cfg,
		logger:     logger,
	}
}

// Projection exposes the cached store view.
func (s *Service) Projection() *projection.Provider {
	return s.provider
}

// SyncDisputesForAccount reconciles and returns the account's disputes.
func (s *Service) SyncDisputesForAccount(ctx context.Context, account string) ([]model.Dispute, error) {
	return s.engine.SyncDisputesForAccount(ctx, account)
}

// WatchForEvents replaces any running watch with one for account. Events
// become notifications passed to callback and store updates; watching
// resumes after the account's last processed block.
func (s *Service) WatchForEvents(ctx context.Context, account string, callback notify.Callback) (*watcher.Session, error) {
	s.StopWatchingForEvents()

	session := watcher.New(s.ledger, s.seen, s.cfg.Watch, s.logger.Named("watcher"))
	if err := session.AddSource(s.arbitrator.ContractAddress(), s.arbitrator); err != nil {
		return nil, err
	}
	n := notify.New(account, s.arbitrator, s.provider, s.ledger, s.engine, callback, s.logger.Named("notify"))
	if err := n.RegisterNotifications(session); err != nil {
		return nil, err
	}
	if err := n.RegisterStoreUpdates(session); err != nil {
		return nil, err
	}
	session.OnCheckpoint(func(ctx context.Context, block uint64) {
		if err := s.provider.UpdateLastBlock(ctx, account, block).Wait(ctx); err != nil {
			s.logger.Warn("last block update failed", zap.String("account", account), zap.Uint64("block", block), zap.Error(err))
		}
	})

	headsCtx, stopHeads := context.WithCancel(ctx)
	if s.heads != nil {
		ch, err := s.heads(headsCtx)
		if err != nil {
			s.logger.Info("head subscription unavailable, polling only", zap.Error(err))
		} else {
			session.SubscribeHeads(ch)
		}
	}

	from := s.cfg.FromBlock
	if last := s.provider.LastBlock(ctx, account); last > 0 {
		from = last + 1
	}
	if err := session.Start(ctx, from); err != nil {
		stopHeads()
		return nil, fmt.Errorf("start watcher: %w", err)
	}

	s.mu.Lock()
	s.session = session
	s.stopHeads = stopHeads
	s.watchedAcct = account
	s.mu.Unlock()
	s.logger.Info("watching events", zap.String("account", account), zap.Uint64("from_block", from))
	return session, nil
}

// StopWatchingForEvents stops the running watch, if any. The handler in
// progress finishes first; queued store writes are not cancelled.
func (s *Service) StopWatchingForEvents() {
	s.mu.Lock()
	session, stopHeads, account := s.session, s.stopHeads, s.watchedAcct
	s.session, s.stopHeads, s.watchedAcct = nil, nil, ""
	s.mu.Unlock()

	if session == nil {
		return
	}
	session.Stop()
	stopHeads()
	s.logger.Info("stopped watching events", zap.String("account", account))
}
