package reconcile

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"disputeSync/internal/metrics"
	"disputeSync/internal/model"
	"disputeSync/internal/sequencer"
)

// ErrMissingDraws marks a drawn dispute that carries no draws for its
// current appeal.
var ErrMissingDraws = errors.New("reconcile: drawn dispute without current draws")

// DisputeSource is the ledger capability of one arbitrator context.
type DisputeSource interface {
	ContractAddress() string
	Period(ctx context.Context) (model.Period, error)
	Session(ctx context.Context) (uint64, error)
	Dispute(ctx context.Context, disputeID uint64) (model.LedgerDispute, error)
	DisputesForJuror(ctx context.Context, account string) ([]model.LedgerDispute, error)
	DisputeCreationEvent(ctx context.Context, disputeID uint64) (model.CreationEvent, error)
}

// Projection is the cached store view the engine reads and writes through.
// *projection.Provider implements it.
type Projection interface {
	Disputes(ctx context.Context, account string) ([]model.Dispute, error)
	EnsureProfile(ctx context.Context, account string) (*model.Profile, error)
	UpdateDispute(ctx context.Context, account, arbitrator string, disputeID uint64, params map[string]interface{}) *sequencer.Future
	AddDraws(ctx context.Context, account, arbitrator string, disputeID uint64, draws []uint64, appeal uint64) *sequencer.Future
	UpdateSession(ctx context.Context, account, arbitrator string, session uint64) *sequencer.Future
}

// Engine brings an account's dispute records up to the ledger session.
type Engine struct {
	source     DisputeSource
	projection Projection
	workers    int
	logger     *zap.Logger
}

// NewEngine builds an Engine. workers bounds parallel ledger queries.
func NewEngine(source DisputeSource, projection Projection, workers int, logger *zap.Logger) *Engine {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{source: source, projection: projection, workers: workers, logger: logger}
}

// SyncDisputesForAccount returns the account's disputes in this arbitrator
// context, first pulling new juror draws when the stored session cursor is
// behind the ledger. The cursor is advanced only after every dispute write
// of the session succeeded.
func (e *Engine) SyncDisputesForAccount(ctx context.Context, account string) ([]model.Dispute, error) {
	arbitrator := e.source.ContractAddress()
	log := e.logger.With(zap.String("account", account), zap.String("arbitrator", arbitrator))

	cached, err := e.projection.Disputes(ctx, account)
	if err != nil {
		return nil, e.fail(fmt.Errorf("read disputes: %w", err))
	}
	period, err := e.source.Period(ctx)
	if err != nil {
		return nil, e.fail(fmt.Errorf("get period: %w", err))
	}
	if period == model.PeriodActivation {
		metrics.ReconcileRuns.WithLabelValues("idle").Inc()
		return model.FilterByArbitrator(cached, arbitrator), nil
	}

	session, err := e.source.Session(ctx)
	if err != nil {
		return nil, e.fail(fmt.Errorf("get session: %w", err))
	}
	profile, err := e.projection.EnsureProfile(ctx, account)
	if err != nil {
		return nil, e.fail(fmt.Errorf("ensure profile: %w", err))
	}
	stored := profile.SessionFor(arbitrator)
	if stored >= session {
		metrics.ReconcileRuns.WithLabelValues("current").Inc()
		return model.FilterByArbitrator(profile.Disputes, arbitrator), nil
	}

	log.Info("session behind ledger, syncing draws", zap.Uint64("stored", stored), zap.Uint64("ledger", session), zap.Stringer("period", period))

	drawn, err := e.source.DisputesForJuror(ctx, account)
	if err != nil {
		return nil, e.fail(fmt.Errorf("disputes for juror: %w", err))
	}
	creations, err := e.creationEvents(ctx, drawn)
	if err != nil {
		return nil, e.fail(err)
	}

	for _, d := range drawn {
		if draws, ok := d.DrawsForAppeal(d.NumberOfAppeals); !ok || len(draws) == 0 {
			return nil, e.fail(fmt.Errorf("dispute %d appeal %d: %w", d.ID, d.NumberOfAppeals, ErrMissingDraws))
		}
	}

	futures := make([]*sequencer.Future, 0, 2*len(drawn))
	for i, d := range drawn {
		draws, _ := d.DrawsForAppeal(d.NumberOfAppeals)
		meta := map[string]interface{}{
			"blockNumber":     creations[i].BlockNumber,
			"period":          uint64(period),
			"session":         d.Session,
			"numberOfAppeals": d.NumberOfAppeals,
		}
		if creations[i].Arbitrable != "" {
			meta["arbitrableAddress"] = creations[i].Arbitrable
		}
		futures = append(futures,
			e.projection.UpdateDispute(ctx, account, arbitrator, d.ID, meta),
			e.projection.AddDraws(ctx, account, arbitrator, d.ID, draws, d.NumberOfAppeals),
		)
	}
	if err := sequencer.WaitAll(ctx, futures...); err != nil {
		return nil, e.fail(fmt.Errorf("merge disputes: %w", err))
	}
	if err := e.projection.UpdateSession(ctx, account, arbitrator, session).Wait(ctx); err != nil {
		return nil, e.fail(fmt.Errorf("advance session: %w", err))
	}

	disputes, err := e.projection.Disputes(ctx, account)
	if err != nil {
		return nil, e.fail(fmt.Errorf("read disputes: %w", err))
	}
	metrics.ReconcileRuns.WithLabelValues("synced").Inc()
	log.Info("draws synced", zap.Int("disputes", len(drawn)), zap.Uint64("session", session))
	return model.FilterByArbitrator(disputes, arbitrator), nil
}

func (e *Engine) creationEvents(ctx context.Context, drawn []model.LedgerDispute) ([]model.CreationEvent, error) {
	out := make([]model.CreationEvent, len(drawn))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, d := range drawn {
		g.Go(func() error {
			ev, err := e.source.DisputeCreationEvent(gctx, d.ID)
			if err != nil {
				return fmt.Errorf("creation event of dispute %d: %w", d.ID, err)
			}
			out[i] = ev
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) fail(err error) error {
	metrics.ReconcileRuns.WithLabelValues("error").Inc()
	return err
}
