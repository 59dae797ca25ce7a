package notify

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"disputeSync/internal/arbitrator"
	"disputeSync/internal/model"
	"disputeSync/internal/sequencer"
	"disputeSync/internal/store"
	"disputeSync/internal/watcher"
)

// Callback receives every newly created notification.
type Callback func(n model.Notification)

// Subscriber registers event handlers. *watcher.Session implements it.
type Subscriber interface {
	On(address, event string, handler watcher.Handler, match watcher.Predicate) error
}

// Projection is the store view handlers read and write through.
type Projection interface {
	Profile(ctx context.Context, account string) (*model.Profile, error)
	NewNotification(ctx context.Context, account string, n model.Notification) (bool, error)
	UpdateDispute(ctx context.Context, account, arbitrator string, disputeID uint64, params map[string]interface{}) *sequencer.Future
}

// BlockClock resolves block timestamps.
type BlockClock interface {
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// DisputeReader reads live dispute state from the arbitrator.
type DisputeReader interface {
	ContractAddress() string
	Dispute(ctx context.Context, disputeID uint64) (model.LedgerDispute, error)
}

// Syncer reconciles an account's disputes with the ledger.
type Syncer interface {
	SyncDisputesForAccount(ctx context.Context, account string) ([]model.Dispute, error)
}

// Notifier turns arbitrator events into notifications and store updates
// for one account.
type Notifier struct {
	account    string
	disputes   DisputeReader
	projection Projection
	clock      BlockClock
	syncer     Syncer
	callback   Callback
	logger     *zap.Logger
}

// New builds a Notifier. A nil callback only stores notifications.
func New(account string, disputes DisputeReader, projection Projection, clock BlockClock, syncer Syncer, callback Callback, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		account:    account,
		disputes:   disputes,
		projection: projection,
		clock:      clock,
		syncer:     syncer,
		callback:   callback,
		logger:     logger.With(zap.String("account", account)),
	}
}

// RegisterNotifications subscribes the notification handlers.
func (n *Notifier) RegisterNotifications(s Subscriber) error {
	arb := n.disputes.ContractAddress()
	regs := []struct {
		event   string
		handler watcher.Handler
		match   watcher.Predicate
	}{
		{arbitrator.EventNewPeriod, n.onNewPeriod, nil},
		{arbitrator.EventDisputeCreation, n.onDisputeCreation, nil},
		{arbitrator.EventAppealPossible, n.onAppealPossible, nil},
		{arbitrator.EventAppealDecision, n.onAppealDecision, nil},
		{arbitrator.EventTokenShift, n.onTokenShift, n.forAccount},
		{arbitrator.EventArbitrationReward, n.onArbitrationReward, n.forAccount},
	}
	for _, r := range regs {
		if err := s.On(arb, r.event, r.handler, r.match); err != nil {
			return fmt.Errorf("register %s notifications: %w", r.event, err)
		}
	}
	return nil
}

func (n *Notifier) forAccount(ev model.EventRecord) bool {
	addr, ok := ev.Addr("_account")
	return ok && model.SameAddress(addr, n.account)
}

func (n *Notifier) onNewPeriod(ctx context.Context, ev model.EventRecord) error {
	period, ok := ev.Uint("_period")
	if !ok {
		return fmt.Errorf("NewPeriod: missing _period")
	}
	session, _ := ev.Uint("_session")

	switch model.Period(period) {
	case model.PeriodActivation:
		return n.emit(ctx, ev, model.NotificationCanActivate, "Ready to activate tokens", map[string]interface{}{
			"session": session,
		})
	case model.PeriodExecution:
		ids, err := n.repartitionable(ctx, session)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return n.emit(ctx, ev, model.NotificationCanRepartition, "Ready to repartition dispute", map[string]interface{}{
			"session":    session,
			"disputeIds": ids,
		})
	default:
		return nil
	}
}

// repartitionable lists the account's disputes still open in session.
func (n *Notifier) repartitionable(ctx context.Context, session uint64) ([]uint64, error) {
	profile, ok, err := n.profile(ctx)
	if err != nil || !ok {
		return nil, err
	}
	ids := make([]uint64, 0)
	for _, d := range model.FilterByArbitrator(profile.Disputes, n.disputes.ContractAddress()) {
		live, err := n.disputes.Dispute(ctx, d.DisputeID)
		if err != nil {
			return nil, fmt.Errorf("read dispute %d: %w", d.DisputeID, err)
		}
		if live.CurrentSession() == session && live.State != model.DisputeExecuted {
			ids = append(ids, d.DisputeID)
		}
	}
	return ids, nil
}

func (n *Notifier) onDisputeCreation(ctx context.Context, ev model.EventRecord) error {
	arbitrable, _ := ev.Addr("_arbitrable")
	profile, ok, err := n.profile(ctx)
	if err != nil || !ok {
		return err
	}
	if _, owned := profile.FindContract(arbitrable); !owned {
		return nil
	}
	disputeID, _ := ev.Uint("_disputeID")
	return n.emit(ctx, ev, model.NotificationDisputeCreated, "New dispute created", map[string]interface{}{
		"disputeId":         disputeID,
		"arbitrableAddress": arbitrable,
	})
}

func (n *Notifier) onAppealPossible(ctx context.Context, ev model.EventRecord) error {
	disputeID, ok := ev.Uint("_disputeID")
	if !ok {
		return fmt.Errorf("AppealPossible: missing _disputeID")
	}
	if held, err := n.hasDispute(ctx, disputeID); err != nil || !held {
		return err
	}
	return n.emit(ctx, ev, model.NotificationAppealPossible, "Ruling may be appealed", map[string]interface{}{
		"disputeId": disputeID,
	})
}

func (n *Notifier) onAppealDecision(ctx context.Context, ev model.EventRecord) error {
	disputeID, ok := ev.Uint("_disputeID")
	if !ok {
		return fmt.Errorf("AppealDecision: missing _disputeID")
	}
	if held, err := n.hasDispute(ctx, disputeID); err != nil || !held {
		return err
	}
	arbitrable, _ := ev.Addr("_arbitrable")
	return n.emit(ctx, ev, model.NotificationRulingAppealed, "A ruling has been appealed", map[string]interface{}{
		"disputeId":         disputeID,
		"arbitrableAddress": arbitrable,
	})
}

func (n *Notifier) onTokenShift(ctx context.Context, ev model.EventRecord) error {
	disputeID, _ := ev.Uint("_disputeID")
	return n.emit(ctx, ev, model.NotificationTokenShift, "Tokens have been shifted", map[string]interface{}{
		"disputeId": disputeID,
		"amount":    amountOf(ev),
	})
}

func (n *Notifier) onArbitrationReward(ctx context.Context, ev model.EventRecord) error {
	disputeID, _ := ev.Uint("_disputeID")
	return n.emit(ctx, ev, model.NotificationArbitrationReward, "Arbitration reward paid", map[string]interface{}{
		"disputeId": disputeID,
		"amount":    amountOf(ev),
	})
}

func (n *Notifier) emit(ctx context.Context, ev model.EventRecord, typ model.NotificationType, message string, data map[string]interface{}) error {
	data["blockNumber"] = ev.BlockNumber
	if n.clock != nil {
		ts, err := n.clock.BlockTimestamp(ctx, ev.BlockNumber)
		if err != nil {
			n.logger.Debug("block timestamp unavailable", zap.Uint64("block", ev.BlockNumber), zap.Error(err))
		} else {
			data["timestamp"] = ts
		}
	}

	note := model.Notification{
		TxHash:           ev.TxHash,
		LogIndex:         ev.LogIndex,
		NotificationType: typ,
		Message:          message,
		Data:             data,
	}
	created, err := n.projection.NewNotification(ctx, n.account, note)
	if err != nil {
		return err
	}
	if created && n.callback != nil {
		n.callback(note)
	}
	return nil
}

func (n *Notifier) hasDispute(ctx context.Context, disputeID uint64) (bool, error) {
	profile, ok, err := n.profile(ctx)
	if err != nil || !ok {
		return false, err
	}
	_, held := profile.FindDispute(n.disputes.ContractAddress(), disputeID)
	return held, nil
}

// profile reports ok=false for an account without a stored profile.
func (n *Notifier) profile(ctx context.Context) (*model.Profile, bool, error) {
	profile, err := n.projection.Profile(ctx, n.account)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read profile: %w", err)
	}
	return profile, true, nil
}

func amountOf(ev model.EventRecord) string {
	if v, ok := ev.Args["_amount"].(*big.Int); ok && v != nil {
		return v.String()
	}
	return "0"
}
