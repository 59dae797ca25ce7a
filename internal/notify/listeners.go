package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"disputeSync/internal/arbitrator"
	"disputeSync/internal/model"
)

// RegisterStoreUpdates subscribes the handlers that keep the account's
// store records in step with the ledger.
func (n *Notifier) RegisterStoreUpdates(s Subscriber) error {
	arb := n.disputes.ContractAddress()
	if err := s.On(arb, arbitrator.EventNewPeriod, n.syncOnNewPeriod, nil); err != nil {
		return fmt.Errorf("register NewPeriod store update: %w", err)
	}
	if err := s.On(arb, arbitrator.EventDisputeCreation, n.recordCreatedDispute, nil); err != nil {
		return fmt.Errorf("register DisputeCreation store update: %w", err)
	}
	return nil
}

func (n *Notifier) syncOnNewPeriod(ctx context.Context, ev model.EventRecord) error {
	if n.syncer == nil {
		return nil
	}
	disputes, err := n.syncer.SyncDisputesForAccount(ctx, n.account)
	if err != nil {
		return fmt.Errorf("sync disputes: %w", err)
	}
	n.logger.Debug("disputes synced on new period", zap.Uint64("block", ev.BlockNumber), zap.Int("disputes", len(disputes)))
	return nil
}

// recordCreatedDispute adds disputes raised against one of the account's contracts.
func (n *Notifier) recordCreatedDispute(ctx context.Context, ev model.EventRecord) error {
	arbitrable, _ := ev.Addr("_arbitrable")
	disputeID, ok := ev.Uint("_disputeID")
	if !ok {
		return fmt.Errorf("DisputeCreation: missing _disputeID")
	}
	profile, found, err := n.profile(ctx)
	if err != nil || !found {
		return err
	}
	if _, owned := profile.FindContract(arbitrable); !owned {
		return nil
	}

	params := map[string]interface{}{
		"blockNumber":       ev.BlockNumber,
		"arbitrableAddress": arbitrable,
	}
	if err := n.projection.UpdateDispute(ctx, n.account, n.disputes.ContractAddress(), disputeID, params).Wait(ctx); err != nil {
		return fmt.Errorf("record dispute %d: %w", disputeID, err)
	}
	return nil
}
