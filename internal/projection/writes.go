package projection

import (
	"context"
	"fmt"

	"disputeSync/internal/model"
	"disputeSync/internal/sequencer"
)

// UpdateContract merges params into the stored contract record.
func (p *Provider) UpdateContract(ctx context.Context, account, contract string, params map[string]interface{}) *sequencer.Future {
	return p.enqueue(ctx, account, func(ctx context.Context) error {
		profile, err := p.loadOrCreate(ctx, account)
		if err != nil {
			return err
		}
		body := model.Fields{}
		if current, ok := profile.FindContract(contract); ok {
			if body, err = model.FieldsOf(current); err != nil {
				return err
			}
			delete(body, "_id")
		}
		update, err := model.FieldsFromMap(params)
		if err != nil {
			return err
		}
		body.Merge(update)
		if err := body.Set("address", contract); err != nil {
			return err
		}
		return p.store.UpdateContract(ctx, account, contract, body)
	})
}

// UpdateDispute merges params into the dispute record. Stored fields not in
// params are posted back unchanged, so the record only grows.
func (p *Provider) UpdateDispute(ctx context.Context, account, arbitrator string, disputeID uint64, params map[string]interface{}) *sequencer.Future {
	return p.enqueue(ctx, account, func(ctx context.Context) error {
		profile, err := p.loadOrCreate(ctx, account)
		if err != nil {
			return err
		}
		body := model.Fields{}
		if current, ok := profile.FindDispute(arbitrator, disputeID); ok {
			if body, err = model.FieldsOf(current); err != nil {
				return err
			}
			delete(body, "_id")
		}
		update, err := model.FieldsFromMap(params)
		if err != nil {
			return err
		}
		body.Merge(update)
		if err := body.Set("disputeId", disputeID); err != nil {
			return err
		}
		if err := body.Set("arbitratorAddress", arbitrator); err != nil {
			return err
		}
		return p.store.UpdateDispute(ctx, account, arbitrator, disputeID, body)
	})
}

// AddDraws records the juror's draws for one appeal round of a dispute.
func (p *Provider) AddDraws(ctx context.Context, account, arbitrator string, disputeID uint64, draws []uint64, appeal uint64) *sequencer.Future {
	draws = append([]uint64(nil), draws...)
	return p.enqueue(ctx, account, func(ctx context.Context) error {
		return p.store.AddDraws(ctx, account, arbitrator, disputeID, draws, appeal)
	})
}

// UpdateSession advances the session cursor of an arbitrator context.
// The cursor never moves backwards.
func (p *Provider) UpdateSession(ctx context.Context, account, arbitrator string, session uint64) *sequencer.Future {
	return p.enqueue(ctx, account, func(ctx context.Context) error {
		profile, err := p.loadOrCreate(ctx, account)
		if err != nil {
			return err
		}
		key := model.AddressKey(arbitrator)
		if profile.Sessions[key] >= session {
			return nil
		}
		sessions := make(map[string]uint64, len(profile.Sessions)+1)
		for k, v := range profile.Sessions {
			sessions[k] = v
		}
		sessions[key] = session
		return p.store.UpdateSessions(ctx, account, sessions)
	})
}

// UpdateLastBlock advances the account's last processed block.
func (p *Provider) UpdateLastBlock(ctx context.Context, account string, block uint64) *sequencer.Future {
	return p.enqueue(ctx, account, func(ctx context.Context) error {
		profile, err := p.loadOrCreate(ctx, account)
		if err != nil {
			return err
		}
		if profile.LastBlock >= block {
			return nil
		}
		return p.store.UpdateLastBlock(ctx, account, block)
	})
}

// NewNotification stores n unless a notification for the same log exists.
// It reports whether n was created.
func (p *Provider) NewNotification(ctx context.Context, account string, n model.Notification) (bool, error) {
	created := false
	f := p.enqueue(ctx, account, func(ctx context.Context) error {
		profile, err := p.loadOrCreate(ctx, account)
		if err != nil {
			return err
		}
		if profile.HasNotification(n.TxHash, n.LogIndex) {
			return nil
		}
		if err := p.store.PutNotification(ctx, account, n.TxHash, n); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err := f.Wait(ctx); err != nil {
		return false, fmt.Errorf("store notification: %w", err)
	}
	return created, nil
}

// MarkNotificationRead sets the read flag and returns the updated notifications.
func (p *Provider) MarkNotificationRead(ctx context.Context, account, txHash string, logIndex uint64, read bool) ([]model.Notification, error) {
	f := p.enqueue(ctx, account, func(ctx context.Context) error {
		return p.store.MarkNotificationRead(ctx, account, txHash, logIndex, read)
	})
	if err := f.Wait(ctx); err != nil {
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	profile, err := p.Profile(ctx, account)
	if err != nil {
		return nil, err
	}
	return profile.Notifications, nil
}
