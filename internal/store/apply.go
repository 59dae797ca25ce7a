package store

import (
	"encoding/json"
	"fmt"

	"disputeSync/internal/model"
)

// The Apply functions implement the store's server-side merge semantics on a
// profile document. Backends that own their storage (memory, postgres) share them.

// ApplyContract merges body into the contract record for address.
func ApplyContract(p *model.Profile, address string, body model.Fields) error {
	current := model.Fields{}
	idx := -1
	for i, c := range p.Contracts {
		if model.SameAddress(c.Address, address) {
			fields, err := model.FieldsOf(c)
			if err != nil {
				return err
			}
			current, idx = fields, i
			break
		}
	}
	current.Merge(body)
	if err := current.Set("address", address); err != nil {
		return err
	}

	var contract model.Contract
	if err := decodeFields(current, &contract); err != nil {
		return err
	}
	if idx >= 0 {
		p.Contracts[idx] = contract
	} else {
		p.Contracts = append(p.Contracts, contract)
	}
	return nil
}

// ApplyDispute merges body into the dispute record for (arbitrator, disputeID).
func ApplyDispute(p *model.Profile, arbitrator string, disputeID uint64, body model.Fields) error {
	current := model.Fields{}
	idx := findDispute(p, arbitrator, disputeID)
	if idx >= 0 {
		fields, err := model.FieldsOf(p.Disputes[idx])
		if err != nil {
			return err
		}
		current = fields
	}
	current.Merge(body)
	if err := current.Set("arbitratorAddress", arbitrator); err != nil {
		return err
	}
	if err := current.Set("disputeId", disputeID); err != nil {
		return err
	}

	var dispute model.Dispute
	if err := decodeFields(current, &dispute); err != nil {
		return err
	}
	if idx >= 0 {
		p.Disputes[idx] = dispute
	} else {
		p.Disputes = append(p.Disputes, dispute)
	}
	return nil
}

// ApplyDraws stores draws at index appeal of the dispute's appeal draws.
// Missing earlier rounds are padded with empty sets.
func ApplyDraws(p *model.Profile, arbitrator string, disputeID uint64, draws []uint64, appeal uint64) error {
	idx := findDispute(p, arbitrator, disputeID)
	if idx < 0 {
		p.Disputes = append(p.Disputes, model.Dispute{ArbitratorAddress: arbitrator, DisputeID: disputeID})
		idx = len(p.Disputes) - 1
	}
	d := &p.Disputes[idx]
	for uint64(len(d.AppealDraws)) <= appeal {
		d.AppealDraws = append(d.AppealDraws, []uint64{})
	}
	d.AppealDraws[appeal] = append([]uint64(nil), draws...)
	return nil
}

// ApplyNotification inserts or replaces the notification for (txHash, logIndex).
func ApplyNotification(p *model.Profile, txHash string, n model.Notification) {
	n.TxHash = txHash
	for i, existing := range p.Notifications {
		if existing.Is(txHash, n.LogIndex) {
			p.Notifications[i] = n
			return
		}
	}
	p.Notifications = append(p.Notifications, n)
}

// ApplyRead sets the read flag of a notification.
func ApplyRead(p *model.Profile, txHash string, logIndex uint64, read bool) error {
	for i, n := range p.Notifications {
		if n.Is(txHash, logIndex) {
			p.Notifications[i].Read = read
			return nil
		}
	}
	return fmt.Errorf("notification %s:%d: %w", txHash, logIndex, ErrNotFound)
}

// ApplyLastBlock overwrites the last processed block.
func ApplyLastBlock(p *model.Profile, block uint64) {
	p.LastBlock = block
}

// ApplySessions replaces the session cursors.
func ApplySessions(p *model.Profile, sessions map[string]uint64) {
	out := make(map[string]uint64, len(sessions))
	for k, v := range sessions {
		out[model.AddressKey(k)] = v
	}
	p.Sessions = out
}

func findDispute(p *model.Profile, arbitrator string, disputeID uint64) int {
	for i, d := range p.Disputes {
		if d.Matches(arbitrator, disputeID) {
			return i
		}
	}
	return -1
}

func decodeFields(fields model.Fields, out interface{}) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode fields: %w", err)
	}
	return nil
}
