package model

import (
	"encoding/json"
	"strings"
)

// Dispute is the projection of a ledger dispute stored in an account profile.
// Unknown store fields are kept in Extra so a read-merge-write never drops them.
type Dispute struct {
	ArbitratorAddress string     `json:"arbitratorAddress"`
	DisputeID         uint64     `json:"disputeId"`
	Period            uint64     `json:"period,omitempty"`
	Session           uint64     `json:"session,omitempty"`
	NumberOfAppeals   uint64     `json:"numberOfAppeals,omitempty"`
	AppealDraws       [][]uint64 `json:"appealDraws,omitempty"`
	BlockNumber       uint64     `json:"blockNumber,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var disputeKeys = map[string]struct{}{
	"arbitratorAddress": {},
	"disputeId":         {},
	"period":            {},
	"session":           {},
	"numberOfAppeals":   {},
	"appealDraws":       {},
	"blockNumber":       {},
}

// MarshalJSON encodes typed fields plus any retained extra fields.
func (d Dispute) MarshalJSON() ([]byte, error) {
	type Alias Dispute
	base, err := json.Marshal(Alias(d))
	if err != nil {
		return nil, err
	}
	return joinExtra(base, d.Extra)
}

// UnmarshalJSON decodes a Dispute, keeping unknown fields in Extra.
func (d *Dispute) UnmarshalJSON(data []byte) error {
	type Alias Dispute
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := splitExtra(data, disputeKeys)
	if err != nil {
		return err
	}
	*d = Dispute(a)
	d.Extra = extra
	return nil
}

// Matches reports whether the record belongs to (arbitrator, disputeID).
// Dispute ids are only unique within one arbitrator.
func (d Dispute) Matches(arbitrator string, disputeID uint64) bool {
	return d.DisputeID == disputeID && SameAddress(d.ArbitratorAddress, arbitrator)
}

// FilterByArbitrator keeps the disputes that belong to arbitrator.
func FilterByArbitrator(disputes []Dispute, arbitrator string) []Dispute {
	out := make([]Dispute, 0, len(disputes))
	for _, d := range disputes {
		if SameAddress(d.ArbitratorAddress, arbitrator) {
			out = append(out, d)
		}
	}
	return out
}

// SameAddress compares hex addresses case-insensitively.
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// AddressKey normalizes an address for use as a map key.
func AddressKey(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
