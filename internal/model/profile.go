package model

import "encoding/json"

// Profile is the store document kept per account.
type Profile struct {
	Address       string            `json:"address"`
	LastBlock     uint64            `json:"lastBlock"`
	Sessions      map[string]uint64 `json:"sessions,omitempty"`
	Contracts     []Contract        `json:"contracts"`
	Disputes      []Dispute         `json:"disputes"`
	Notifications []Notification    `json:"notifications"`
}

// NewProfile returns an empty profile for address.
func NewProfile(address string) *Profile {
	return &Profile{
		Address:       address,
		Contracts:     []Contract{},
		Disputes:      []Dispute{},
		Notifications: []Notification{},
	}
}

// SessionFor returns the session cursor for an arbitrator.
func (p *Profile) SessionFor(arbitrator string) uint64 {
	if p == nil {
		return 0
	}
	return p.Sessions[AddressKey(arbitrator)]
}

// FindDispute looks up a dispute record by arbitrator and id.
func (p *Profile) FindDispute(arbitrator string, disputeID uint64) (Dispute, bool) {
	if p == nil {
		return Dispute{}, false
	}
	for _, d := range p.Disputes {
		if d.Matches(arbitrator, disputeID) {
			return d, true
		}
	}
	return Dispute{}, false
}

// FindContract looks up a contract record by address.
func (p *Profile) FindContract(address string) (Contract, bool) {
	if p == nil {
		return Contract{}, false
	}
	for _, c := range p.Contracts {
		if SameAddress(c.Address, address) {
			return c, true
		}
	}
	return Contract{}, false
}

// HasNotification reports whether a notification for (txHash, logIndex) exists.
func (p *Profile) HasNotification(txHash string, logIndex uint64) bool {
	if p == nil {
		return false
	}
	for _, n := range p.Notifications {
		if n.Is(txHash, logIndex) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	var out Profile
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return &out
}

// Contract is a contract record stored for an account.
type Contract struct {
	Address string `json:"address"`

	Extra map[string]json.RawMessage `json:"-"`
}

var contractKeys = map[string]struct{}{"address": {}}

// MarshalJSON encodes the address plus retained extra fields.
func (c Contract) MarshalJSON() ([]byte, error) {
	type Alias Contract
	base, err := json.Marshal(Alias(c))
	if err != nil {
		return nil, err
	}
	return joinExtra(base, c.Extra)
}

// UnmarshalJSON decodes a Contract, keeping unknown fields in Extra.
func (c *Contract) UnmarshalJSON(data []byte) error {
	type Alias Contract
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	extra, err := splitExtra(data, contractKeys)
	if err != nil {
		return err
	}
	*c = Contract(a)
	c.Extra = extra
	return nil
}
