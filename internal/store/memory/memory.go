package memory

import (
	"context"
	"fmt"
	"sync"

	"disputeSync/internal/model"
	"disputeSync/internal/store"
)

// Store keeps profiles in process memory with the same merge semantics as
// the remote store. It counts reads and writes.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]*model.Profile
	reads    int
	writes   []string

	// BeforeWrite, when set, runs before every write and may fail it.
	BeforeWrite func(op string) error
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{profiles: make(map[string]*model.Profile)}
}

// Seed stores a copy of profile, replacing any existing one.
func (s *Store) Seed(profile *model.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[model.AddressKey(profile.Address)] = profile.Clone()
}

// Reads returns the number of profile reads served.
func (s *Store) Reads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reads
}

// Writes returns the ops of all accepted writes, in order.
func (s *Store) Writes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.writes...)
}

// ResetCounters clears read and write counters.
func (s *Store) ResetCounters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads = 0
	s.writes = nil
}

func (s *Store) GetProfile(ctx context.Context, account string) (*model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	p, ok := s.profiles[model.AddressKey(account)]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", account, store.ErrNotFound)
	}
	return p.Clone(), nil
}

func (s *Store) CreateProfile(ctx context.Context, account string) (*model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := model.AddressKey(account)
	if p, ok := s.profiles[key]; ok {
		return p.Clone(), nil
	}
	if err := s.beforeWrite("create"); err != nil {
		return nil, err
	}
	p := model.NewProfile(account)
	s.profiles[key] = p
	s.writes = append(s.writes, "create")
	return p.Clone(), nil
}

func (s *Store) UpdateContract(ctx context.Context, account, contract string, body model.Fields) error {
	return s.update(account, "contract", func(p *model.Profile) error {
		return store.ApplyContract(p, contract, body)
	})
}

func (s *Store) UpdateDispute(ctx context.Context, account, arbitrator string, disputeID uint64, body model.Fields) error {
	return s.update(account, "dispute", func(p *model.Profile) error {
		return store.ApplyDispute(p, arbitrator, disputeID, body)
	})
}

func (s *Store) AddDraws(ctx context.Context, account, arbitrator string, disputeID uint64, draws []uint64, appeal uint64) error {
	return s.update(account, "draws", func(p *model.Profile) error {
		return store.ApplyDraws(p, arbitrator, disputeID, draws, appeal)
	})
}

func (s *Store) PutNotification(ctx context.Context, account, txHash string, n model.Notification) error {
	return s.update(account, "notification", func(p *model.Profile) error {
		store.ApplyNotification(p, txHash, n)
		return nil
	})
}

func (s *Store) MarkNotificationRead(ctx context.Context, account, txHash string, logIndex uint64, read bool) error {
	return s.update(account, "read", func(p *model.Profile) error {
		return store.ApplyRead(p, txHash, logIndex, read)
	})
}

func (s *Store) UpdateLastBlock(ctx context.Context, account string, block uint64) error {
	return s.update(account, "lastBlock", func(p *model.Profile) error {
		store.ApplyLastBlock(p, block)
		return nil
	})
}

func (s *Store) UpdateSessions(ctx context.Context, account string, sessions map[string]uint64) error {
	return s.update(account, "session", func(p *model.Profile) error {
		store.ApplySessions(p, sessions)
		return nil
	})
}

func (s *Store) update(account, op string, apply func(p *model.Profile) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.beforeWrite(op); err != nil {
		return err
	}
	p, ok := s.profiles[model.AddressKey(account)]
	if !ok {
		return fmt.Errorf("profile %s: %w", account, store.ErrNotFound)
	}
	next := p.Clone()
	if err := apply(next); err != nil {
		return err
	}
	s.profiles[model.AddressKey(account)] = next
	s.writes = append(s.writes, op)
	return nil
}

func (s *Store) beforeWrite(op string) error {
	if s.BeforeWrite == nil {
		return nil
	}
	return s.BeforeWrite(op)
}
