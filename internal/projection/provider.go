package projection

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"disputeSync/internal/metrics"
	"disputeSync/internal/model"
	"disputeSync/internal/sequencer"
	"disputeSync/internal/store"
)

// Provider serves cached profile reads and funnels every store write through
// one Write Sequencer. A completed write invalidates the account's cache
// entry before its future resolves.
type Provider struct {
	store  store.Store
	cache  *Cache
	seq    *sequencer.Sequencer
	group  singleflight.Group
	logger *zap.Logger
}

// NewProvider builds a Provider with its own cache and sequencer.
func NewProvider(st store.Store, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Provider{
		store:  st,
		cache:  NewCache(),
		logger: logger,
	}
	p.seq = sequencer.New("store", p.cache.Invalidate, logger)
	return p
}

// Sequencer exposes the write lane, mainly to flush it.
func (p *Provider) Sequencer() *sequencer.Sequencer {
	return p.seq
}

// Invalidate drops the cached profile of account.
func (p *Provider) Invalidate(account string) {
	p.cache.Invalidate(account)
}

// Profile returns the cached profile, fetching it on a miss. The result is a
// copy the caller may modify. A missing profile yields store.ErrNotFound.
func (p *Provider) Profile(ctx context.Context, account string) (*model.Profile, error) {
	if cached, ok := p.cache.Get(account); ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return cached.Clone(), nil
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	// Fetches are shared within one cache generation.
	gen := p.cache.Generation(account)
	key := fmt.Sprintf("%s@%d", model.AddressKey(account), gen)
	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		profile, err := p.store.GetProfile(ctx, account)
		if err != nil {
			return nil, err
		}
		p.cache.SetIfCurrent(account, profile, gen)
		return profile, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Profile).Clone(), nil
}

// Disputes returns the account's stored disputes; a missing profile has none.
func (p *Provider) Disputes(ctx context.Context, account string) ([]model.Dispute, error) {
	profile, err := p.Profile(ctx, account)
	if err != nil {
		if store.IsNotFound(err) {
			return []model.Dispute{}, nil
		}
		return nil, err
	}
	return profile.Disputes, nil
}

// LastBlock returns the last processed block of account, or 0 when the
// profile cannot be read or created.
func (p *Provider) LastBlock(ctx context.Context, account string) uint64 {
	profile, err := p.EnsureProfile(ctx, account)
	if err != nil {
		p.logger.Warn("last block unavailable", zap.String("account", account), zap.Error(err))
		return 0
	}
	return profile.LastBlock
}

// FreshProfile reads the profile behind every write queued so far.
func (p *Provider) FreshProfile(ctx context.Context, account string) (*model.Profile, error) {
	var profile *model.Profile
	f := p.seq.Enqueue(ctx, model.AddressKey(account), func(ctx context.Context) error {
		var err error
		profile, err = p.store.GetProfile(ctx, account)
		return err
	})
	if err := f.Wait(ctx); err != nil {
		return nil, err
	}
	return profile, nil
}

// EnsureProfile returns the account profile, creating it when absent.
func (p *Provider) EnsureProfile(ctx context.Context, account string) (*model.Profile, error) {
	profile, err := p.Profile(ctx, account)
	if err == nil {
		return profile, nil
	}
	if !store.IsNotFound(err) {
		return nil, err
	}

	f := p.seq.Enqueue(ctx, model.AddressKey(account), func(ctx context.Context) error {
		_, err := p.loadOrCreate(ctx, account)
		return err
	})
	if err := f.Wait(ctx); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	return p.Profile(ctx, account)
}

// loadOrCreate runs inside a queued operation.
func (p *Provider) loadOrCreate(ctx context.Context, account string) (*model.Profile, error) {
	profile, err := p.store.GetProfile(ctx, account)
	if err == nil {
		return profile, nil
	}
	if !store.IsNotFound(err) {
		return nil, err
	}
	return p.store.CreateProfile(ctx, account)
}

func (p *Provider) enqueue(ctx context.Context, account string, op sequencer.Op) *sequencer.Future {
	return p.seq.Enqueue(ctx, model.AddressKey(account), op)
}
