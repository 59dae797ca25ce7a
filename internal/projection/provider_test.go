package projection

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"disputeSync/internal/model"
	"disputeSync/internal/store"
	"disputeSync/internal/store/memory"
)

const (
	account    = "0x00000000000000000000000000000000000000a1"
	arbitrator = "0x00000000000000000000000000000000000000b2"
)

func seeded(t *testing.T) (*memory.Store, *Provider) {
	t.Helper()
	st := memory.NewStore()
	profile := model.NewProfile(account)
	profile.Disputes = []model.Dispute{{ArbitratorAddress: arbitrator, DisputeID: 1}}
	st.Seed(profile)
	return st, NewProvider(st, nil)
}

func TestProfileServedFromCache(t *testing.T) {
	st, p := seeded(t)
	ctx := context.Background()

	_, err := p.Profile(ctx, account)
	require.NoError(t, err)
	_, err = p.Profile(ctx, account)
	require.NoError(t, err)

	assert.Equal(t, 1, st.Reads())
}

func TestWriteInvalidatesBeforeFutureResolves(t *testing.T) {
	st, p := seeded(t)
	ctx := context.Background()

	_, err := p.Profile(ctx, account)
	require.NoError(t, err)

	require.NoError(t, p.UpdateLastBlock(ctx, account, 99).Wait(ctx))

	profile, err := p.Profile(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), profile.LastBlock)
	assert.Equal(t, []string{"lastBlock"}, st.Writes())
}

func TestStaleFetchDoesNotRepopulateCache(t *testing.T) {
	c := NewCache()
	gen := c.Generation(account)
	c.Invalidate(account)

	assert.False(t, c.SetIfCurrent(account, model.NewProfile(account), gen))
	_, ok := c.Get(account)
	assert.False(t, ok)
}

func TestUpdateDisputeIsSupersetMerge(t *testing.T) {
	st, p := seeded(t)
	ctx := context.Background()

	require.NoError(t, p.UpdateDispute(ctx, account, arbitrator, 1, map[string]interface{}{"description": "escrow"}).Wait(ctx))
	require.NoError(t, p.AddDraws(ctx, account, arbitrator, 1, []uint64{2}, 0).Wait(ctx))
	require.NoError(t, p.UpdateDispute(ctx, account, arbitrator, 1, map[string]interface{}{"blockNumber": 7}).Wait(ctx))

	profile, err := st.GetProfile(ctx, account)
	require.NoError(t, err)
	d, ok := profile.FindDispute(arbitrator, 1)
	require.True(t, ok)
	assert.Equal(t, uint64(7), d.BlockNumber)
	assert.Equal(t, [][]uint64{{2}}, d.AppealDraws)
	assert.JSONEq(t, `"escrow"`, string(d.Extra["description"]))
}

func TestUpdateSessionNeverMovesBackwards(t *testing.T) {
	st, p := seeded(t)
	ctx := context.Background()

	require.NoError(t, p.UpdateSession(ctx, account, arbitrator, 3).Wait(ctx))
	require.NoError(t, p.UpdateSession(ctx, account, arbitrator, 2).Wait(ctx))
	require.NoError(t, p.UpdateSession(ctx, account, "0x00000000000000000000000000000000000000c3", 1).Wait(ctx))

	profile, err := p.Profile(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), profile.SessionFor(arbitrator))
	assert.Equal(t, uint64(1), profile.SessionFor("0x00000000000000000000000000000000000000C3"))
	assert.Equal(t, []string{"session", "session"}, st.Writes())
}

func TestEnsureProfileCreatesOnce(t *testing.T) {
	st := memory.NewStore()
	p := NewProvider(st, nil)
	ctx := context.Background()

	_, err := p.Profile(ctx, account)
	assert.True(t, store.IsNotFound(err))

	disputes, err := p.Disputes(ctx, account)
	require.NoError(t, err)
	assert.Empty(t, disputes)

	_, err = p.EnsureProfile(ctx, account)
	require.NoError(t, err)
	_, err = p.EnsureProfile(ctx, account)
	require.NoError(t, err)

	assert.Equal(t, []string{"create"}, st.Writes())
}

func TestNewNotificationDeduplicates(t *testing.T) {
	st, p := seeded(t)
	ctx := context.Background()
	n := model.Notification{TxHash: "0xabc", LogIndex: 1, NotificationType: model.NotificationTokenShift}

	created, err := p.NewNotification(ctx, account, n)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = p.NewNotification(ctx, account, n)
	require.NoError(t, err)
	assert.False(t, created)

	notifications, err := p.MarkNotificationRead(ctx, account, "0xabc", 1, true)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.True(t, notifications[0].Read)
	assert.Equal(t, []string{"notification", "read"}, st.Writes())
}

func TestWriteFailureSurfacesToCaller(t *testing.T) {
	st, p := seeded(t)
	ctx := context.Background()
	boom := errors.New("store down")
	st.BeforeWrite = func(op string) error {
		if op == "draws" {
			return boom
		}
		return nil
	}

	failed := p.AddDraws(ctx, account, arbitrator, 1, []uint64{1}, 0)
	next := p.UpdateLastBlock(ctx, account, 5)

	assert.ErrorIs(t, failed.Wait(ctx), boom)
	require.NoError(t, next.Wait(ctx))

	profile, err := p.FreshProfile(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), profile.LastBlock)
}

func TestUpdateContractMergesFields(t *testing.T) {
	st, p := seeded(t)
	ctx := context.Background()
	contract := "0x00000000000000000000000000000000000000c3"

	require.NoError(t, p.UpdateContract(ctx, account, contract, map[string]interface{}{"name": "escrow"}).Wait(ctx))
	require.NoError(t, p.UpdateContract(ctx, account, contract, map[string]interface{}{"fee": 2}).Wait(ctx))

	profile, err := p.Profile(ctx, account)
	require.NoError(t, err)
	require.Len(t, profile.Contracts, 1)
	c, ok := profile.FindContract(contract)
	require.True(t, ok)
	assert.JSONEq(t, `"escrow"`, string(c.Extra["name"]))
	assert.JSONEq(t, `2`, string(c.Extra["fee"]))
	assert.Equal(t, []string{"contract", "contract"}, st.Writes())
}

func TestMarkNotificationRead(t *testing.T) {
	st := memory.NewStore()
	profile := model.NewProfile(account)
	profile.Notifications = []model.Notification{{TxHash: "0xabc", LogIndex: 2, NotificationType: model.NotificationTokenShift}}
	st.Seed(profile)
	p := NewProvider(st, nil)
	ctx := context.Background()

	notes, err := p.MarkNotificationRead(ctx, account, "0xabc", 2, true)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.True(t, notes[0].Read)

	_, err = p.MarkNotificationRead(ctx, account, "0xabc", 3, true)
	require.Error(t, err)
	assert.True(t, store.IsNotFound(err))
}

func TestFreshProfileQueuesBehindWrites(t *testing.T) {
	_, p := seeded(t)
	ctx := context.Background()

	_, err := p.Profile(ctx, account)
	require.NoError(t, err)
	f := p.UpdateLastBlock(ctx, account, 7)

	profile, err := p.FreshProfile(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), profile.LastBlock)
	require.NoError(t, f.Wait(ctx))
}

// gatedStore snapshots the first GetProfile result, then holds it until released.
type gatedStore struct {
	*memory.Store
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) GetProfile(ctx context.Context, account string) (*model.Profile, error) {
	profile, err := g.Store.GetProfile(ctx, account)
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return profile, err
}

func TestReadAfterAwaitedWriteSkipsInFlightFetch(t *testing.T) {
	mem := memory.NewStore()
	mem.Seed(model.NewProfile(account))
	st := &gatedStore{Store: mem, entered: make(chan struct{}), release: make(chan struct{})}
	p := NewProvider(st, nil)
	ctx := context.Background()

	stale := make(chan uint64, 1)
	go func() {
		profile, err := p.Profile(ctx, account)
		if err != nil {
			stale <- 0
			return
		}
		stale <- profile.LastBlock
	}()
	<-st.entered

	require.NoError(t, p.UpdateLastBlock(ctx, account, 99).Wait(ctx))
	profile, err := p.Profile(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), profile.LastBlock)

	close(st.release)
	assert.Equal(t, uint64(0), <-stale)

	profile, err = p.Profile(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), profile.LastBlock)
}
