package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"disputeSync/internal/model"
	"disputeSync/internal/store"
)

func TestDecodeProfile(t *testing.T) {
	profile, err := decodeProfile([]byte(`{"address":"0xa1","lastBlock":7,"sessions":{"0xb2":3},"disputes":[{"arbitratorAddress":"0xb2","disputeId":1,"note":"kept"}]}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), profile.LastBlock)
	assert.Equal(t, uint64(3), profile.SessionFor("0xB2"))
	require.Len(t, profile.Disputes, 1)
	assert.Contains(t, profile.Disputes[0].Extra, "note")

	_, err = decodeProfile([]byte(`[1,2]`))
	assert.ErrorIs(t, err, store.ErrMalformedResponse)
}

func TestTransportError(t *testing.T) {
	cause := errors.New("connection refused")
	err := transport("update dispute", cause)

	assert.True(t, store.IsTransport(err))
	assert.ErrorIs(t, err, cause)
	assert.False(t, store.IsNotFound(err))
}

func TestNewStoreRequiresDSN(t *testing.T) {
	_, err := NewStore(context.Background(), "")
	require.Error(t, err)
}

// openTestStore connects to DISPUTESYNC_TEST_PG_DSN or skips.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("DISPUTESYNC_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("DISPUTESYNC_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := NewStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.EnsureSchema(ctx))
	return s
}

func TestStoreMergeAndConcurrentWrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	account := "0x00000000000000000000000000000000000000f1"
	arbitrator := "0x00000000000000000000000000000000000000b2"
	_, err := s.pool.Exec(ctx, `DELETE FROM account_profiles WHERE address=$1`, model.AddressKey(account))
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.pool.Exec(context.Background(), `DELETE FROM account_profiles WHERE address=$1`, model.AddressKey(account))
	})

	_, err = s.GetProfile(ctx, account)
	require.True(t, store.IsNotFound(err))
	require.True(t, store.IsNotFound(s.UpdateLastBlock(ctx, account, 1)))

	_, err = s.CreateProfile(ctx, account)
	require.NoError(t, err)
	_, err = s.CreateProfile(ctx, account)
	require.NoError(t, err)

	first, err := model.FieldsFromMap(map[string]interface{}{"blockNumber": 10})
	require.NoError(t, err)
	second, err := model.FieldsFromMap(map[string]interface{}{"session": 2})
	require.NoError(t, err)
	require.NoError(t, s.UpdateDispute(ctx, account, arbitrator, 1, first))
	require.NoError(t, s.UpdateDispute(ctx, account, arbitrator, 1, second))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx := fmt.Sprintf("0x%02x", i)
			errs <- s.PutNotification(ctx, account, tx, model.Notification{TxHash: tx, NotificationType: model.NotificationTokenShift})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	profile, err := s.GetProfile(ctx, account)
	require.NoError(t, err)
	d, ok := profile.FindDispute(arbitrator, 1)
	require.True(t, ok)
	assert.Equal(t, uint64(10), d.BlockNumber)
	assert.Equal(t, uint64(2), d.Session)
	assert.Len(t, profile.Notifications, 8)
}
