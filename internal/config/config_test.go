package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, StoreHTTP, cfg.Store)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, uint64(2000), cfg.BatchSize)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Nil(t, cfg.Contracts)
}

func TestLoadEnvAndFlags(t *testing.T) {
	t.Setenv("DISPUTESYNC_POLL_INTERVAL", "2s")
	t.Setenv("DISPUTESYNC_CONTRACTS", "0xaa, ,0xbb")
	t.Setenv("DISPUTESYNC_STORE", "postgres")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("store", "http", "")
	flags.String("redis-url", "", "")
	require.NoError(t, flags.Parse([]string{"--store", "MEMORY"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, []string{"0xaa", "0xbb"}, cfg.Contracts)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disputesync.yaml")
	body := "rpc: ws://localhost:8546\narbitrator: \"0x00000000000000000000000000000000000000b2\"\ncontracts:\n  - \"0xcc\"\nworkers: 8\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8546", cfg.RPCURL)
	assert.Equal(t, "0x00000000000000000000000000000000000000b2", cfg.Arbitrator)
	assert.Equal(t, []string{"0xcc"}, cfg.Contracts)
	assert.Equal(t, 8, cfg.Workers)
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Config{RPCURL: "http://node", Arbitrator: "0xb2", Store: StoreHTTP}
	require.Error(t, cfg.ValidateLedger())

	cfg.StoreURI = "http://store"
	require.NoError(t, cfg.ValidateLedger())

	cfg.Store = StorePostgres
	require.Error(t, cfg.ValidateStore())

	cfg.Store = "sqlite"
	require.Error(t, cfg.ValidateStore())

	cfg.Store = StoreMemory
	cfg.RPCURL = ""
	require.NoError(t, cfg.ValidateStore())
	require.Error(t, cfg.ValidateLedger())
}
