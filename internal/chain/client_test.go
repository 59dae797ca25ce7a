package chain

import (
	"context"
	"math/big"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"
)

type ethService struct{}

func (ethService) ChainId() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(56))
}

func (ethService) BlockNumber() hexutil.Uint64 {
	return 42
}

func TestClientChainIDAndLatestBlock(t *testing.T) {
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", ethService{}))
	t.Cleanup(server.Stop)
	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)

	ctx := context.Background()
	client, err := NewClient(ctx, ts.URL)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	id, err := client.ChainID(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(56), id.Int64())

	latest, err := client.LatestBlockNumber(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(42), latest)
}
