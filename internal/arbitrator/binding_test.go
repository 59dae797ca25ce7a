package arbitrator

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"disputeSync/internal/model"
)

var (
	arbitratorAddr = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	arbitrableAddr = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	jurorAddr      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

type fakeDispute struct {
	session uint64
	appeals uint64
	jurors  uint64
	state   uint8
	drawn   []uint64
}

type fakeBackend struct {
	abi     abi.ABI
	mu      sync.Mutex
	period  uint8
	session uint64
	latest  uint64

	disputes map[uint64]fakeDispute
	logs     []types.Log
	filters  []chainRange
}

type chainRange struct{ from, to uint64 }

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	parsed, err := ABI()
	require.NoError(t, err)
	return &fakeBackend{abi: parsed, disputes: make(map[uint64]fakeDispute)}
}

func (f *fakeBackend) addDispute(id, block uint64, d fakeDispute) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disputes[id] = d
	f.logs = append(f.logs, types.Log{
		Address: arbitratorAddr,
		Topics: []common.Hash{
			f.abi.Events[EventDisputeCreation].ID,
			common.BigToHash(new(big.Int).SetUint64(id)),
			common.BytesToHash(arbitrableAddr.Bytes()),
		},
		BlockNumber: block,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(1000 + id)),
	})
	if block > f.latest {
		f.latest = block
	}
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	method, err := f.abi.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	switch method.Name {
	case "period":
		return method.Outputs.Pack(f.period)
	case "session":
		return method.Outputs.Pack(new(big.Int).SetUint64(f.session))
	case "disputes":
		d := f.disputes[args[0].(*big.Int).Uint64()]
		return method.Outputs.Pack(
			arbitrableAddr,
			new(big.Int).SetUint64(d.session),
			new(big.Int).SetUint64(d.appeals),
			big.NewInt(2),
			big.NewInt(3),
			big.NewInt(0),
			d.state,
		)
	case "amountJurors":
		d := f.disputes[args[0].(*big.Int).Uint64()]
		return method.Outputs.Pack(new(big.Int).SetUint64(d.jurors))
	case "isDrawn":
		d := f.disputes[args[0].(*big.Int).Uint64()]
		draw := args[2].(*big.Int).Uint64()
		drawn := false
		if args[1].(common.Address) == jurorAddr {
			for _, n := range d.drawn {
				drawn = drawn || n == draw
			}
		}
		return method.Outputs.Pack(drawn)
	default:
		return nil, fmt.Errorf("unexpected method %s", method.Name)
	}
}

func (f *fakeBackend) FilterLogs(_ context.Context, from, to uint64, _ []common.Address, topics [][]common.Hash) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, chainRange{from, to})
	out := make([]types.Log, 0)
	for _, log := range f.logs {
		if log.BlockNumber < from || log.BlockNumber > to {
			continue
		}
		if len(topics) > 0 && len(topics[0]) > 0 && log.Topics[0] != topics[0][0] {
			continue
		}
		out = append(out, log)
	}
	return out, nil
}

func (f *fakeBackend) LatestBlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, nil
}

func newBinding(t *testing.T, backend *fakeBackend) *Binding {
	t.Helper()
	b, err := NewBinding(backend, Config{Address: arbitratorAddr.Hex(), FromBlock: 1, BatchSize: 10}, nil)
	require.NoError(t, err)
	return b
}

func TestDisputesForJurorKeepsCurrentDraws(t *testing.T) {
	backend := newFakeBackend(t)
	backend.session = 2
	backend.addDispute(1, 5, fakeDispute{session: 2, jurors: 3, drawn: []uint64{1, 3}})
	backend.addDispute(2, 6, fakeDispute{session: 1, appeals: 1, jurors: 7, drawn: []uint64{2}})
	backend.addDispute(3, 7, fakeDispute{session: 2, jurors: 3, drawn: []uint64{1}, state: uint8(model.DisputeExecuted)})
	backend.addDispute(4, 8, fakeDispute{session: 1, jurors: 3, drawn: []uint64{1}})
	backend.addDispute(5, 9, fakeDispute{session: 2, jurors: 3})

	disputes, err := newBinding(t, backend).DisputesForJuror(context.Background(), jurorAddr.Hex())
	require.NoError(t, err)
	require.Len(t, disputes, 2)

	assert.Equal(t, uint64(1), disputes[0].ID)
	assert.Equal(t, [][]uint64{{1, 3}}, disputes[0].AppealDraws)
	assert.Equal(t, uint64(2), disputes[1].ID)
	assert.Equal(t, uint64(1), disputes[1].NumberOfAppeals)
	assert.Equal(t, [][]uint64{{}, {2}}, disputes[1].AppealDraws)
	assert.Equal(t, arbitrableAddr.Hex(), disputes[1].Arbitrable)
}

func TestCreationScanIsIncremental(t *testing.T) {
	backend := newFakeBackend(t)
	backend.addDispute(1, 15, fakeDispute{session: 1})
	b := newBinding(t, backend)
	ctx := context.Background()

	ev, err := b.DisputeCreationEvent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), ev.BlockNumber)
	assert.Equal(t, []chainRange{{1, 10}, {11, 15}}, backend.filters)

	_, err = b.DisputeCreationEvent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, backend.filters, 2)

	backend.addDispute(2, 18, fakeDispute{session: 1})
	ev, err = b.DisputeCreationEvent(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(18), ev.BlockNumber)
	assert.Equal(t, chainRange{16, 18}, backend.filters[len(backend.filters)-1])
}

func TestDisputeCreationEventUnknown(t *testing.T) {
	backend := newFakeBackend(t)
	backend.latest = 3

	_, err := newBinding(t, backend).DisputeCreationEvent(context.Background(), 9)
	assert.ErrorIs(t, err, ErrUnknownDispute)
}

func TestPeriodAndSession(t *testing.T) {
	backend := newFakeBackend(t)
	backend.period = 4
	backend.session = 12
	b := newBinding(t, backend)
	ctx := context.Background()

	period, err := b.Period(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.PeriodExecution, period)

	session, err := b.Session(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), session)
}

func TestDecodeEvent(t *testing.T) {
	backend := newFakeBackend(t)
	b := newBinding(t, backend)

	shift := backend.abi.Events[EventTokenShift]
	data, err := shift.Inputs.NonIndexed().Pack(big.NewInt(7), big.NewInt(-40))
	require.NoError(t, err)

	rec, err := b.DecodeEvent(types.Log{
		Address:     arbitratorAddr,
		Topics:      []common.Hash{shift.ID, common.BytesToHash(jurorAddr.Bytes())},
		Data:        data,
		BlockNumber: 44,
		Index:       3,
	})
	require.NoError(t, err)
	assert.Equal(t, EventTokenShift, rec.Name)
	account, ok := rec.Addr("_account")
	require.True(t, ok)
	assert.True(t, model.SameAddress(jurorAddr.Hex(), account))
	id, ok := rec.Uint("_disputeID")
	require.True(t, ok)
	assert.Equal(t, uint64(7), id)
	assert.Equal(t, "-40", rec.Args["_amount"].(*big.Int).String())

	period := backend.abi.Events[EventNewPeriod]
	data, err = period.Inputs.NonIndexed().Pack(uint8(4))
	require.NoError(t, err)
	rec, err = b.DecodeEvent(types.Log{
		Topics: []common.Hash{period.ID, common.BigToHash(big.NewInt(9))},
		Data:   data,
	})
	require.NoError(t, err)
	p, _ := rec.Uint("_period")
	s, _ := rec.Uint("_session")
	assert.Equal(t, uint64(4), p)
	assert.Equal(t, uint64(9), s)

	_, err = b.DecodeEvent(types.Log{Topics: []common.Hash{common.HexToHash("0x01")}})
	assert.Error(t, err)
}
