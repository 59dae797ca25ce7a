package arbitrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"disputeSync/internal/chain"
	"disputeSync/internal/model"
)

// ErrUnknownDispute is returned for a dispute id with no creation log.
var ErrUnknownDispute = errors.New("unknown dispute")

// Backend is the ledger surface the binding reads. *chain.Client implements it.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topics [][]common.Hash) ([]types.Log, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// Config configures a Binding.
type Config struct {
	Address   string
	FromBlock uint64
	BatchSize uint64
	Workers   int
}

// Binding reads dispute state from one arbitrator contract.
type Binding struct {
	backend Backend
	address common.Address
	abi     abi.ABI
	cfg     Config
	logger  *zap.Logger

	// creation log scan state, guarded by scanMu
	scanMu    sync.Mutex
	nextBlock uint64
	creations map[uint64]model.CreationEvent
}

// NewBinding builds a Binding for the arbitrator at cfg.Address.
func NewBinding(backend Backend, cfg Config, logger *zap.Logger) (*Binding, error) {
	if backend == nil {
		return nil, fmt.Errorf("ledger backend is nil")
	}
	if !common.IsHexAddress(cfg.Address) {
		return nil, fmt.Errorf("invalid arbitrator address: %s", cfg.Address)
	}
	parsed, err := ABI()
	if err != nil {
		return nil, fmt.Errorf("parse arbitrator abi: %w", err)
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 5000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Binding{
		backend:   backend,
		address:   common.HexToAddress(cfg.Address),
		abi:       parsed,
		cfg:       cfg,
		logger:    logger,
		nextBlock: cfg.FromBlock,
		creations: make(map[uint64]model.CreationEvent),
	}, nil
}

// ContractAddress returns the checksummed arbitrator address.
func (b *Binding) ContractAddress() string {
	return b.address.Hex()
}

// Period returns the current court period.
func (b *Binding) Period(ctx context.Context) (model.Period, error) {
	values, err := b.call(ctx, "period")
	if err != nil {
		return 0, err
	}
	v, err := asUint64(values[0])
	if err != nil {
		return 0, fmt.Errorf("period: %w", err)
	}
	return model.Period(v), nil
}

// Session returns the current court session.
func (b *Binding) Session(ctx context.Context) (uint64, error) {
	values, err := b.call(ctx, "session")
	if err != nil {
		return 0, err
	}
	v, err := asUint64(values[0])
	if err != nil {
		return 0, fmt.Errorf("session: %w", err)
	}
	return v, nil
}

// Dispute reads a dispute without juror draws.
func (b *Binding) Dispute(ctx context.Context, disputeID uint64) (model.LedgerDispute, error) {
	values, err := b.call(ctx, "disputes", new(big.Int).SetUint64(disputeID))
	if err != nil {
		return model.LedgerDispute{}, err
	}
	if len(values) != 7 {
		return model.LedgerDispute{}, fmt.Errorf("unexpected dispute values: %d", len(values))
	}

	arbitrable, ok := values[0].(common.Address)
	if !ok {
		return model.LedgerDispute{}, fmt.Errorf("dispute %d: unexpected arbitrable type %T", disputeID, values[0])
	}
	nums := make([]uint64, 0, 6)
	for i, v := range values[1:] {
		n, err := asUint64(v)
		if err != nil {
			return model.LedgerDispute{}, fmt.Errorf("dispute %d field %d: %w", disputeID, i+1, err)
		}
		nums = append(nums, n)
	}

	return model.LedgerDispute{
		ID:                  disputeID,
		ArbitratorAddress:   b.address.Hex(),
		Arbitrable:          arbitrable.Hex(),
		Session:             nums[0],
		NumberOfAppeals:     nums[1],
		Choices:             nums[2],
		InitialNumberJurors: nums[3],
		State:               model.DisputeState(nums[5]),
	}, nil
}

// DisputesForJuror returns the open disputes of the current session in
// which juror is drawn. AppealDraws holds the draws at the current appeal.
func (b *Binding) DisputesForJuror(ctx context.Context, juror string) ([]model.LedgerDispute, error) {
	if !common.IsHexAddress(juror) {
		return nil, fmt.Errorf("invalid juror address: %s", juror)
	}
	jurorAddr := common.HexToAddress(juror)

	session, err := b.Session(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := b.disputeIDs(ctx)
	if err != nil {
		return nil, err
	}

	found := make([]*model.LedgerDispute, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Workers)
	for i, id := range ids {
		g.Go(func() error {
			d, err := b.Dispute(gctx, id)
			if err != nil {
				return err
			}
			if d.State == model.DisputeExecuted || d.CurrentSession() != session {
				return nil
			}
			draws, err := b.draws(gctx, id, jurorAddr)
			if err != nil {
				return err
			}
			if len(draws) == 0 {
				return nil
			}
			d.AppealDraws = make([][]uint64, d.NumberOfAppeals+1)
			for appeal := range d.AppealDraws {
				d.AppealDraws[appeal] = []uint64{}
			}
			d.AppealDraws[d.NumberOfAppeals] = draws
			found[i] = &d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("disputes for juror: %w", err)
	}

	out := make([]model.LedgerDispute, 0)
	for _, d := range found {
		if d != nil {
			out = append(out, *d)
		}
	}
	return out, nil
}

// DisputeCreationEvent returns the log that created disputeID.
func (b *Binding) DisputeCreationEvent(ctx context.Context, disputeID uint64) (model.CreationEvent, error) {
	if ev, ok := b.creation(disputeID); ok {
		return ev, nil
	}
	if err := b.scanCreations(ctx); err != nil {
		return model.CreationEvent{}, err
	}
	if ev, ok := b.creation(disputeID); ok {
		return ev, nil
	}
	return model.CreationEvent{}, fmt.Errorf("dispute %d: %w", disputeID, ErrUnknownDispute)
}

func (b *Binding) draws(ctx context.Context, disputeID uint64, juror common.Address) ([]uint64, error) {
	id := new(big.Int).SetUint64(disputeID)
	values, err := b.call(ctx, "amountJurors", id)
	if err != nil {
		return nil, err
	}
	amount, err := asUint64(values[0])
	if err != nil {
		return nil, fmt.Errorf("amount jurors: %w", err)
	}

	draws := make([]uint64, 0)
	for draw := uint64(1); draw <= amount; draw++ {
		values, err := b.call(ctx, "isDrawn", id, juror, new(big.Int).SetUint64(draw))
		if err != nil {
			return nil, err
		}
		if drawn, ok := values[0].(bool); ok && drawn {
			draws = append(draws, draw)
		}
	}
	return draws, nil
}

func (b *Binding) creation(disputeID uint64) (model.CreationEvent, bool) {
	b.scanMu.Lock()
	ev, ok := b.creations[disputeID]
	b.scanMu.Unlock()
	return ev, ok
}

func (b *Binding) disputeIDs(ctx context.Context) ([]uint64, error) {
	if err := b.scanCreations(ctx); err != nil {
		return nil, err
	}
	b.scanMu.Lock()
	ids := make([]uint64, 0, len(b.creations))
	for id := range b.creations {
		ids = append(ids, id)
	}
	b.scanMu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// scanCreations reads DisputeCreation logs from where the last scan stopped.
func (b *Binding) scanCreations(ctx context.Context) error {
	b.scanMu.Lock()
	defer b.scanMu.Unlock()

	latest, err := b.backend.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}
	if b.nextBlock > latest {
		return nil
	}

	ranges, err := chain.SplitRange(b.nextBlock, latest, b.cfg.BatchSize)
	if err != nil {
		return err
	}
	topic := b.abi.Events[EventDisputeCreation].ID
	for _, r := range ranges {
		logs, err := b.backend.FilterLogs(ctx, r.From, r.To, []common.Address{b.address}, [][]common.Hash{{topic}})
		if err != nil {
			return fmt.Errorf("filter creation logs %d-%d: %w", r.From, r.To, err)
		}
		for _, log := range logs {
			if log.Removed {
				continue
			}
			rec, err := b.DecodeEvent(log)
			if err != nil {
				b.logger.Warn("skip undecodable creation log", zap.String("tx", log.TxHash.Hex()), zap.Error(err))
				continue
			}
			id, ok := rec.Uint("_disputeID")
			if !ok {
				continue
			}
			arbitrable, _ := rec.Addr("_arbitrable")
			b.creations[id] = model.CreationEvent{
				DisputeID:   id,
				Arbitrable:  arbitrable,
				BlockNumber: log.BlockNumber,
				TxHash:      log.TxHash.Hex(),
			}
		}
		b.nextBlock = r.To + 1
	}

	b.logger.Debug("creation logs scanned", zap.Uint64("to", latest), zap.Int("disputes", len(b.creations)))
	return nil
}

func (b *Binding) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &b.address, Data: data}
	resp, err := b.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := b.abi.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: no values", method)
	}
	return values, nil
}

func asUint64(value interface{}) (uint64, error) {
	switch v := value.(type) {
	case *big.Int:
		if v == nil || !v.IsUint64() {
			return 0, fmt.Errorf("value out of range: %v", v)
		}
		return v.Uint64(), nil
	case uint8:
		return uint64(v), nil
	case uint16:
		return uint64(v), nil
	case uint32:
		return uint64(v), nil
	case uint64:
		return v, nil
	default:
		return 0, fmt.Errorf("unexpected integer type %T", value)
	}
}
