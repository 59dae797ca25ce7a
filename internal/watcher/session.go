package watcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"disputeSync/internal/chain"
	"disputeSync/internal/metrics"
	"disputeSync/internal/model"
)

var (
	ErrNotStarted     = errors.New("watcher: session not started")
	ErrAlreadyRunning = errors.New("watcher: session already running")
)

// Handler reacts to one event. A returned error is logged and counted; it
// never stops the session.
type Handler func(ctx context.Context, ev model.EventRecord) error

// Predicate selects events by their arguments. A nil Predicate matches all.
type Predicate func(ev model.EventRecord) bool

// Ledger is the log surface the session polls. *chain.Client implements it.
type Ledger interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topics [][]common.Hash) ([]types.Log, error)
}

// Decoder turns the raw logs of one contract into EventRecords.
type Decoder interface {
	EventID(name string) (common.Hash, error)
	DecodeEvent(log types.Log) (model.EventRecord, error)
}

// Config holds polling settings.
type Config struct {
	PollInterval time.Duration
	TickTimeout  time.Duration
	BatchSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.TickTimeout <= 0 {
		c.TickTimeout = 30 * time.Second
	}
	if c.BatchSize == 0 {
		c.BatchSize = 2000
	}
	return c
}

type subscription struct {
	event   string
	topic   common.Hash
	handler Handler
	match   Predicate
}

type source struct {
	address common.Address
	decoder Decoder
	subs    []subscription
}

func (s source) topics() []common.Hash {
	seen := make(map[common.Hash]struct{}, len(s.subs))
	out := make([]common.Hash, 0, len(s.subs))
	for _, sub := range s.subs {
		if _, ok := seen[sub.topic]; ok {
			continue
		}
		seen[sub.topic] = struct{}{}
		out = append(out, sub.topic)
	}
	return out
}

func (s source) handlers(ev model.EventRecord) []Handler {
	var out []Handler
	for _, sub := range s.subs {
		if sub.event != ev.Name {
			continue
		}
		if sub.match != nil && !sub.match(ev) {
			continue
		}
		out = append(out, sub.handler)
	}
	return out
}

// Session watches a set of contracts for events and dispatches them to
// handlers in block then log index order. Each (tx hash, log index, event)
// is dispatched at most once per SeenSet; a key is recorded when its event
// is handed to the handlers, so events dropped by Stop are replayed later.
type Session struct {
	ledger Ledger
	seen   SeenSet
	cfg    Config
	logger *zap.Logger

	mu           sync.Mutex
	sources      map[common.Address]*source
	onCheckpoint func(ctx context.Context, block uint64)
	heads        <-chan uint64
	next         uint64
	running      bool
	cancel       context.CancelFunc
	done         chan struct{}
	disp         *dispatcher

	tickMu sync.Mutex
}

// New builds an idle Session. A nil seen set keeps keys in memory.
func New(ledger Ledger, seen SeenSet, cfg Config, logger *zap.Logger) *Session {
	if seen == nil {
		seen = NewMemorySeenSet()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		ledger:  ledger,
		seen:    seen,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		sources: make(map[common.Address]*source),
	}
}

// AddSource watches the contract at address. It takes effect on the next tick.
func (s *Session) AddSource(address string, decoder Decoder) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("invalid source address: %s", address)
	}
	if decoder == nil {
		return fmt.Errorf("decoder is nil")
	}
	addr := common.HexToAddress(address)

	s.mu.Lock()
	defer s.mu.Unlock()
	if src, ok := s.sources[addr]; ok {
		src.decoder = decoder
		return nil
	}
	s.sources[addr] = &source{address: addr, decoder: decoder}
	return nil
}

// RemoveSource stops watching address and drops its handlers from the next tick on.
func (s *Session) RemoveSource(address string) {
	s.mu.Lock()
	delete(s.sources, common.HexToAddress(address))
	s.mu.Unlock()
}

// On registers handler for event on the source at address.
func (s *Session) On(address, event string, handler Handler, match Predicate) error {
	if handler == nil {
		return fmt.Errorf("handler is nil")
	}
	addr := common.HexToAddress(address)

	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[addr]
	if !ok {
		return fmt.Errorf("unknown source: %s", address)
	}
	topic, err := src.decoder.EventID(event)
	if err != nil {
		return err
	}
	src.subs = append(src.subs, subscription{event: event, topic: topic, handler: handler, match: match})
	return nil
}

// OnCheckpoint sets the callback run, in dispatch order, after every handler
// of a block range has finished. Set it before Start.
func (s *Session) OnCheckpoint(fn func(ctx context.Context, block uint64)) {
	s.mu.Lock()
	s.onCheckpoint = fn
	s.mu.Unlock()
}

// SubscribeHeads makes every value received on heads trigger a tick in
// addition to the poll interval. Set it before Start.
func (s *Session) SubscribeHeads(heads <-chan uint64) {
	s.mu.Lock()
	s.heads = heads
	s.mu.Unlock()
}

// Start begins polling from fromBlock. Handlers run with a context that is
// not cancelled by Stop.
func (s *Session) Start(ctx context.Context, fromBlock uint64) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.disp = newDispatcher(context.WithoutCancel(ctx), s.seen, s.onCheckpoint, s.logger)
	s.next = fromBlock
	s.running = true
	s.cancel = cancel
	s.done = done
	heads := s.heads
	s.mu.Unlock()

	s.logger.Info("watch started", zap.Uint64("from_block", fromBlock))
	go s.run(runCtx, heads, done)
	return nil
}

// Stop ends polling, waits for the running handler and clears all sources.
// Events not yet handed to a handler are dropped; their range is not
// checkpointed.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done, disp := s.cancel, s.done, s.disp
	s.mu.Unlock()

	cancel()
	<-done
	disp.stop()

	s.mu.Lock()
	s.sources = make(map[common.Address]*source)
	s.disp = nil
	s.mu.Unlock()
	s.logger.Info("watch stopped")
}

// Running reports whether the session is polling.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextBlock is the first block the next tick will fetch.
func (s *Session) NextBlock() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Flush waits until every event queued so far has been handled.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	disp := s.disp
	s.mu.Unlock()
	if disp == nil {
		return nil
	}
	flushed := make(chan struct{})
	if !disp.push(job{flushed: flushed}) {
		return nil
	}
	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) run(ctx context.Context, heads <-chan uint64, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		s.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case _, ok := <-heads:
			if !ok {
				heads = nil
			}
		}
	}
}

func (s *Session) tick(ctx context.Context) {
	if err := s.Tick(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.WatcherTicks.WithLabelValues("error").Inc()
		s.logger.Warn("poll tick failed, retrying next tick", zap.Error(err))
	}
}

// Tick fetches and dispatches the logs in [NextBlock, latest]. A ledger
// whose latest block is behind the last seen block skips the tick.
func (s *Session) Tick(ctx context.Context) error {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.mu.Lock()
	disp := s.disp
	next := s.next
	sources := make([]source, 0, len(s.sources))
	for _, src := range s.sources {
		cp := *src
		cp.subs = append([]subscription(nil), src.subs...)
		sources = append(sources, cp)
	}
	s.mu.Unlock()

	if disp == nil {
		return ErrNotStarted
	}
	if len(sources) == 0 {
		metrics.WatcherTicks.WithLabelValues("idle").Inc()
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.TickTimeout)
	defer cancel()

	var latest uint64
	err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		latest, err = s.ledger.LatestBlockNumber(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}
	if latest < next {
		if latest+1 < next {
			metrics.WatcherTicks.WithLabelValues("skipped").Inc()
			s.logger.Warn("latest block behind last seen block, skipping tick",
				zap.Uint64("latest", latest), zap.Uint64("last_seen", next-1))
			return nil
		}
		metrics.WatcherTicks.WithLabelValues("idle").Inc()
		return nil
	}

	ranges, err := chain.SplitRange(next, latest, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, r := range ranges {
		events, err := s.collect(ctx, sources, r)
		if err != nil {
			return err
		}
		for _, ev := range events {
			disp.push(job{event: ev.record, handlers: ev.handlers})
		}
		disp.push(job{isMarker: true, checkpoint: r.To})

		s.mu.Lock()
		if s.disp == disp {
			s.next = r.To + 1
		}
		s.mu.Unlock()
		s.logger.Debug("range dispatched", zap.Uint64("from", r.From), zap.Uint64("to", r.To), zap.Int("events", len(events)))
	}

	metrics.WatcherTicks.WithLabelValues("ok").Inc()
	return nil
}

type matched struct {
	record   model.EventRecord
	handlers []Handler
	block    uint64
	index    uint
}

func (s *Session) collect(ctx context.Context, sources []source, r chain.BlockRange) ([]matched, error) {
	out := make([]matched, 0)
	for _, src := range sources {
		topics := src.topics()
		if len(topics) == 0 {
			continue
		}

		var logs []types.Log
		err := withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
			var err error
			logs, err = s.ledger.FilterLogs(ctx, r.From, r.To, []common.Address{src.address}, [][]common.Hash{topics})
			if err != nil {
				s.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", r.From), zap.Uint64("to", r.To))
			}
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("filter logs %d-%d: %w", r.From, r.To, err)
		}

		for _, log := range logs {
			if log.Removed {
				continue
			}
			rec, err := src.decoder.DecodeEvent(log)
			if err != nil {
				s.logger.Warn("skip undecodable log", zap.String("tx", log.TxHash.Hex()), zap.Uint("log_index", log.Index), zap.Error(err))
				continue
			}
			handlers := src.handlers(rec)
			if len(handlers) == 0 {
				continue
			}
			out = append(out, matched{record: rec, handlers: handlers, block: log.BlockNumber, index: log.Index})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].block != out[j].block {
			return out[i].block < out[j].block
		}
		return out[i].index < out[j].index
	})
	return out, nil
}
