package sequencer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"disputeSync/internal/metrics"
)

// ErrNilOp is returned by futures of operations enqueued without a thunk.
var ErrNilOp = errors.New("sequencer: nil operation")

// Op performs its own read-modify-write cycle when dequeued.
type Op func(ctx context.Context) error

// AfterFunc runs once an operation for key has finished executing, before
// its future resolves.
type AfterFunc func(key string)

// Future resolves exactly once with the outcome of an operation.
type Future struct {
	done chan struct{}
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(err error) {
	f.err = err
	close(f.done)
}

// Done is closed when the operation has completed.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the operation outcome. Only valid after Done is closed.
func (f *Future) Err() error {
	return f.err
}

// Wait blocks until the operation completes or ctx is done.
// Cancelling ctx does not cancel the operation.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitAll waits for every future and returns the first failure in order.
func WaitAll(ctx context.Context, futures ...*Future) error {
	var first error
	for _, f := range futures {
		if err := f.Wait(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type item struct {
	ctx        context.Context
	key        string
	op         Op
	future     *Future
	enqueuedAt time.Time
}

// Sequencer is a FIFO lane that runs one store write at a time.
// Completion order equals enqueue order. A failed operation only fails its
// own future; operations queued behind it still run.
type Sequencer struct {
	name   string
	after  AfterFunc
	logger *zap.Logger

	mu      sync.Mutex
	pending []*item
	running bool
	idle    chan struct{}
}

// New creates a Sequencer. after may be nil.
func New(name string, after AfterFunc, logger *zap.Logger) *Sequencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	idle := make(chan struct{})
	close(idle)
	return &Sequencer{
		name:    name,
		after:   after,
		logger:  logger,
		pending: make([]*item, 0, 16),
		idle:    idle,
	}
}

// Enqueue appends op to the lane. The returned future resolves after op ran
// and the AfterFunc for key was called.
func (s *Sequencer) Enqueue(ctx context.Context, key string, op Op) *Future {
	f := newFuture()
	if op == nil {
		f.resolve(ErrNilOp)
		return f
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.pending = append(s.pending, &item{ctx: ctx, key: key, op: op, future: f, enqueuedAt: time.Now()})
	metrics.SequencerDepth.WithLabelValues(s.name).Set(float64(len(s.pending)))
	if !s.running {
		s.running = true
		s.idle = make(chan struct{})
		go s.drain()
	}
	s.mu.Unlock()

	return f
}

// Len returns the number of operations not yet started.
func (s *Sequencer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush waits until every operation enqueued so far has completed.
func (s *Sequencer) Flush(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sequencer) drain() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.running = false
			close(s.idle)
			s.mu.Unlock()
			return
		}
		it := s.pending[0]
		s.pending[0] = nil
		s.pending = s.pending[1:]
		metrics.SequencerDepth.WithLabelValues(s.name).Set(float64(len(s.pending)))
		s.mu.Unlock()

		it.future.resolve(s.execute(it))
	}
}

func (s *Sequencer) execute(it *item) error {
	if err := it.ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	err := s.call(it)
	metrics.SequencerLatency.WithLabelValues(s.name).Observe(time.Since(start).Seconds())

	if s.after != nil {
		s.after(it.key)
	}

	if err != nil {
		metrics.SequencerErrors.WithLabelValues(s.name).Inc()
		s.logger.Debug("write failed",
			zap.String("sequencer", s.name),
			zap.String("key", it.key),
			zap.Duration("queued", start.Sub(it.enqueuedAt)),
			zap.Error(err),
		)
	}
	return err
}

func (s *Sequencer) call(it *item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("write for %s panicked: %v", it.key, r)
		}
	}()
	return it.op(it.ctx)
}
