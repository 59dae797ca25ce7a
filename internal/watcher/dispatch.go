package watcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"disputeSync/internal/metrics"
	"disputeSync/internal/model"
)

// job is one event with its handlers, a checkpoint marker or a flush marker.
type job struct {
	event      model.EventRecord
	handlers   []Handler
	checkpoint uint64
	isMarker   bool
	flushed    chan struct{}
}

// dispatcher runs jobs one at a time in queue order, off the poll loop.
type dispatcher struct {
	ctx          context.Context
	seen         SeenSet
	logger       *zap.Logger
	onCheckpoint func(ctx context.Context, block uint64)

	mu      sync.Mutex
	jobs    []job
	stopped bool
	signal  chan struct{}
	quit    chan struct{}
	done    chan struct{}
}

func newDispatcher(ctx context.Context, seen SeenSet, onCheckpoint func(context.Context, uint64), logger *zap.Logger) *dispatcher {
	d := &dispatcher{
		ctx:          ctx,
		seen:         seen,
		logger:       logger,
		onCheckpoint: onCheckpoint,
		signal:       make(chan struct{}, 1),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *dispatcher) push(j job) bool {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return false
	}
	d.jobs = append(d.jobs, j)
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
	return true
}

// stop waits for the running job and drops the rest.
func (d *dispatcher) stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.stopped = true
	dropped := 0
	for _, j := range d.jobs {
		if j.flushed != nil {
			close(j.flushed)
			continue
		}
		dropped++
	}
	d.jobs = nil
	d.mu.Unlock()

	close(d.quit)
	<-d.done
	if dropped > 0 {
		d.logger.Info("dropped undispatched events", zap.Int("jobs", dropped))
	}
}

func (d *dispatcher) loop() {
	defer close(d.done)
	for {
		j, ok := d.next()
		if !ok {
			select {
			case <-d.quit:
				return
			case <-d.signal:
				continue
			}
		}
		d.run(j)
	}
}

func (d *dispatcher) next() (job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || len(d.jobs) == 0 {
		return job{}, false
	}
	j := d.jobs[0]
	d.jobs = d.jobs[1:]
	return j, true
}

func (d *dispatcher) run(j job) {
	if j.flushed != nil {
		close(j.flushed)
		return
	}
	if j.isMarker {
		metrics.WatcherLastBlock.Set(float64(j.checkpoint))
		if d.onCheckpoint != nil {
			d.onCheckpoint(d.ctx, j.checkpoint)
		}
		return
	}
	if !d.markSeen(j.event) {
		return
	}
	for _, h := range j.handlers {
		if err := d.invoke(h, j.event); err != nil {
			metrics.WatcherHandlerErrors.WithLabelValues(j.event.Name).Inc()
			d.logger.Warn("event handler failed",
				zap.String("event", j.event.Name),
				zap.String("tx", j.event.TxHash),
				zap.Uint64("log_index", j.event.LogIndex),
				zap.Error(err),
			)
		}
	}
}

// markSeen records the event key and reports whether the event should be
// handled. An unreachable seen set does not hold events back.
func (d *dispatcher) markSeen(ev model.EventRecord) bool {
	fresh, err := d.seen.Add(d.ctx, ev.Key())
	if err != nil {
		d.logger.Warn("record seen event failed, dispatching anyway",
			zap.String("event", ev.Name),
			zap.String("tx", ev.TxHash),
			zap.Uint64("log_index", ev.LogIndex),
			zap.Error(err),
		)
	} else if !fresh {
		metrics.WatcherDuplicates.Inc()
		return false
	}
	metrics.WatcherEvents.WithLabelValues(ev.Name).Inc()
	return true
}

func (d *dispatcher) invoke(h Handler, ev model.EventRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(d.ctx, ev)
}
