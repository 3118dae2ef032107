// Package orchestrator runs the merged polling loop: N pollers over one
// shared rate budget, yielding a single interleaved sequence of
// (source, item) pairs until cancelled.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/streamwatch/streamwatch/internal/budget"
	"github.com/streamwatch/streamwatch/internal/checkpoint"
	"github.com/streamwatch/streamwatch/internal/listing"
	"github.com/streamwatch/streamwatch/internal/metrics"
	"github.com/streamwatch/streamwatch/internal/poller"
)

// ItemFunc receives every newly discovered item, in fetch order.
type ItemFunc func(source string, item listing.Item)

// FailureFunc is invoked exactly once when a poller dies past its retry
// ceiling. The orchestrator keeps serving the remaining pollers.
type FailureFunc func(source string, err error)

// entry binds one poller to its budget handle, in stable round order.
type entry struct {
	name   string
	poller *poller.Poller
	handle *budget.Handle
	dead   bool
}

// Orchestrator supervises a set of pollers sharing one budget counter.
// Pollers are evaluated sequentially within a round, which keeps the rate
// bookkeeping single-writer. Add and Remove are safe to call while Run is
// looping and take effect from the next round.
type Orchestrator struct {
	log         logrus.FieldLogger
	counter     *budget.Counter
	checkpoints checkpoint.Store

	mu      sync.Mutex
	entries []*entry
}

// New creates an orchestrator over the shared counter. A nil store
// disables checkpointing.
func New(logger logrus.FieldLogger, counter *budget.Counter, store checkpoint.Store) (*Orchestrator, error) {
	if counter == nil {
		return nil, fmt.Errorf("counter cannot be nil")
	}

	if store == nil {
		store = checkpoint.NewNoopStore()
	}

	return &Orchestrator{
		log:         logger.WithField("component", "orchestrator"),
		counter:     counter,
		checkpoints: store,
	}, nil
}

// Add registers a poller under name. Duplicate names are rejected.
func (o *Orchestrator) Add(name string, p *poller.Poller) error {
	if p == nil {
		return fmt.Errorf("poller cannot be nil")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, e := range o.entries {
		if e.name == name {
			return fmt.Errorf("poller %q already registered", name)
		}
	}

	o.entries = append(o.entries, &entry{
		name:   name,
		poller: p,
		handle: o.counter.Register(),
	})

	o.log.WithField("source", name).Info("Registered poller")

	return nil
}

// Remove unregisters the named poller. Idempotent; takes effect from the
// next round, immediately shrinking the budget's registered count.
func (o *Orchestrator) Remove(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i, e := range o.entries {
		if e.name == name {
			o.counter.Unregister(e.handle)
			o.entries = append(o.entries[:i], o.entries[i+1:]...)

			o.log.WithField("source", name).Info("Removed poller")

			return
		}
	}
}

// Run executes the merged polling loop until ctx is cancelled. onItem is
// required; onFailed may be nil. Per-poller failures never abort the loop.
func (o *Orchestrator) Run(ctx context.Context, onItem ItemFunc, onFailed FailureFunc) error {
	if onItem == nil {
		return fmt.Errorf("onItem callback cannot be nil")
	}

	o.log.Info("Starting merged polling loop")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		live := o.liveEntries()

		if len(live) == 0 {
			// Nothing to poll; idle one minimum interval before rechecking
			// so Add can bring the loop back to life.
			if err := sleepFor(ctx, o.counter.NextDelay(nil)); err != nil {
				return err
			}

			continue
		}

		for _, e := range live {
			delay := o.counter.NextDelay(e.handle)
			metrics.ObserveDelay(delay)

			if err := sleepFor(ctx, delay); err != nil {
				return err
			}

			o.pollEntry(ctx, e, onItem, onFailed)

			if err := ctx.Err(); err != nil {
				return err
			}
		}

		state := o.counter.Snapshot()
		metrics.SetBudget(state.Remaining, state.ObservedExternal, state.Registered)
	}
}

// pollEntry performs one poller's turn within a round.
func (o *Orchestrator) pollEntry(ctx context.Context, e *entry, onItem ItemFunc, onFailed FailureFunc) {
	items, err := e.poller.PollOnce(ctx)
	o.observeRate(e)

	if err != nil {
		metrics.ObserveFetch(e.name, string(listing.Kind(err)))

		if ctx.Err() != nil {
			return
		}

		o.handleFailure(ctx, e, err, onFailed)

		return
	}

	metrics.ObserveFetch(e.name, "ok")
	metrics.ObserveItems(e.name, len(items))
	metrics.SetPollerHealth(e.name, int(e.poller.Health()))

	for _, item := range items {
		onItem(e.name, item)
	}

	if len(items) > 0 {
		o.saveCheckpoint(ctx, e)
	}
}

// handleFailure degrades, recreates, or buries a poller after a failed
// fetch. At most one recreation attempt per round while degraded; exactly
// one onFailed callback when it dies.
func (o *Orchestrator) handleFailure(ctx context.Context, e *entry, err error, onFailed FailureFunc) {
	if e.poller.Health() == poller.Degraded {
		rerr := e.poller.Recreate(ctx)

		// The probe fetch spends a call and may carry rate metadata either
		// way; an unobserved probe would later be misread as external usage.
		o.observeRate(e)

		if rerr != nil {
			err = rerr
		}
	}

	metrics.SetPollerHealth(e.name, int(e.poller.Health()))

	if e.poller.Health() != poller.Dead {
		return
	}

	e.dead = true
	o.counter.Unregister(e.handle)

	o.log.WithFields(logrus.Fields{
		"source":   e.name,
		"failures": e.poller.ConsecutiveFailures(),
		"error":    err,
	}).Error("Poller exhausted retry ceiling, excluding from future rounds")

	if onFailed != nil {
		onFailed(e.name, fmt.Errorf("poller %s dead after %d consecutive failures: %w",
			e.name, e.poller.ConsecutiveFailures(), err))
	}
}

// observeRate feeds any unconsumed rate metadata into the shared counter.
// Rate-limited failures carry metadata too, so throttled rounds still
// correct the estimate.
func (o *Orchestrator) observeRate(e *entry) {
	if rw := e.poller.TakeRateWindow(); rw != nil {
		o.counter.Observe(*rw)
	}
}

// saveCheckpoint persists the poller's position, best effort.
func (o *Orchestrator) saveCheckpoint(ctx context.Context, e *entry) {
	if err := o.checkpoints.Save(ctx, e.name, e.poller.Checkpoint()); err != nil {
		o.log.WithError(err).WithField("source", e.name).Warn("Failed to save checkpoint")
	}
}

// SaveCheckpoints persists the position of every live poller, used during
// graceful shutdown.
func (o *Orchestrator) SaveCheckpoints(ctx context.Context) {
	for _, e := range o.liveEntries() {
		o.saveCheckpoint(ctx, e)
	}
}

// liveEntries snapshots the non-dead pollers in stable registration order.
func (o *Orchestrator) liveEntries() []*entry {
	o.mu.Lock()
	defer o.mu.Unlock()

	live := make([]*entry, 0, len(o.entries))

	for _, e := range o.entries {
		if !e.dead {
			live = append(live, e)
		}
	}

	return live
}

// sleepFor suspends until the delay elapses or ctx is cancelled.
func sleepFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
