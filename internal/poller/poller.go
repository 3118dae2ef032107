// Package poller produces a restartable, deduplicated sequence of new items
// from one listing source, surviving transient fetch failures and silent
// staleness without re-yielding old items.
package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/streamwatch/streamwatch/internal/dedup"
	"github.com/streamwatch/streamwatch/internal/listing"
)

// Poller wraps one listing source. It owns its fetch cursor and dedup
// window exclusively; all methods must be called from a single loop.
type Poller struct {
	log    logrus.FieldLogger
	source string
	client listing.Client
	cfg    Config

	cursor listing.Cursor
	seen   *dedup.Window

	health              Health
	consecutiveFailures int
	lastSuccess         time.Time
	lastYield           time.Time

	// rateWindow holds the most recent rate metadata, including metadata
	// carried by rate-limited errors, until the orchestrator takes it.
	rateWindow *listing.RateWindow

	now func() time.Time
}

// New creates a poller for the named source.
func New(source string, client listing.Client, cfg Config, logger logrus.FieldLogger) (*Poller, error) {
	if source == "" {
		return nil, fmt.Errorf("source cannot be empty")
	}

	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Poller{
		log:    logger.WithFields(logrus.Fields{"component": "poller", "source": source}),
		source: source,
		client: client,
		cfg:    cfg,
		seen:   dedup.NewWindow(cfg.SeenWindowCap),
		health: Healthy,
		now:    time.Now,
	}, nil
}

// Source returns the name of the listing source this poller watches.
func (p *Poller) Source() string {
	return p.source
}

// Health returns the poller's current liveness state.
func (p *Poller) Health() Health {
	return p.health
}

// ConsecutiveFailures returns the current run of failed fetch attempts.
func (p *Poller) ConsecutiveFailures() int {
	return p.consecutiveFailures
}

// LastSuccess returns the time of the last successful fetch.
func (p *Poller) LastSuccess() time.Time {
	return p.lastSuccess
}

// PollOnce performs one fetch against the current cursor and returns the
// items not yet seen, in chronological order. An empty page, or a page of
// only already-seen ids, is a successful empty round.
func (p *Poller) PollOnce(ctx context.Context) ([]listing.Item, error) {
	cursor := p.cursor

	// A listing anchored on a vanished item goes silent instead of erroring.
	// Fall back to a full fetch when nothing new has shown up for too long.
	stale := !cursor.IsZero() && !p.lastYield.IsZero() && p.now().Sub(p.lastYield) > p.cfg.StaleAfter
	if stale {
		p.log.WithField("stale_after", p.cfg.StaleAfter).Debug("No new items past cadence, doing full fetch")
		p.health = Degraded
		cursor = listing.Cursor{}
	}

	page, err := p.client.Fetch(ctx, p.source, cursor)
	if err != nil {
		return nil, p.recordFailure(err)
	}

	p.recordSuccess(page.RateWindow)
	p.cursor = page.Next

	fresh := make([]listing.Item, 0, len(page.Items))

	// Dedup keys on the anchor: it identifies an item as uniquely as the id
	// and doubles as the cursor value, so a bad anchor can be evicted from
	// the seen window directly.
	for _, item := range page.Items {
		if p.seen.Add(item.Anchor) {
			fresh = append(fresh, item)
		}
	}

	// The staleness clock restarts only once the full fetch succeeds; a
	// failed one must leave the next round stale so it retries unanchored.
	if len(fresh) > 0 || stale {
		p.lastYield = p.now()
	}

	return fresh, nil
}

// Recreate discards the current cursor and rebuilds a fresh one anchored at
// "now" via a probe fetch, without clearing the dedup window. Items that
// arrived during the gap are picked up by the next PollOnce, which re-reads
// the probed page; the dedup window keeps them from yielding twice.
func (p *Poller) Recreate(ctx context.Context) error {
	p.log.WithField("failures", p.consecutiveFailures).Info("Recreating fetch cursor")

	page, err := p.client.Fetch(ctx, p.source, listing.Cursor{})
	if err != nil {
		return p.recordFailure(fmt.Errorf("recreate cursor: %w", err))
	}

	p.recordSuccess(page.RateWindow)
	p.cursor = listing.Cursor{}

	return nil
}

// recordFailure updates health state for a failed fetch and returns err.
func (p *Poller) recordFailure(err error) error {
	p.consecutiveFailures++

	if fe, ok := listing.AsFetchError(err); ok {
		if fe.RateWindow != nil {
			p.rateWindow = fe.RateWindow
		}

		// The anchor no longer resolves; drop it so the next attempt does
		// a full fetch instead of erroring on the same cursor forever.
		if fe.Kind == listing.KindNotFound && !p.cursor.IsZero() {
			p.log.WithField("before", p.cursor.Before).Debug("Dropping unresolvable anchor")
			p.seen.Remove(p.cursor.Before)
			p.cursor = listing.Cursor{}
		}
	}

	if p.consecutiveFailures >= p.cfg.MaxConsecutiveFailures {
		p.health = Dead
	} else {
		p.health = Degraded
	}

	p.log.WithFields(logrus.Fields{
		"health":   p.health.String(),
		"failures": p.consecutiveFailures,
		"error":    err,
	}).Warn("Fetch attempt failed")

	return err
}

// recordSuccess resets failure state after a successful fetch.
func (p *Poller) recordSuccess(rw *listing.RateWindow) {
	p.health = Healthy
	p.consecutiveFailures = 0
	p.lastSuccess = p.now()

	if rw != nil {
		p.rateWindow = rw
	}
}

// TakeRateWindow returns the most recent unconsumed rate metadata, or nil.
// The orchestrator feeds it to the shared counter exactly once.
func (p *Poller) TakeRateWindow() *listing.RateWindow {
	rw := p.rateWindow
	p.rateWindow = nil

	return rw
}

// Checkpoint returns the current cursor anchor for external persistence.
// Empty means the poller has no position yet.
func (p *Poller) Checkpoint() string {
	return p.cursor.Before
}

// Restore seeds the cursor from a persisted anchor so a restart resumes
// roughly where it left off instead of from "now". Best effort: items may
// duplicate or go missing across the restart boundary.
func (p *Poller) Restore(anchor string) {
	if anchor == "" {
		return
	}

	p.cursor = listing.Cursor{Before: anchor}
	p.seen.Add(anchor)
	p.lastYield = p.now()
}
