// Package budget tracks the shared rate-limit allowance and sizes the delay
// between poll rounds so that aggregate usage across all registered pollers
// converges on a target fraction of the window without tripping the limit.
//
// The counter never guesses usage it did not observe: remaining calls and
// the reset time come only from authoritative API responses. Consumption by
// other processes sharing the same account shows up as a gap between the
// remaining count this process predicted and the count the service actually
// reported; that gap feeds an estimated external rate which is projected
// over the rest of the window when sizing future delays.
package budget

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/streamwatch/streamwatch/internal/listing"
)

// externalRateSmoothing is the exponential smoothing factor applied to the
// observed external consumption rate.
const externalRateSmoothing = 0.5

// Handle is the registration of one poller against a Counter. Its fields
// are guarded by the owning counter's mutex.
type Handle struct {
	id string

	// lastRequest is the moment the handle's next fetch was scheduled for,
	// used to credit time already elapsed against the next spacing.
	lastRequest time.Time
}

// State is a read-only snapshot of the counter's view of the rate window.
type State struct {
	Capacity         int
	Remaining        int
	ResetAt          time.Time
	ObservedExternal int
	Registered       int
}

// Counter divides the observed rate-limit budget among registered handles.
// All methods are safe for concurrent use.
type Counter struct {
	mu  sync.Mutex
	log logrus.FieldLogger
	cfg Config

	handles map[string]*Handle

	observed         bool
	capacity         int
	remaining        int
	resetAt          time.Time
	observedExternal int

	// predicted is the remaining count we expect the service to report on
	// the next observation, assuming no external consumers.
	predicted     int
	externalRate  float64 // estimated external calls per second
	lastObserveAt time.Time

	now func() time.Time
}

// NewCounter creates a rate budget counter.
func NewCounter(cfg Config, logger logrus.FieldLogger) (*Counter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Counter{
		log:     logger.WithField("component", "budget"),
		cfg:     cfg,
		handles: make(map[string]*Handle),
		now:     time.Now,
	}, nil
}

// Register adds a participant. Future delay computations divide the budget
// among one more party.
func (c *Counter) Register() *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := &Handle{id: uuid.New().String()}
	c.handles[h.id] = h

	return h
}

// Unregister removes a participant. Idempotent; nil handles are ignored.
func (c *Counter) Unregister(h *Handle) {
	if h == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.handles, h.id)
}

// Observe ingests an authoritative rate snapshot from a fetch response.
// The reported values overwrite local state wholesale; the delta between
// predicted and reported remaining is attributed to external consumers.
func (c *Counter) Observe(rw listing.RateWindow) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	switch {
	case !c.observed:
		// First authoritative snapshot.
	case rw.ResetAt.After(c.resetAt.Add(time.Second)):
		// Window rolled over. External consumers likely persist, so the
		// smoothed rate carries across, but per-window accounting restarts.
		c.log.WithFields(logrus.Fields{
			"reset_at":          rw.ResetAt,
			"observed_external": c.observedExternal,
		}).Debug("Rate window rolled over")

		c.observedExternal = 0
	default:
		// One of our own calls produced this observation.
		expected := c.predicted - 1
		if expected < 0 {
			expected = 0
		}

		delta := expected - rw.Remaining
		elapsed := now.Sub(c.lastObserveAt)

		if delta > 0 && elapsed > 0 {
			c.observedExternal += delta
			rate := float64(delta) / elapsed.Seconds()
			c.externalRate = externalRateSmoothing*rate + (1-externalRateSmoothing)*c.externalRate

			c.log.WithFields(logrus.Fields{
				"external_calls": delta,
				"external_rate":  c.externalRate,
				"remaining":      rw.Remaining,
			}).Debug("Detected external rate-limit consumption")
		} else if delta <= 0 {
			c.externalRate *= 1 - externalRateSmoothing
		}
	}

	capacity := rw.Capacity
	if capacity < rw.Remaining {
		capacity = rw.Remaining
	}

	c.observed = true
	c.capacity = capacity
	c.remaining = rw.Remaining
	c.resetAt = rw.ResetAt
	c.predicted = rw.Remaining
	c.lastObserveAt = now
}

// NextDelay computes how long the handle must wait before its next fetch.
// Never negative; falls back to MinDelay when the window state is unknown
// or stale, and grows toward the full time-to-reset as the budget thins.
func (c *Counter) NextDelay(h *Handle) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	delay := c.spacing(now, h)

	// Jitter so fetches never land on a fixed interval.
	if delay > 0 {
		delay += rand.N(delay/16 + 1)
	}

	if h != nil {
		h.lastRequest = now.Add(delay)
	}

	return delay
}

// spacing computes the un-jittered delay for a handle. Caller holds c.mu.
func (c *Counter) spacing(now time.Time, h *Handle) time.Duration {
	if !c.observed || !now.Before(c.resetAt) {
		// Never observed, or the window reset without a fresh snapshot.
		return c.cfg.MinDelay
	}

	registered := len(c.handles)
	if registered < 1 {
		registered = 1
	}

	timeToReset := c.resetAt.Sub(now)

	// Discount the allowance expected to be burned by external consumers.
	usable := c.remaining - int(c.externalRate*timeToReset.Seconds())
	if usable < 0 {
		usable = 0
	}

	desired := int(float64(usable)*c.cfg.TargetUtilization) / registered
	if desired < 1 {
		// Fewer usable calls than pollers: let the delay grow to the full
		// time-to-reset rather than starving any single poller.
		desired = 1
	}

	spacing := timeToReset / time.Duration(desired)

	// Credit wall time already elapsed since this handle's last scheduled
	// fetch, so slow rounds do not stack on top of the computed spacing.
	if h != nil && !h.lastRequest.IsZero() {
		if since := now.Sub(h.lastRequest); since > 0 {
			spacing -= since
		}
	}

	if spacing > timeToReset {
		spacing = timeToReset
	}

	if spacing < c.cfg.MinDelay {
		spacing = c.cfg.MinDelay
	}

	return spacing
}

// Snapshot returns the counter's current view of the rate window.
func (c *Counter) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return State{
		Capacity:         c.capacity,
		Remaining:        c.remaining,
		ResetAt:          c.resetAt,
		ObservedExternal: c.observedExternal,
		Registered:       len(c.handles),
	}
}
