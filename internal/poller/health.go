package poller

// Health is the liveness state of a poller.
type Health int

const (
	// Healthy means the last fetch succeeded.
	Healthy Health = iota

	// Degraded means the last fetch failed, or the source went silent for
	// longer than the expected cadence. The orchestrator attempts one
	// recreation per round while a poller is degraded.
	Degraded

	// Dead means the failure ceiling was exhausted. The orchestrator
	// excludes a dead poller from all future rounds.
	Dead
)

func (h Health) String() string {
	switch h {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}
