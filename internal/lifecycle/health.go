package lifecycle

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/activity-advisor-service/internal/traffic"
)

// Status is the service state reported by /health.
type Status string

const (
	StatusHealthy      Status = "healthy"
	StatusIdle         Status = "idle"
	StatusDegraded     Status = "degraded"
	StatusOverloaded   Status = "overloaded"
	StatusShuttingDown Status = "shutting-down"
)

// Reasons attached to non-healthy results; logged on status transitions.
const (
	ReasonSignal          = "signal"
	ReasonAPIKeyInvalid   = "api_key_invalid"
	ReasonOverload        = "overload_threshold"
	ReasonLowTraffic      = "low_traffic"
	ReasonErrorRateBreach = "error_rate_breach"
)

// Thresholds configures the traffic-based checks. A zero window disables its check.
type Thresholds struct {
	RateLimitRPS         int
	OverloadWindow       time.Duration
	OverloadThresholdPct int

	IdleWindow             time.Duration
	IdleThresholdReqPerMin int
	MinimumLifespan        time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int
}

// Result is one health evaluation.
type Result struct {
	Status Status
	Reason string
}

// Available reports whether the instance should keep receiving traffic.
// Idle instances still serve; they are only candidates for scale-down.
func (r Result) Available() bool {
	return r.Status == StatusHealthy || r.Status == StatusIdle
}

// Monitor evaluates health from the shutdown flag, API key validity and the traffic tracker.
type Monitor struct {
	tracker     *traffic.Tracker
	clock       clockwork.Clock
	start       time.Time
	thresholds  Thresholds
	validateKey func(ctx context.Context) error
	onDegraded  func()
}

// NewMonitor returns a Monitor whose uptime starts now. validateKey may be nil; onDegraded,
// when set, is called every time an error-rate breach is observed (e.g. Recovery.Notify).
func NewMonitor(tracker *traffic.Tracker, clock clockwork.Clock, t Thresholds, validateKey func(ctx context.Context) error, onDegraded func()) *Monitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if tracker == nil {
		tracker = traffic.Default()
	}
	return &Monitor{
		tracker:     tracker,
		clock:       clock,
		start:       clock.Now(),
		thresholds:  t,
		validateKey: validateKey,
		onDegraded:  onDegraded,
	}
}

// Uptime returns time since the monitor was created.
func (m *Monitor) Uptime() time.Duration {
	return m.clock.Since(m.start)
}

// Evaluate checks conditions in priority order:
// shutting-down > API key invalid > overloaded > idle > degraded > healthy.
func (m *Monitor) Evaluate(ctx context.Context) Result {
	if IsShuttingDown() {
		return Result{StatusShuttingDown, ReasonSignal}
	}
	if m.validateKey != nil {
		if err := m.validateKey(ctx); err != nil {
			return Result{StatusDegraded, ReasonAPIKeyInvalid}
		}
	}
	t := m.thresholds
	if t.OverloadWindow > 0 && t.RateLimitRPS > 0 && t.OverloadThresholdPct > 0 {
		limit := float64(t.RateLimitRPS) * t.OverloadWindow.Seconds() * float64(t.OverloadThresholdPct) / 100
		if float64(m.tracker.RequestCount(t.OverloadWindow)) > limit {
			return Result{StatusOverloaded, ReasonOverload}
		}
	}
	if t.IdleWindow > 0 && t.MinimumLifespan > 0 && m.Uptime() >= t.MinimumLifespan {
		floor := float64(t.IdleThresholdReqPerMin) * t.IdleWindow.Minutes()
		if float64(m.tracker.ServedCount(t.IdleWindow)) < floor {
			return Result{StatusIdle, ReasonLowTraffic}
		}
	}
	if t.DegradedWindow > 0 && t.DegradedErrorPct > 0 {
		errs, total := m.tracker.ErrorRate(t.DegradedWindow)
		if total > 0 && float64(errs)*100/float64(total) >= float64(t.DegradedErrorPct) {
			if m.onDegraded != nil {
				m.onDegraded()
			}
			return Result{StatusDegraded, ReasonErrorRateBreach}
		}
	}
	return Result{StatusHealthy, ""}
}
