package lifecycle

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ValidateFunc probes the upstream (API key check, optionally a test forecast). Returns nil if recovered.
type ValidateFunc func(ctx context.Context) error

const defaultAttemptTimeout = 10 * time.Second

// RecoveryConfig configures Recovery. Initial and Max bound the Fibonacci delay sequence.
type RecoveryConfig struct {
	Initial        time.Duration
	Max            time.Duration
	AttemptTimeout time.Duration
	Validate       ValidateFunc
	OnRecovered    func()
	OnExhausted    func()
	Clock          clockwork.Clock
	Logger         *zap.Logger
}

// Recovery retries upstream validation on a Fibonacci schedule after the service turns degraded.
// At most one run is active at a time.
type Recovery struct {
	cfg     RecoveryConfig
	notify  chan struct{}
	running atomic.Bool
}

// NewRecovery returns an idle Recovery. Call Start to begin listening for Notify.
func NewRecovery(cfg RecoveryConfig) *Recovery {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaultAttemptTimeout
	}
	return &Recovery{cfg: cfg, notify: make(chan struct{}, 1)}
}

// Notify signals that the service is degraded. Non-blocking; safe from handlers.
func (r *Recovery) Notify() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Running reports whether a recovery run is in progress.
func (r *Recovery) Running() bool {
	return r.running.Load()
}

// Start listens for Notify until ctx is done, launching a run when none is active.
func (r *Recovery) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.notify:
				if r.running.Swap(true) {
					continue
				}
				go func() {
					defer r.running.Store(false)
					r.Run(ctx)
				}()
			}
		}
	}()
}

// Run waits out each delay and calls Validate. Stops on the first success (OnRecovered)
// or after the last delay fails (OnExhausted). Returns true when recovered.
func (r *Recovery) Run(ctx context.Context) bool {
	delays := fibDelays(r.cfg.Initial, r.cfg.Max)
	if len(delays) == 0 || r.cfg.Validate == nil {
		return false
	}
	for i, d := range delays {
		select {
		case <-ctx.Done():
			return false
		case <-r.cfg.Clock.After(d):
		}
		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
		err := r.cfg.Validate(attemptCtx)
		cancel()
		if err == nil {
			r.cfg.Logger.Info("recovered from degraded state", zap.Int("attempt", i+1))
			if r.cfg.OnRecovered != nil {
				r.cfg.OnRecovered()
			}
			return true
		}
		r.cfg.Logger.Warn("recovery attempt failed", zap.Int("attempt", i+1), zap.Duration("delay", d), zap.Error(err))
	}
	r.cfg.Logger.Error("recovery exhausted", zap.Int("attempts", len(delays)))
	if r.cfg.OnExhausted != nil {
		r.cfg.OnExhausted()
	}
	return false
}

// fibDelays returns initial×1, ×2, ×3, ×5, ... up to and including max.
func fibDelays(initial, max time.Duration) []time.Duration {
	if initial <= 0 || max < initial {
		return nil
	}
	var out []time.Duration
	for a, b := int64(1), int64(2); ; a, b = b, a+b {
		d := time.Duration(a) * initial
		if d > max {
			break
		}
		out = append(out, d)
	}
	return out
}
