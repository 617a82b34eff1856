package service

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/activity-advisor-service/internal/models"
)

// requestCoalescer collapses concurrent upstream fetches for the same key into one call.
type requestCoalescer struct {
	group   singleflight.Group
	timeout time.Duration
}

// newRequestCoalescer returns a coalescer whose shared calls are bounded by timeout (0 = caller deadline only).
func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{timeout: timeout}
}

// GetOrDo runs fn once for all concurrent callers of key. fn keeps running when the caller
// that started it gives up, so other waiters still get the result. shared reports whether
// the result was delivered to more than one caller.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func(ctx context.Context) (models.WeatherSnapshot, error)) (snap models.WeatherSnapshot, shared bool, err error) {
	ch := rc.group.DoChan(key, func() (interface{}, error) {
		callCtx := context.WithoutCancel(ctx)
		if rc.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(callCtx, rc.timeout)
			defer cancel()
		}
		return fn(callCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return models.WeatherSnapshot{}, res.Shared, res.Err
		}
		return res.Val.(models.WeatherSnapshot), res.Shared, nil
	case <-ctx.Done():
		return models.WeatherSnapshot{}, false, ctx.Err()
	}
}
