package lifecycle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFibDelays(t *testing.T) {
	want := []time.Duration{1, 2, 3, 5, 8, 13}
	for i := range want {
		want[i] *= time.Minute
	}
	assert.Equal(t, want, fibDelays(time.Minute, 13*time.Minute))
	assert.Equal(t, []time.Duration{time.Minute, 2 * time.Minute, 3 * time.Minute, 5 * time.Minute}, fibDelays(time.Minute, 7*time.Minute))
	assert.Nil(t, fibDelays(0, time.Minute))
	assert.Nil(t, fibDelays(2*time.Minute, time.Minute))
}

func TestRecovery_RecoversOnSecondAttempt(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	clock := clockwork.NewFakeClock()

	var attempts atomic.Int32
	var recovered, exhausted atomic.Bool
	r := NewRecovery(RecoveryConfig{
		Initial: time.Minute,
		Max:     5 * time.Minute,
		Clock:   clock,
		Validate: func(context.Context) error {
			if attempts.Add(1) >= 2 {
				return nil
			}
			return errors.New("still failing")
		},
		OnRecovered: func() { recovered.Store(true) },
		OnExhausted: func() { exhausted.Store(true) },
	})

	done := make(chan bool, 1)
	go func() { done <- r.Run(ctx) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(2 * time.Minute)

	assert.True(t, <-done)
	assert.Equal(t, int32(2), attempts.Load())
	assert.True(t, recovered.Load())
	assert.False(t, exhausted.Load())
}

func TestRecovery_Exhausted(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	clock := clockwork.NewFakeClock()

	var exhausted atomic.Bool
	r := NewRecovery(RecoveryConfig{
		Initial:     time.Minute,
		Max:         2 * time.Minute,
		Clock:       clock,
		Validate:    func(context.Context) error { return errors.New("always fail") },
		OnExhausted: func() { exhausted.Store(true) },
	})

	done := make(chan bool, 1)
	go func() { done <- r.Run(ctx) }()

	for _, d := range []time.Duration{time.Minute, 2 * time.Minute} {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(d)
	}

	assert.False(t, <-done)
	assert.True(t, exhausted.Load())
}

func TestRecovery_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := clockwork.NewFakeClock()
	var exhausted atomic.Bool
	r := NewRecovery(RecoveryConfig{
		Initial:     time.Minute,
		Max:         time.Minute,
		Clock:       clock,
		Validate:    func(context.Context) error { return nil },
		OnExhausted: func() { exhausted.Store(true) },
	})

	done := make(chan bool, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	assert.False(t, <-done)
	assert.False(t, exhausted.Load())
}

func TestRecovery_NotifyStartsSingleRun(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	clock := clockwork.NewFakeClock()

	var recoveredCalls atomic.Int32
	r := NewRecovery(RecoveryConfig{
		Initial:     time.Minute,
		Max:         time.Minute,
		Clock:       clock,
		Validate:    func(context.Context) error { return nil },
		OnRecovered: func() { recoveredCalls.Add(1) },
	})
	r.Start(ctx)

	r.Notify()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.True(t, r.Running())

	r.Notify()
	r.Notify()
	require.Eventually(t, func() bool { return len(r.notify) == 0 }, time.Second, time.Millisecond)

	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return !r.Running() }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), recoveredCalls.Load())
}
