package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream failed")

func fail() error { return errUpstream }
func ok() error   { return nil }

type transitions struct {
	mu  sync.Mutex
	got []string
}

func (tr *transitions) record(from, to State) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.got = append(tr.got, from.String()+"->"+to.String())
}

func (tr *transitions) list() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.got...)
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	tr := &transitions{}
	cb := New(Config{FailureThreshold: 3, Timeout: time.Hour, Component: "weather_api", OnStateChange: tr.record})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Call(ctx, fail), errUpstream)
	}
	assert.Equal(t, StateClosed, cb.State())

	assert.ErrorIs(t, cb.Call(ctx, fail), errUpstream)
	assert.Equal(t, StateOpen, cb.State())

	ran := false
	err := cb.Call(ctx, func() error { ran = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, ran, "open circuit must not run fn")
	assert.Equal(t, []string{"closed->open"}, tr.list())
	assert.Equal(t, "weather_api", cb.Component())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := New(Config{FailureThreshold: 2, Timeout: time.Hour})
	ctx := context.Background()

	require.Error(t, cb.Call(ctx, fail))
	require.NoError(t, cb.Call(ctx, ok))
	require.Error(t, cb.Call(ctx, fail))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	tr := &transitions{}
	cb := New(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 20 * time.Millisecond, OnStateChange: tr.record})
	ctx := context.Background()

	require.Error(t, cb.Call(ctx, fail))
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Call(ctx, ok))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Call(ctx, ok))
	assert.Equal(t, StateClosed, cb.State())

	assert.Equal(t, []string{"closed->open", "open->half_open", "half_open->closed"}, tr.list())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, Timeout: 20 * time.Millisecond})
	ctx := context.Background()

	require.Error(t, cb.Call(ctx, fail))
	time.Sleep(40 * time.Millisecond)
	require.Error(t, cb.Call(ctx, fail))
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_IsSuccessfulExcludesErrors(t *testing.T) {
	notFound := errors.New("not found")
	cb := New(Config{
		FailureThreshold: 1,
		Timeout:          time.Hour,
		IsSuccessful:     func(err error) bool { return err == nil || errors.Is(err, notFound) },
	})

	err := cb.Call(context.Background(), func() error { return notFound })
	assert.ErrorIs(t, err, notFound)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_CanceledContext(t *testing.T) {
	cb := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err := cb.Call(ctx, func() error { ran = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}
