package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/activity-advisor-service/internal/models"
)

func TestRequestCoalescer_GetOrDo_ConcurrentRequests(t *testing.T) {
	coalescer := newRequestCoalescer(5 * time.Second)
	var calls atomic.Int32

	fn := func(context.Context) (models.WeatherSnapshot, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond) // Simulate API call
		return models.WeatherSnapshot{Temperature: 61}, nil
	}

	var wg sync.WaitGroup
	results := make([]models.WeatherSnapshot, 10)
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], _, errs[idx] = coalescer.GetOrDo(context.Background(), "k", fn)
		}(i)
	}
	wg.Wait()

	for i, result := range results {
		if errs[i] != nil {
			t.Errorf("Request %d error = %v, want nil", i, errs[i])
		}
		if result.Temperature != 61 {
			t.Errorf("Request %d temperature = %v, want 61", i, result.Temperature)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("fn call count = %d, want 1 (coalescing failed)", calls.Load())
	}
}

func TestRequestCoalescer_GetOrDo_ErrorPropagation(t *testing.T) {
	coalescer := newRequestCoalescer(5 * time.Second)
	wantErr := errors.New("api failure")

	_, _, err := coalescer.GetOrDo(context.Background(), "k", func(context.Context) (models.WeatherSnapshot, error) {
		return models.WeatherSnapshot{}, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("GetOrDo() error = %v, want %v", err, wantErr)
	}
}

func TestRequestCoalescer_GetOrDo_CallerCancellation(t *testing.T) {
	coalescer := newRequestCoalescer(5 * time.Second)
	release := make(chan struct{})
	var fnCtxErr atomic.Value

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := coalescer.GetOrDo(ctx, "k", func(fctx context.Context) (models.WeatherSnapshot, error) {
			<-release
			if err := fctx.Err(); err != nil {
				fnCtxErr.Store(err)
			}
			return models.WeatherSnapshot{}, nil
		})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("GetOrDo() error = %v, want context.Canceled", err)
	}

	// A later caller joins the still-running fetch.
	joined := make(chan error, 1)
	go func() {
		_, _, err := coalescer.GetOrDo(context.Background(), "k", func(context.Context) (models.WeatherSnapshot, error) {
			t.Error("second fn should not run while first is in flight")
			return models.WeatherSnapshot{}, nil
		})
		joined <- err
	}()
	time.Sleep(10 * time.Millisecond)
	close(release)
	if err := <-joined; err != nil {
		t.Errorf("joined GetOrDo() error = %v", err)
	}
	if v := fnCtxErr.Load(); v != nil {
		t.Errorf("shared fetch saw cancellation: %v", v)
	}
}

func TestRequestCoalescer_GetOrDo_Timeout(t *testing.T) {
	coalescer := newRequestCoalescer(20 * time.Millisecond)

	_, _, err := coalescer.GetOrDo(context.Background(), "k", func(fctx context.Context) (models.WeatherSnapshot, error) {
		<-fctx.Done()
		return models.WeatherSnapshot{}, fctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("GetOrDo() error = %v, want context.DeadlineExceeded", err)
	}
}
