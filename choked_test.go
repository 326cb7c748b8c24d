package choked

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/choked/choked-go/estimator"
)

// scriptedStore denies the first N acquires and admits everything after,
// recording what was asked of it.
type scriptedStore struct {
	mu       sync.Mutex
	denials  int
	calls    int
	requests []int64
	units    []int64
	err      error
}

func (s *scriptedStore) Acquire(ctx context.Context, key string, pol Policy, requests, units int64) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Decision{}, s.err
	}
	s.calls++
	s.requests = append(s.requests, requests)
	s.units = append(s.units, units)
	if s.calls <= s.denials {
		return Decision{Allowed: false}, nil
	}
	return Decision{Allowed: true, RemainingRequests: 1, RemainingUnits: 1}, nil
}

func TestWait_BackoffGrowth(t *testing.T) {
	st := &scriptedStore{denials: 5}
	tb, err := NewTokenBucket(st, "10/s", "")
	if err != nil {
		t.Fatalf("NewTokenBucket failed: %v", err)
	}

	var sleeps []time.Duration
	tb.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	if err := tb.Wait(context.Background(), "backoff"); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	if len(sleeps) != 5 {
		t.Fatalf("expected 5 sleeps, got %d", len(sleeps))
	}
	for n, d := range sleeps {
		scale := math.Pow(2, float64(n))
		lo := time.Duration(0.8 * scale * float64(time.Second))
		hi := time.Duration(1.2 * scale * float64(time.Second))
		if d < lo || d > hi {
			t.Errorf("sleep %d = %s, want within [%s, %s]", n, d, lo, hi)
		}
	}
}

func TestWait_BackoffCap(t *testing.T) {
	st := &scriptedStore{denials: 6}
	tb, err := NewTokenBucket(st, "10/s", "", WithBackoffCap(2*time.Second))
	if err != nil {
		t.Fatalf("NewTokenBucket failed: %v", err)
	}

	var sleeps []time.Duration
	tb.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	if err := tb.Wait(context.Background(), "capped"); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	max := time.Duration(1.2 * 2 * float64(time.Second))
	for n, d := range sleeps {
		if d > max {
			t.Errorf("sleep %d = %s exceeds capped maximum %s", n, d, max)
		}
	}
}

func TestWait_BackendErrorPropagates(t *testing.T) {
	backendErr := fmt.Errorf("%w: connection refused", ErrBackendUnavailable)
	st := &scriptedStore{err: backendErr}
	tb, err := NewTokenBucket(st, "10/s", "")
	if err != nil {
		t.Fatalf("NewTokenBucket failed: %v", err)
	}

	slept := false
	tb.sleep = func(ctx context.Context, d time.Duration) error {
		slept = true
		return nil
	}

	err = tb.Wait(context.Background(), "broken")
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
	if slept {
		t.Error("backend errors must not be retried")
	}
}

func TestWait_Cancellation(t *testing.T) {
	// Deny forever; the wait must stop at the sleep boundary.
	st := &scriptedStore{denials: 1 << 30}
	tb, err := NewTokenBucket(st, "10/s", "", WithInitialSleep(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewTokenBucket failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = tb.Wait(ctx, "cancelled")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestCost_Dimensions(t *testing.T) {
	t.Run("request only skips estimator", func(t *testing.T) {
		st := &scriptedStore{}
		tb, err := NewTokenBucket(st, "10/s", "", WithEstimatorFunc(func(args ...any) int64 {
			t.Error("estimator must not run for a request-only policy")
			return 1
		}))
		if err != nil {
			t.Fatalf("NewTokenBucket failed: %v", err)
		}
		if err := tb.Wait(context.Background(), "req-only", "some text"); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
		if st.requests[0] != 1 || st.units[0] != 0 {
			t.Errorf("asked (%d, %d), want (1, 0)", st.requests[0], st.units[0])
		}
	})

	t.Run("unit only asks zero requests", func(t *testing.T) {
		st := &scriptedStore{}
		tb, err := NewTokenBucket(st, "", "100/s", WithEstimatorFunc(func(args ...any) int64 {
			return 42
		}))
		if err != nil {
			t.Fatalf("NewTokenBucket failed: %v", err)
		}
		if err := tb.Wait(context.Background(), "unit-only", "payload"); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
		if st.requests[0] != 0 || st.units[0] != 42 {
			t.Errorf("asked (%d, %d), want (0, 42)", st.requests[0], st.units[0])
		}
	})

	t.Run("estimator runs once per call", func(t *testing.T) {
		st := &scriptedStore{denials: 3}
		var estimates int
		tb, err := NewTokenBucket(st, "10/s", "100/s", WithEstimatorFunc(func(args ...any) int64 {
			estimates++
			return 5
		}))
		if err != nil {
			t.Fatalf("NewTokenBucket failed: %v", err)
		}
		tb.sleep = func(ctx context.Context, d time.Duration) error { return nil }
		if err := tb.Wait(context.Background(), "retried", "payload"); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
		if estimates != 1 {
			t.Errorf("estimator ran %d times, want 1", estimates)
		}
		for i, u := range st.units {
			if u != 5 {
				t.Errorf("attempt %d asked for %d units, want 5", i, u)
			}
		}
	})
}

func TestNewTokenBucket_Validation(t *testing.T) {
	st := &scriptedStore{}

	t.Run("no limits", func(t *testing.T) {
		_, err := NewTokenBucket(st, "", "")
		if !errors.Is(err, ErrInvalidPolicy) {
			t.Fatalf("expected ErrInvalidPolicy, got %v", err)
		}
	})

	t.Run("unknown estimator", func(t *testing.T) {
		_, err := NewTokenBucket(st, "10/s", "100/s", WithEstimator("anthropic"))
		if !errors.Is(err, estimator.ErrUnknownEstimator) {
			t.Fatalf("expected ErrUnknownEstimator, got %v", err)
		}
	})

	t.Run("known estimator", func(t *testing.T) {
		tb, err := NewTokenBucket(st, "10/s", "100/s", WithEstimator("openai"))
		if err != nil {
			t.Fatalf("NewTokenBucket failed: %v", err)
		}
		if tb.estimate == nil {
			t.Error("estimator not resolved")
		}
	})
}

func TestAllow_Result(t *testing.T) {
	st := &scriptedStore{denials: 1}
	tb, err := NewTokenBucket(st, "10/s", "")
	if err != nil {
		t.Fatalf("NewTokenBucket failed: %v", err)
	}

	res, err := tb.Allow(context.Background(), "result")
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if res.Allowed {
		t.Fatal("first scripted call should be denied")
	}
	if res.RequestLimit != 10 {
		t.Errorf("RequestLimit = %d, want 10", res.RequestLimit)
	}
	if res.RetryAfter <= 0 {
		t.Errorf("denied result should carry a positive RetryAfter, got %s", res.RetryAfter)
	}

	res, err = tb.Allow(context.Background(), "result")
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if !res.Allowed {
		t.Fatal("second scripted call should be admitted")
	}
	if res.RetryAfter != 0 {
		t.Errorf("admitted result should have zero RetryAfter, got %s", res.RetryAfter)
	}
}
