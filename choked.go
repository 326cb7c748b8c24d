package choked

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/choked/choked-go/estimator"
)

// Decision is the raw outcome of one atomic acquire against a Store.
// Remaining amounts are the post-decision balances of both dimensions.
type Decision struct {
	Allowed           bool
	RemainingRequests float64
	RemainingUnits    float64
}

// Store is the admission backend. Acquire must atomically refill the bucket
// for the key, check that both requested amounts fit, and deduct them
// all-or-nothing. A denied acquire deducts neither dimension. Backend
// failures are reported as errors wrapping ErrBackendUnavailable; denial is
// not an error.
//
// State for an unseen key is created lazily at full capacity; concurrent
// first access from many callers must converge to a single bucket.
type Store interface {
	Acquire(ctx context.Context, key string, pol Policy, requests, units int64) (Decision, error)
}

// Result contains the outcome of a rate limit check. It provides the data
// needed to populate standard rate-limiting HTTP headers.
type Result struct {
	// Allowed indicates whether the call is permitted.
	Allowed bool
	// RequestLimit and UnitLimit are the burst capacities of the policy.
	RequestLimit int64
	UnitLimit    int64
	// RemainingRequests and RemainingUnits are the whole amounts left in the
	// bucket after the decision is applied.
	RemainingRequests int64
	RemainingUnits    int64
	// RetryAfter is zero when allowed; when denied it approximates how long
	// until refill covers the deficit.
	RetryAfter time.Duration
}

// Limiter is the interface middleware and wrappers interact with.
type Limiter interface {
	// Allow performs a single non-blocking admission check for a key.
	Allow(ctx context.Context, key string, args ...any) (Result, error)
	// Wait blocks until the key admits the call, sleeping with jittered
	// exponential backoff between denials. It returns the context error if
	// cancelled and backend errors immediately.
	Wait(ctx context.Context, key string, args ...any) error
}

// TokenBucket binds a Policy to a Store and implements Limiter. One
// TokenBucket can serve many keys; calls sharing a key share one bucket.
type TokenBucket struct {
	store         Store
	policy        Policy
	estimate      estimator.Func
	estimatorName string
	logger        Logger
	initialSleep  time.Duration
	backoffCap    time.Duration

	// test seams
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// BucketOption configures a TokenBucket.
type BucketOption func(*TokenBucket)

// WithEstimator selects a registered unit estimator by name ("default",
// "openai", "voyageai"). Unknown names fail NewTokenBucket.
func WithEstimator(name string) BucketOption {
	return func(b *TokenBucket) { b.estimatorName = name }
}

// WithEstimatorFunc injects a custom unit estimator, bypassing the registry.
func WithEstimatorFunc(f estimator.Func) BucketOption {
	return func(b *TokenBucket) {
		if f != nil {
			b.estimate = f
		}
	}
}

// WithBucketLogger sets the logger used by Allow and Wait.
func WithBucketLogger(l Logger) BucketOption {
	return func(b *TokenBucket) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithInitialSleep sets the first backoff delay of the Wait loop.
// The default is one second.
func WithInitialSleep(d time.Duration) BucketOption {
	return func(b *TokenBucket) {
		if d > 0 {
			b.initialSleep = d
		}
	}
}

// WithBackoffCap bounds the exponential backoff of the Wait loop. The
// default is no cap: the delay doubles without limit until admission.
func WithBackoffCap(d time.Duration) BucketOption {
	return func(b *TokenBucket) {
		if d > 0 {
			b.backoffCap = d
		}
	}
}

// NewTokenBucket creates a limiter enforcing the given limits through the
// store. requestLimit and unitLimit use the "<n>/s" / "<n>/m" rate format;
// an empty string leaves that dimension unlimited, but at least one must be
// set.
func NewTokenBucket(st Store, requestLimit, unitLimit string, opts ...BucketOption) (*TokenBucket, error) {
	pol, err := NewPolicy(requestLimit, unitLimit)
	if err != nil {
		return nil, err
	}

	b := &TokenBucket{
		store:        st,
		policy:       pol,
		logger:       &noopLogger{},
		initialSleep: time.Second,
		sleep:        sleepContext,
		jitter:       func() float64 { return 0.8 + rand.Float64()*0.4 },
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.estimatorName != "" {
		f, err := estimator.Lookup(b.estimatorName)
		if err != nil {
			return nil, err
		}
		b.estimate = f
	}
	if b.estimate == nil && pol.LimitsUnits() {
		b.estimate = estimator.Default
	}

	return b, nil
}

// cost computes the amounts to request from the bucket for one call. The
// estimator runs once per call, before the retry loop, so a retried call is
// charged the same amounts it was first denied for.
func (b *TokenBucket) cost(args []any) (requests, units int64) {
	if b.policy.LimitsRequests() {
		requests = 1
	}
	if b.policy.LimitsUnits() {
		units = b.estimate(args...)
	}
	return requests, units
}

// Allow performs a single admission check for key, charging one request
// and the estimated units of args. It never blocks on denial.
func (b *TokenBucket) Allow(ctx context.Context, key string, args ...any) (Result, error) {
	requests, units := b.cost(args)
	dec, err := b.store.Acquire(ctx, key, b.policy, requests, units)
	if err != nil {
		b.logger.Errorf("acquire failed for key '%s': %v", key, err)
		return Result{}, err
	}
	return b.result(dec, requests, units), nil
}

// Wait blocks until the bucket for key admits the call. Between denials it
// sleeps backoff*jitter with jitter drawn uniformly from [0.8, 1.2], then
// doubles the backoff. The sleep is the only suspension point; cancelling
// ctx abandons the wait without leaving partial state, since a denied
// acquire deducts nothing.
func (b *TokenBucket) Wait(ctx context.Context, key string, args ...any) error {
	requests, units := b.cost(args)

	backoff := b.initialSleep
	for {
		dec, err := b.store.Acquire(ctx, key, b.policy, requests, units)
		if err != nil {
			b.logger.Errorf("acquire failed for key '%s': %v", key, err)
			return err
		}
		if dec.Allowed {
			b.logger.Debugf(
				"admitted key '%s': requests=%d units=%d remaining=%.0f/%.0f",
				key, requests, units, dec.RemainingRequests, dec.RemainingUnits,
			)
			return nil
		}

		delay := time.Duration(float64(backoff) * b.jitter())
		b.logger.Debugf(
			"denied key '%s': requests=%d units=%d remaining=%.0f/%.0f, sleeping %s",
			key, requests, units, dec.RemainingRequests, dec.RemainingUnits, delay,
		)
		if err := b.sleep(ctx, delay); err != nil {
			return err
		}
		backoff *= 2
		if b.backoffCap > 0 && backoff > b.backoffCap {
			backoff = b.backoffCap
		}
	}
}

// Do waits for admission on key and then runs fn. args feed the unit
// estimator only; they are not passed to fn.
func (b *TokenBucket) Do(ctx context.Context, key string, fn func(context.Context) error, args ...any) error {
	if err := b.Wait(ctx, key, args...); err != nil {
		return err
	}
	return fn(ctx)
}

func (b *TokenBucket) result(dec Decision, requests, units int64) Result {
	res := Result{
		Allowed:           dec.Allowed,
		RequestLimit:      b.policy.RequestCapacity,
		UnitLimit:         b.policy.UnitCapacity,
		RemainingRequests: flooredRemaining(dec.RemainingRequests),
		RemainingUnits:    flooredRemaining(dec.RemainingUnits),
	}
	if !dec.Allowed {
		res.RetryAfter = b.policy.retryAfter(
			float64(requests)-dec.RemainingRequests,
			float64(units)-dec.RemainingUnits,
		)
	}
	return res
}

func flooredRemaining(v float64) int64 {
	n := int64(math.Floor(v))
	if n < 0 {
		n = 0
	}
	return n
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Wrap binds a key to fn through the limiter: the returned function waits
// for admission, feeding the call argument to the unit estimator, and then
// invokes fn. Functions wrapped with the same key share one bucket.
func Wrap[A, R any](l Limiter, key string, fn func(context.Context, A) (R, error)) func(context.Context, A) (R, error) {
	return func(ctx context.Context, arg A) (R, error) {
		if err := l.Wait(ctx, key, arg); err != nil {
			var zero R
			return zero, fmt.Errorf("rate limit wait for key '%s': %w", key, err)
		}
		return fn(ctx, arg)
	}
}
