// Package choked provides token-bucket admission control for arbitrary call
// sites, optionally shared across processes through Redis or delegated to a
// remote quota service.
//
// A limit has two dimensions: a request count and a consumption-unit count
// (for example, estimated API tokens). Both dimensions are checked and charged
// atomically against one bucket; all call sites sharing a key share one
// logical bucket.
//
// The package defines three core abstractions:
//   - Store: backend interface performing the atomic check-and-deduct
//     (store.MemoryStore, store.RedisStore, store.RemoteStore)
//   - TokenBucket: the limiter that binds a policy to a Store and implements
//     the non-blocking Allow check and the blocking Wait retry loop
//   - Result: the outcome of a check, useful for HTTP rate-limit headers
//
// A call site is typically wrapped with the Wrap facade:
//
//	tb, _ := choked.NewTokenBucket(st, "50/s", "100000/m",
//		choked.WithEstimator("openai"))
//	embed := choked.Wrap(tb, "embeddings", callEmbeddings)
//	vecs, err := embed(ctx, texts)
//
// On denial, Wait sleeps with jittered exponential backoff and retries until
// the bucket admits the call or the context is cancelled. Denial is not an
// error; backend failures are, and they surface immediately as
// ErrBackendUnavailable instead of being retried.
package choked
