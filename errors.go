package choked

import "errors"

// ErrInvalidPolicy is returned at construction time for a malformed rate
// string or a policy that limits neither dimension. It is never retried.
var ErrInvalidPolicy = errors.New("invalid rate limit policy")

// ErrBackendUnavailable reports that the shared store or the remote quota
// service could not answer an acquire. It is distinct from a denial: the
// retry loop propagates it immediately instead of backing off.
var ErrBackendUnavailable = errors.New("rate limit backend unavailable")

// ErrLimitExceeded is the sentinel passed to middleware error handlers when a
// request is denied. It can be used by custom handlers to check for this
// specific condition.
var ErrLimitExceeded = errors.New("rate limit exceeded")
