package store

import (
	"context"
	"fmt"
	"strconv"

	choked "github.com/choked/choked-go"
)

// DefaultPrefix namespaces bucket keys in shared stores so unrelated data in
// the same Redis instance is never touched.
const DefaultPrefix = "choked:"

// backendError classifies an acquire failure. Context cancellation and
// deadlines pass through untouched so callers can distinguish "I gave up"
// from "the backend is down"; everything else wraps ErrBackendUnavailable.
func backendError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %v", choked.ErrBackendUnavailable, err)
}

// toFloat converts the loosely typed values Lua scripts and JSON decoders
// hand back into a float64 balance.
func toFloat(val interface{}) float64 {
	switch v := val.(type) {
	case int64:
		return float64(v)
	case float64:
		return v
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}
