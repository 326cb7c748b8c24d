package choked

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ratePattern accepts "N/s", "N/m" and the multi-period forms "N/Ms", "N/Mm"
// (for example "3/3s" is 3 per 3 seconds, i.e. capacity 3 refilling at 1/s).
var ratePattern = regexp.MustCompile(`^(\d+)/(\d*)(s|m)$`)

// ParseRate parses a rate string into a burst capacity and a refill rate in
// units per second. An empty string means the dimension is not limited and
// yields (0, 0).
func ParseRate(s string) (int64, float64, error) {
	if s == "" {
		return 0, 0, nil
	}

	m := ratePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, fmt.Errorf("%w: invalid rate %q, expected \"<n>/s\" or \"<n>/m\"", ErrInvalidPolicy, s)
	}

	capacity, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid rate %q: %v", ErrInvalidPolicy, s, err)
	}

	period := int64(1)
	if m[2] != "" {
		period, err = strconv.ParseInt(m[2], 10, 64)
		if err != nil || period == 0 {
			return 0, 0, fmt.Errorf("%w: invalid rate %q, period must be a positive integer", ErrInvalidPolicy, s)
		}
	}
	if m[3] == "m" {
		period *= 60
	}

	return capacity, float64(capacity) / float64(period), nil
}

// Policy is the immutable limit attached to a bucket: a burst capacity and a
// refill rate for each of the two dimensions. A zero capacity means the
// dimension is not enforced.
type Policy struct {
	RequestCapacity int64
	RequestRefill   float64
	UnitCapacity    int64
	UnitRefill      float64
}

// NewPolicy builds a Policy from the two rate strings. At least one of them
// must be non-empty.
func NewPolicy(requestLimit, unitLimit string) (Policy, error) {
	if requestLimit == "" && unitLimit == "" {
		return Policy{}, fmt.Errorf("%w: at least one of request limit or unit limit must be set", ErrInvalidPolicy)
	}

	reqCap, reqRefill, err := ParseRate(requestLimit)
	if err != nil {
		return Policy{}, err
	}
	unitCap, unitRefill, err := ParseRate(unitLimit)
	if err != nil {
		return Policy{}, err
	}
	if reqCap == 0 && unitCap == 0 {
		return Policy{}, fmt.Errorf("%w: policy limits neither dimension", ErrInvalidPolicy)
	}

	return Policy{
		RequestCapacity: reqCap,
		RequestRefill:   reqRefill,
		UnitCapacity:    unitCap,
		UnitRefill:      unitRefill,
	}, nil
}

// LimitsRequests reports whether the request dimension is enforced.
func (p Policy) LimitsRequests() bool { return p.RequestCapacity > 0 }

// LimitsUnits reports whether the consumption-unit dimension is enforced.
func (p Policy) LimitsUnits() bool { return p.UnitCapacity > 0 }

// retryAfter estimates how long until the given deficits refill. A dimension
// with no refill rate contributes nothing; callers fall back to backoff.
func (p Policy) retryAfter(reqDeficit, unitDeficit float64) time.Duration {
	var wait float64
	if reqDeficit > 0 && p.RequestRefill > 0 {
		wait = reqDeficit / p.RequestRefill
	}
	if unitDeficit > 0 && p.UnitRefill > 0 {
		if w := unitDeficit / p.UnitRefill; w > wait {
			wait = w
		}
	}
	return time.Duration(wait * float64(time.Second))
}
