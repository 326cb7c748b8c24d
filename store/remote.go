package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	choked "github.com/choked/choked-go"
)

// DefaultServiceURL is the base URL of the managed quota service.
const DefaultServiceURL = "https://api.choked.dev"

// acquireRequest is the wire form of one admission ask. The policy travels
// with every call so the service can create the bucket on first use.
type acquireRequest struct {
	Key               string  `json:"key"`
	RequestCapacity   int64   `json:"request_capacity"`
	RequestRefillRate float64 `json:"request_refill_rate"`
	UnitCapacity      int64   `json:"unit_capacity"`
	UnitRefillRate    float64 `json:"unit_refill_rate"`
	RequestedRequests int64   `json:"requested_requests"`
	RequestedUnits    int64   `json:"requested_units"`
}

type acquireResponse struct {
	Admitted          bool    `json:"admitted"`
	RemainingRequests float64 `json:"remaining_requests"`
	RemainingUnits    float64 `json:"remaining_units"`
}

// RemoteStore implements choked.Store by delegating every decision to a
// remote quota service over HTTP. It holds no bucket state at all: each
// acquire is one authenticated round-trip, and the service runs the same
// refill algorithm server-side.
//
// Timeouts and transport errors surface as ErrBackendUnavailable; they are
// never silently treated as an admit or a deny.
type RemoteStore struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// RemoteOption configures a RemoteStore.
type RemoteOption func(*RemoteStore)

// WithServiceURL overrides the quota service base URL.
func WithServiceURL(u string) RemoteOption {
	return func(s *RemoteStore) {
		if u != "" {
			s.baseURL = u
		}
	}
}

// WithHTTPClient injects a custom HTTP client, for example one with a proxy
// or custom TLS configuration.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(s *RemoteStore) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithTimeout sets the per-request timeout (default 10s). Ignored when a
// custom HTTP client is injected after it.
func WithTimeout(d time.Duration) RemoteOption {
	return func(s *RemoteStore) {
		if d > 0 {
			s.httpClient.Timeout = d
		}
	}
}

// NewRemote creates a RemoteStore authenticating with the given bearer token.
func NewRemote(token string, opts ...RemoteOption) *RemoteStore {
	s := &RemoteStore{
		token:      token,
		baseURL:    DefaultServiceURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Acquire posts the ask to the service and translates its answer.
func (s *RemoteStore) Acquire(ctx context.Context, key string, pol choked.Policy, requests, units int64) (choked.Decision, error) {
	body, err := json.Marshal(acquireRequest{
		Key:               key,
		RequestCapacity:   pol.RequestCapacity,
		RequestRefillRate: pol.RequestRefill,
		UnitCapacity:      pol.UnitCapacity,
		UnitRefillRate:    pol.UnitRefill,
		RequestedRequests: requests,
		RequestedUnits:    units,
	})
	if err != nil {
		return choked.Decision{}, fmt.Errorf("%w: encoding acquire request: %v", choked.ErrBackendUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/acquire", bytes.NewReader(body))
	if err != nil {
		return choked.Decision{}, fmt.Errorf("%w: %v", choked.ErrBackendUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return choked.Decision{}, backendError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return choked.Decision{}, fmt.Errorf("%w: quota service returned %s", choked.ErrBackendUnavailable, resp.Status)
	}

	var out acquireResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return choked.Decision{}, fmt.Errorf("%w: decoding acquire response: %v", choked.ErrBackendUnavailable, err)
	}

	return choked.Decision{
		Allowed:           out.Admitted,
		RemainingRequests: out.RemainingRequests,
		RemainingUnits:    out.RemainingUnits,
	}, nil
}
