package store

import (
	"errors"
	"fmt"

	choked "github.com/choked/choked-go"
	"github.com/redis/go-redis/v9"
)

// Config selects and configures an admission backend. It is plain data so
// applications can fill it from flags, files, or wherever they keep
// configuration, and pass it in explicitly.
type Config struct {
	// APIToken, when set, selects the delegated backend: decisions are made
	// by the managed quota service authenticated with this bearer token.
	APIToken string
	// ServiceURL overrides the quota service base URL.
	ServiceURL string

	// Client, RedisURL, or RedisAddr configure the shared-store backend,
	// checked in that order when APIToken is empty.
	Client    *redis.Client
	RedisURL  string
	RedisAddr string
	// Prefix overrides the Redis key prefix.
	Prefix string
}

// FromConfig builds the backend the configuration describes. Selection
// happens here, once, at setup; it is never re-evaluated per call.
func FromConfig(cfg Config) (choked.Store, error) {
	if cfg.APIToken != "" {
		return NewRemote(cfg.APIToken, WithServiceURL(cfg.ServiceURL)), nil
	}

	var client *redis.Client
	switch {
	case cfg.Client != nil:
		client = cfg.Client
	case cfg.RedisURL != "":
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		client = redis.NewClient(opt)
	case cfg.RedisAddr != "":
		client = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	default:
		return nil, errors.New("store: no backend configured (set APIToken or a Redis client/URL/address)")
	}

	return NewRedis(client, WithPrefix(cfg.Prefix)), nil
}
