// Package storage persists small keyed JSON documents for the storefront. The
// Encrypted adapter seals payloads before they reach a backend.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// ErrUnknownBackend is returned by Open for unsupported backend names.
var ErrUnknownBackend = errors.New("storage: unknown backend")

// Adapter is the persistence boundary consumed by the cart store. Load returns
// nil without error when the key is absent.
type Adapter interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// Options configures Open.
type Options struct {
	Backend     string
	Dir         string
	TTL         time.Duration
	Prefix      string
	Redis       *redis.Client
	DatabaseURL string
}

// Open constructs the backend named in opts. The returned close function
// releases any resources owned by the backend.
func Open(ctx context.Context, opts Options) (Adapter, func(), error) {
	noop := func() {}
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendMemory:
		return NewMemory(), noop, nil
	case BackendFile:
		fs, err := NewFile(opts.Dir)
		if err != nil {
			return nil, noop, err
		}
		return fs, noop, nil
	case BackendRedis:
		if opts.Redis == nil {
			return nil, noop, errors.New("storage: redis backend requires a client")
		}
		return &Redis{Client: opts.Redis, Prefix: opts.Prefix, TTL: opts.TTL}, noop, nil
	case BackendPostgres:
		pg, err := OpenPostgres(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		return pg, pg.Close, nil
	default:
		return nil, noop, fmt.Errorf("%w: %s", ErrUnknownBackend, opts.Backend)
	}
}
