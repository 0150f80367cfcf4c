package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/pricing"
)

// Registry opens session-scoped stores that share one persister. Stores are
// hydrated on every call; the persisted record is the source of truth.
type Registry struct {
	Persister Persister
	Key       string
	Calculate pricing.Calculator
	Logger    zerolog.Logger
	// Lock serialises operations on one session's cart. Nil disables locking.
	Lock    Locker
	LockTTL time.Duration
}

// Locker runs fn while holding an exclusive lock on key.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// ErrOpen wraps failures to lock or hydrate a session cart.
var ErrOpen = errors.New("cart: open failed")

// NewRegistry builds a registry for the named variant ("sale" or "cart").
func NewRegistry(p Persister, variant string, logger zerolog.Logger) *Registry {
	key := KeySale
	if strings.EqualFold(strings.TrimSpace(variant), pricing.VariantCart) {
		key = KeyCart
	}
	return &Registry{
		Persister: p,
		Key:       key,
		Calculate: pricing.ForVariant(variant),
		Logger:    logger,
	}
}

// KeyFor returns the storage key for a session.
func (r *Registry) KeyFor(sessionID string) string {
	base := r.Key
	if base == "" {
		base = KeySale
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return base
	}
	return base + ":" + sessionID
}

// Open returns a hydrated store for sessionID.
func (r *Registry) Open(ctx context.Context, sessionID string) (*Store, error) {
	if r == nil || r.Persister == nil {
		return nil, ErrNotConfigured
	}
	key := r.KeyFor(sessionID)
	return Open(ctx, Config{
		Persister: r.Persister,
		Key:       key,
		Calculate: r.Calculate,
		Logger:    r.Logger.With().Str("cart_key", key).Logger(),
	})
}

// Do runs fn against the hydrated store for sessionID while holding the
// session lock. Lock and hydrate failures are wrapped in ErrOpen.
func (r *Registry) Do(ctx context.Context, sessionID string, fn func(context.Context, *Store) error) error {
	if r == nil || r.Persister == nil {
		return ErrNotConfigured
	}
	run := func(ctx context.Context) error {
		store, err := r.Open(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrOpen, err)
		}
		return fn(ctx, store)
	}
	if r.Lock == nil {
		return run(ctx)
	}
	ttl := r.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	var inner bool
	err := r.Lock.WithLock(ctx, "lock:"+r.KeyFor(sessionID), ttl, func(ctx context.Context) error {
		inner = true
		return run(ctx)
	})
	if err != nil && !inner {
		return fmt.Errorf("%w: %w", ErrOpen, err)
	}
	return err
}
