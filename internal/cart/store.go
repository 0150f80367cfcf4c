package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/obs"
	"github.com/noah-isme/toko-storefront/internal/pricing"
)

// Default storage keys for the two cart variants.
const (
	KeySale = "sale-store"
	KeyCart = "cart-store"
)

// ErrNotConfigured indicates the store was used without being opened.
var ErrNotConfigured = errors.New("cart store not configured")

// Outcome describes what a store operation did.
type Outcome string

const (
	OutcomeAdded         Outcome = "added"
	OutcomeMerged        Outcome = "merged"
	OutcomeUpdated       Outcome = "updated"
	OutcomeClamped       Outcome = "clamped"
	OutcomeRemoved       Outcome = "removed"
	OutcomeIgnored       Outcome = "ignored"
	OutcomeStockExceeded Outcome = "stock_exceeded"
	OutcomeNotFound      Outcome = "not_found"
	OutcomeReplaced      Outcome = "replaced"
	OutcomeCleared       Outcome = "cleared"
)

// Persister is the storage boundary used by Store. Load returns nil when the
// key holds no record.
type Persister interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// Config configures Open.
type Config struct {
	Persister Persister
	Key       string
	Calculate pricing.Calculator
	Notifier  Notifier
	Logger    zerolog.Logger
}

// Store holds the cart collection and writes it through the persister after
// every mutation.
type Store struct {
	mu        sync.Mutex
	items     Collection
	persister Persister
	key       string
	calc      pricing.Calculator
	notifier  Notifier
	logger    zerolog.Logger
}

type persistedState struct {
	CartItems Collection `json:"cartItems"`
}

// persistedEnvelope also accepts the {"state": {...}, "version": n} layout.
type persistedEnvelope struct {
	CartItems Collection      `json:"cartItems"`
	State     *persistedState `json:"state"`
}

// Open hydrates a store from the persister. A missing or unreadable record
// yields an empty cart collection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Persister == nil {
		return nil, ErrNotConfigured
	}
	s := &Store{
		items:     Collection{},
		persister: cfg.Persister,
		key:       cfg.Key,
		calc:      cfg.Calculate,
		notifier:  cfg.Notifier,
		logger:    cfg.Logger,
	}
	if s.key == "" {
		s.key = KeySale
	}
	if s.calc == nil {
		s.calc = pricing.Compute
	}
	data, err := cfg.Persister.Load(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("cart: load %s: %w", s.key, err)
	}
	if len(data) == 0 {
		return s, nil
	}
	var env persistedEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Warn().Err(err).Str("key", s.key).Msg("cart_hydrate_failed")
		return s, nil
	}
	items := env.CartItems
	if items == nil && env.State != nil {
		items = env.State.CartItems
	}
	s.items = s.normalize(items)
	return s, nil
}

// Key returns the storage key the store persists under.
func (s *Store) Key() string {
	if s == nil {
		return ""
	}
	return s.key
}

// Items returns a copy of the cart collection.
func (s *Store) Items() Collection {
	if s == nil {
		return Collection{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.clone()
}

// Current returns the active cart, if any.
func (s *Store) Current() (Cart, bool) {
	if s == nil {
		return Cart{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return Cart{}, false
	}
	return s.items[0].clone(), true
}

// Totals recomputes totals for the active cart.
func (s *Store) Totals() pricing.Totals {
	if s == nil {
		return pricing.Totals{}
	}
	current, ok := s.Current()
	if !ok {
		return s.calculate(nil)
	}
	return s.calculate(current.Products)
}

// SetItems replaces the whole collection. Totals are recomputed and line
// items with a non-positive quantity are dropped before persisting.
func (s *Store) SetItems(ctx context.Context, items Collection) error {
	if err := s.ready(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.commit(ctx, s.normalize(items)); err != nil {
		return err
	}
	s.record("set_items", OutcomeReplaced)
	return nil
}

// Reset replaces the collection with the empty initial value.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.commit(ctx, Collection{}); err != nil {
		return err
	}
	s.record("reset", OutcomeCleared)
	return nil
}

// Add merges qty units of p into the active cart, creating it when needed.
// max caps the resulting quantity; a non-positive max falls back to p.Stock.
func (s *Store) Add(ctx context.Context, p Product, qty int, max int) (Outcome, error) {
	if err := s.ready(); err != nil {
		return OutcomeIgnored, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := max
	if limit <= 0 {
		limit = Unlimited
		if p.Stock != nil {
			limit = *p.Stock
		}
	}
	if qty < 1 {
		s.notify(ctx, LevelWarning, "Please enter a valid quantity.")
		return s.record("add", OutcomeIgnored), nil
	}
	if qty > limit {
		s.notify(ctx, LevelWarning, "Quantity exceeds available stock.")
		return s.record("add", OutcomeStockExceeded), nil
	}

	next := s.items.clone()
	var current Cart
	if len(next) > 0 {
		current = next[0]
	}
	idx := current.indexOf(p.ID)
	existing := 0
	if idx >= 0 {
		existing = current.Products[idx].Quantity
	}
	if existing > limit || qty > limit-existing {
		remaining := limit - existing
		if remaining > 0 {
			s.notify(ctx, LevelWarning, fmt.Sprintf("Only %d more unit%s available for %s.", remaining, plural(remaining), p.Name))
		} else {
			s.notify(ctx, LevelWarning, "You already have the maximum available quantity for this product in your cart.")
		}
		return s.record("add", OutcomeStockExceeded), nil
	}

	outcome := OutcomeAdded
	if idx >= 0 {
		current.Products[idx].Quantity = existing + qty
		outcome = OutcomeMerged
	} else {
		current.Products = append(current.Products, p.lineItem(qty))
	}
	current.Totals = s.calculate(current.Products)
	if len(next) > 0 {
		next[0] = current
	} else {
		next = Collection{current}
	}
	if err := s.commit(ctx, next); err != nil {
		return OutcomeIgnored, err
	}
	s.notify(ctx, LevelSuccess, fmt.Sprintf("%s added to cart.", p.Name))
	return s.record("add", outcome), nil
}

// SetQuantity sets the quantity of a line item. Non-finite input is ignored,
// fractional input is floored, non-positive input removes the item and input
// above max is clamped with a warning. A non-positive max falls back to the
// item's available quantity.
func (s *Store) SetQuantity(ctx context.Context, productID string, qty float64, max int) (Outcome, error) {
	if err := s.ready(); err != nil {
		return OutcomeIgnored, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setQuantityLocked(ctx, "set_quantity", productID, qty, max)
}

// Increment raises the quantity of a line item by one.
func (s *Store) Increment(ctx context.Context, productID string, max int) (Outcome, error) {
	return s.step(ctx, "increment", productID, 1, max)
}

// Decrement lowers the quantity of a line item by one, removing it at zero.
func (s *Store) Decrement(ctx context.Context, productID string, max int) (Outcome, error) {
	return s.step(ctx, "decrement", productID, -1, max)
}

// Remove drops a line item. When the active cart becomes empty it is removed
// from the collection entirely.
func (s *Store) Remove(ctx context.Context, productID string) (Outcome, error) {
	if err := s.ready(); err != nil {
		return OutcomeIgnored, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(ctx, "remove", productID)
}

func (s *Store) step(ctx context.Context, op, productID string, delta int, max int) (Outcome, error) {
	if err := s.ready(); err != nil {
		return OutcomeIgnored, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return s.record(op, OutcomeNotFound), nil
	}
	idx := s.items[0].indexOf(productID)
	if idx < 0 {
		return s.record(op, OutcomeNotFound), nil
	}
	qty := s.items[0].Products[idx].Quantity
	if delta > 0 && qty > math.MaxInt-delta {
		return s.record(op, OutcomeIgnored), nil
	}
	return s.setQuantityLocked(ctx, op, productID, float64(qty+delta), max)
}

func (s *Store) setQuantityLocked(ctx context.Context, op, productID string, qty float64, max int) (Outcome, error) {
	if math.IsNaN(qty) || math.IsInf(qty, 0) {
		return s.record(op, OutcomeIgnored), nil
	}
	if len(s.items) == 0 {
		return s.record(op, OutcomeNotFound), nil
	}
	idx := s.items[0].indexOf(productID)
	if idx < 0 {
		return s.record(op, OutcomeNotFound), nil
	}
	floored := math.Floor(qty)
	if floored <= 0 {
		return s.removeLocked(ctx, op, productID)
	}

	next := s.items.clone()
	current := next[0]
	item := current.Products[idx]
	limit := max
	if limit <= 0 {
		limit = Unlimited
		if item.AvailableQuantity != nil {
			limit = *item.AvailableQuantity
		}
	}

	outcome := OutcomeUpdated
	var newQty int
	if floored >= float64(limit) {
		newQty = limit
		if floored > float64(limit) && limit != Unlimited {
			outcome = OutcomeClamped
		}
	} else {
		newQty = int(floored)
	}
	if newQty <= 0 {
		return s.removeLocked(ctx, op, productID)
	}
	current.Products[idx].Quantity = newQty
	current.Totals = s.calculate(current.Products)
	next[0] = current
	if err := s.commit(ctx, next); err != nil {
		return OutcomeIgnored, err
	}
	if outcome == OutcomeClamped {
		name := item.Name
		if name == "" {
			name = "this product"
		}
		s.notify(ctx, LevelWarning, fmt.Sprintf("Only %d unit%s available for %s.", limit, plural(limit), name))
	}
	return s.record(op, outcome), nil
}

func (s *Store) removeLocked(ctx context.Context, op, productID string) (Outcome, error) {
	if len(s.items) == 0 {
		return s.record(op, OutcomeNotFound), nil
	}
	if s.items[0].indexOf(productID) < 0 {
		return s.record(op, OutcomeNotFound), nil
	}
	next := s.items.clone()
	current := next[0]
	kept := current.Products[:0]
	for _, it := range current.Products {
		if it.ProductID != productID {
			kept = append(kept, it)
		}
	}
	if len(kept) == 0 {
		next = next[1:]
	} else {
		current.Products = kept
		current.Totals = s.calculate(kept)
		next[0] = current
	}
	if err := s.commit(ctx, next); err != nil {
		return OutcomeIgnored, err
	}
	return s.record(op, OutcomeRemoved), nil
}

// commit persists next and only then makes it the visible state.
func (s *Store) commit(ctx context.Context, next Collection) error {
	if next == nil {
		next = Collection{}
	}
	data, err := json.Marshal(persistedState{CartItems: next})
	if err != nil {
		return fmt.Errorf("cart: encode state: %w", err)
	}
	if err := s.persister.Save(ctx, s.key, data); err != nil {
		obs.IncCounter(obs.CartPersistTotal, "error")
		s.logger.Error().Err(err).Str("key", s.key).Msg("cart_persist_failed")
		return fmt.Errorf("cart: persist %s: %w", s.key, err)
	}
	obs.IncCounter(obs.CartPersistTotal, "ok")
	s.items = next
	return nil
}

// normalize drops non-positive line items and empty carts and recomputes totals.
func (s *Store) normalize(items Collection) Collection {
	out := make(Collection, 0, len(items))
	for _, c := range items.clone() {
		kept := make([]LineItem, 0, len(c.Products))
		for _, it := range c.Products {
			if it.Quantity >= 1 {
				kept = append(kept, it)
			}
		}
		if len(kept) == 0 {
			continue
		}
		c.Products = kept
		c.Totals = s.calculate(kept)
		out = append(out, c)
	}
	return out
}

func (s *Store) calculate(items []LineItem) pricing.Totals {
	if s.calc == nil {
		return pricing.Compute(lines(items))
	}
	return s.calc(lines(items))
}

func (s *Store) ready() error {
	if s == nil || s.persister == nil {
		return ErrNotConfigured
	}
	return nil
}

func (s *Store) notify(ctx context.Context, level Level, message string) {
	if n, ok := NotifierFrom(ctx); ok {
		n.Notify(level, message)
		return
	}
	if s.notifier != nil {
		s.notifier.Notify(level, message)
	}
}

func (s *Store) record(op string, outcome Outcome) Outcome {
	obs.IncCounter(obs.CartMutationsTotal, op, string(outcome))
	s.logger.Debug().Str("key", s.key).Str("op", op).Str("outcome", string(outcome)).Msg("cart_mutation")
	return outcome
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
