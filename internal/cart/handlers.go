package cart

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/pricing"
	"github.com/noah-isme/toko-storefront/internal/session"
)

// Handler exposes the session cart over HTTP.
type Handler struct {
	Registry *Registry
	Logger   zerolog.Logger
}

// Routes mounts the cart endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/cart", h.Get)
	r.Put("/cart", h.Replace)
	r.Delete("/cart", h.Clear)
	r.Post("/cart/items", h.AddItem)
	r.Patch("/cart/items/{productID}", h.UpdateItem)
	r.Delete("/cart/items/{productID}", h.RemoveItem)
	r.Post("/cart/items/{productID}/increment", h.Increment)
	r.Post("/cart/items/{productID}/decrement", h.Decrement)
}

type productPayload struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Price         pricing.Money  `json:"price"`
	OriginalPrice *pricing.Money `json:"original_price"`
	VATRate       *pricing.Money `json:"vat_rate"`
	Stock         *int           `json:"stock"`
}

type addItemRequest struct {
	Product  productPayload `json:"product"`
	Quantity *int           `json:"quantity"`
	Max      int            `json:"max"`
}

type updateItemRequest struct {
	Quantity *float64 `json:"quantity"`
	Max      int      `json:"max"`
}

type stepRequest struct {
	Max int `json:"max"`
}

type replaceRequest struct {
	CartItems Collection `json:"cartItems"`
}

// View is the cart representation returned by every cart endpoint.
type View struct {
	CartItems Collection     `json:"cartItems"`
	Totals    pricing.Totals `json:"totals"`
	ItemCount int            `json:"item_count"`
	Outcome   Outcome        `json:"outcome,omitempty"`
	Messages  []Message      `json:"messages"`
}

// Get handles GET /api/v1/cart.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(req *http.Request, s *Store) (Outcome, error) {
		return "", nil
	})
}

// Replace handles PUT /api/v1/cart.
func (h *Handler) Replace(w http.ResponseWriter, r *http.Request) {
	var body replaceRequest
	if err := common.DecodeJSON(r.Body, &body); err != nil {
		common.WriteError(w, err)
		return
	}
	h.serve(w, r, func(req *http.Request, s *Store) (Outcome, error) {
		if err := s.SetItems(req.Context(), body.CartItems); err != nil {
			return "", err
		}
		return OutcomeReplaced, nil
	})
}

// Clear handles DELETE /api/v1/cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, func(req *http.Request, s *Store) (Outcome, error) {
		if err := s.Reset(req.Context()); err != nil {
			return "", err
		}
		return OutcomeCleared, nil
	})
}

// AddItem handles POST /api/v1/cart/items.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var body addItemRequest
	if err := common.DecodeJSON(r.Body, &body); err != nil {
		common.WriteError(w, err)
		return
	}
	body.Product.ID = strings.TrimSpace(body.Product.ID)
	if body.Product.ID == "" {
		common.WriteError(w, common.BadRequest("product.id", "product id is required", nil))
		return
	}
	qty := 1
	if body.Quantity != nil {
		qty = *body.Quantity
	}
	p := Product{
		ID:            body.Product.ID,
		Name:          strings.TrimSpace(body.Product.Name),
		Price:         body.Product.Price,
		OriginalPrice: body.Product.OriginalPrice,
		VATRate:       body.Product.VATRate,
		Stock:         body.Product.Stock,
	}
	h.serve(w, r, func(req *http.Request, s *Store) (Outcome, error) {
		return s.Add(req.Context(), p, qty, body.Max)
	})
}

// UpdateItem handles PATCH /api/v1/cart/items/{productID}.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var body updateItemRequest
	if err := common.DecodeJSON(r.Body, &body); err != nil {
		common.WriteError(w, err)
		return
	}
	if body.Quantity == nil {
		common.WriteError(w, common.BadRequest("quantity", "quantity is required", nil))
		return
	}
	id := chi.URLParam(r, "productID")
	h.serve(w, r, func(req *http.Request, s *Store) (Outcome, error) {
		return s.SetQuantity(req.Context(), id, *body.Quantity, body.Max)
	})
}

// RemoveItem handles DELETE /api/v1/cart/items/{productID}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "productID")
	h.serve(w, r, func(req *http.Request, s *Store) (Outcome, error) {
		return s.Remove(req.Context(), id)
	})
}

// Increment handles POST /api/v1/cart/items/{productID}/increment.
func (h *Handler) Increment(w http.ResponseWriter, r *http.Request) {
	var body stepRequest
	if err := decodeOptional(r, &body); err != nil {
		common.WriteError(w, err)
		return
	}
	id := chi.URLParam(r, "productID")
	h.serve(w, r, func(req *http.Request, s *Store) (Outcome, error) {
		return s.Increment(req.Context(), id, body.Max)
	})
}

// Decrement handles POST /api/v1/cart/items/{productID}/decrement.
func (h *Handler) Decrement(w http.ResponseWriter, r *http.Request) {
	var body stepRequest
	if err := decodeOptional(r, &body); err != nil {
		common.WriteError(w, err)
		return
	}
	id := chi.URLParam(r, "productID")
	h.serve(w, r, func(req *http.Request, s *Store) (Outcome, error) {
		return s.Decrement(req.Context(), id, body.Max)
	})
}

// serve opens the session store, runs op with a message collector attached
// and renders the resulting cart.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request, op func(*http.Request, *Store) (Outcome, error)) {
	if h == nil || h.Registry == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "cart service not configured", nil)
		return
	}
	sid, _ := session.FromContext(r.Context())
	collector := &Collector{}
	r = r.WithContext(WithNotifier(r.Context(), collector))

	var (
		store   *Store
		outcome Outcome
	)
	err := h.Registry.Do(r.Context(), sid, func(ctx context.Context, s *Store) error {
		store = s
		var opErr error
		outcome, opErr = op(r.WithContext(ctx), s)
		return opErr
	})
	switch {
	case errors.Is(err, ErrNotConfigured):
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "cart service not configured", nil)
		return
	case errors.Is(err, ErrOpen):
		h.Logger.Error().Err(err).Str("session_id", sid).Msg("cart_open_failed")
		common.JSONError(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "cart storage unavailable", nil)
		return
	case err != nil:
		common.JSONError(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "unable to save cart", map[string]any{
			"messages": collector.Messages(),
		})
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": Render(store, outcome, collector.Messages())})
}

// Render builds the response view of store.
func Render(store *Store, outcome Outcome, messages []Message) View {
	items := store.Items()
	count := 0
	if len(items) > 0 {
		count = items[0].ItemCount()
	}
	if messages == nil {
		messages = []Message{}
	}
	return View{
		CartItems: items,
		Totals:    store.Totals(),
		ItemCount: count,
		Outcome:   outcome,
		Messages:  messages,
	}
}

func decodeOptional(r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return nil
	}
	if err := common.DecodeJSON(r.Body, dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
