package checkout

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/cart"
	"github.com/noah-isme/toko-storefront/internal/commerce"
	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/session"
)

// Handler exposes checkout over HTTP.
type Handler struct {
	Svc      *Service
	Registry *cart.Registry
	Logger   zerolog.Logger
}

// Routes mounts the checkout endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/checkout", h.Checkout)
}

// Checkout handles POST /api/v1/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Svc == nil || h.Registry == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "checkout service not configured", nil)
		return
	}
	var in Input
	if err := common.DecodeJSON(r.Body, &in); err != nil {
		common.WriteError(w, err)
		return
	}

	sid, _ := session.FromContext(r.Context())
	collector := &cart.Collector{}
	ctx := cart.WithNotifier(r.Context(), collector)
	ctx = commerce.WithToken(ctx, common.BearerToken(r))

	var (
		store  *cart.Store
		result Result
	)
	err := h.Registry.Do(ctx, sid, func(ctx context.Context, s *cart.Store) error {
		store = s
		var checkoutErr error
		result, checkoutErr = h.Svc.Checkout(ctx, s, in)
		return checkoutErr
	})
	if errors.Is(err, cart.ErrOpen) || errors.Is(err, cart.ErrNotConfigured) {
		h.Logger.Error().Err(err).Str("session_id", sid).Msg("cart_open_failed")
		common.JSONError(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "cart storage unavailable", nil)
		return
	}

	details := map[string]any{"messages": collector.Messages()}
	switch {
	case err == nil, errors.Is(err, ErrNotCleared):
		cleared := err == nil
		outcome := cart.OutcomeCleared
		if !cleared {
			outcome = ""
		}
		common.JSON(w, http.StatusCreated, map[string]any{"data": map[string]any{
			"sale":         result.Payload,
			"sale_id":      result.SaleID,
			"message":      result.Message,
			"messages":     collector.Messages(),
			"cart_cleared": cleared,
			"cart":         cart.Render(store, outcome, nil),
		}})
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusConflict, "EMPTY_CART", MsgEmptyCart, details)
	case errors.Is(err, ErrInvalidInput):
		msg := MsgPaymentMethod
		if msgs := collector.Messages(); len(msgs) > 0 {
			msg = msgs[len(msgs)-1].Text
		}
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeValidation, msg, details)
	default:
		common.JSONError(w, http.StatusBadGateway, common.CodeUpstream, MsgFailed, details)
	}
}
