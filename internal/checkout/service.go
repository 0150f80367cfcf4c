// Package checkout turns the session cart into a sale submission.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/cart"
	"github.com/noah-isme/toko-storefront/internal/commerce"
	"github.com/noah-isme/toko-storefront/internal/obs"
)

// User-facing checkout messages.
const (
	MsgEmptyCart     = "Your cart is empty. Add items before checking out."
	MsgPaymentMethod = "Please select a payment method."
	MsgMpesaPhone    = "Please provide the phone number for Mpesa payment."
	MsgFailed        = "Unable to process checkout. Please try again."
	MsgCompleted     = "Checkout completed."
	MsgNotCleared    = "Your order was placed but the cart could not be cleared. Do not submit it again."
)

var (
	// ErrEmptyCart is returned when there is nothing to check out.
	ErrEmptyCart = errors.New("checkout: cart is empty")
	// ErrInvalidInput is returned when the payment details fail validation.
	ErrInvalidInput = errors.New("checkout: invalid input")
	// ErrNotCleared is returned alongside a valid Result when the sale was
	// submitted but the cart could not be reset.
	ErrNotCleared = errors.New("checkout: cart not cleared")
)

// Input carries the payment details collected at checkout.
type Input struct {
	PaymentMethod string `json:"payment_method" validate:"required,oneof=mpesa credit cash"`
	PhoneNumber   string `json:"phone_number" validate:"required_if=PaymentMethod mpesa"`
	CustomerName  string `json:"customer_name" validate:"max=120"`
}

// Result describes a completed checkout.
type Result struct {
	Payload commerce.SalePayload `json:"sale"`
	SaleID  string               `json:"sale_id,omitempty"`
	Message string               `json:"message"`
}

// Submitter hands a sale to whatever records it.
type Submitter interface {
	Submit(ctx context.Context, payload commerce.SalePayload) (commerce.SaleReceipt, error)
}

// LogSubmitter records the sale in the log only.
type LogSubmitter struct {
	Logger zerolog.Logger
}

// Submit logs payload and reports success.
func (l LogSubmitter) Submit(_ context.Context, payload commerce.SalePayload) (commerce.SaleReceipt, error) {
	l.Logger.Info().
		Int("lines", len(payload.Products)).
		Str("payment_method", payload.PaymentMethod).
		Interface("payload", payload).
		Msg("checkout_completed")
	return commerce.SaleReceipt{Message: MsgCompleted}, nil
}

// SaleCreator is the subset of the commerce client used to submit sales.
type SaleCreator interface {
	CreateSale(ctx context.Context, payload commerce.SalePayload) (commerce.SaleReceipt, error)
}

// RemoteSubmitter posts the sale to the commerce API.
type RemoteSubmitter struct {
	Client SaleCreator
}

// Submit forwards payload to the commerce API.
func (r RemoteSubmitter) Submit(ctx context.Context, payload commerce.SalePayload) (commerce.SaleReceipt, error) {
	if r.Client == nil {
		return commerce.SaleReceipt{}, errors.New("checkout: commerce client not configured")
	}
	return r.Client.CreateSale(ctx, payload)
}

// Service validates checkout input, submits the sale and clears the cart.
type Service struct {
	submitter Submitter
	validate  *validator.Validate
	logger    zerolog.Logger
}

// NewService constructs a Service. A nil submitter falls back to LogSubmitter.
func NewService(submitter Submitter, logger zerolog.Logger) *Service {
	if submitter == nil {
		submitter = LogSubmitter{Logger: logger}
	}
	return &Service{submitter: submitter, validate: validator.New(), logger: logger}
}

// Checkout submits the active cart of store. Warnings and the outcome are
// reported through the notifier attached to ctx.
func (s *Service) Checkout(ctx context.Context, store *cart.Store, in Input) (Result, error) {
	current, ok := store.Current()
	if !ok || len(current.Products) == 0 {
		notify(ctx, cart.LevelWarning, MsgEmptyCart)
		obs.IncCounter(obs.CheckoutTotal, "empty")
		return Result{}, ErrEmptyCart
	}

	in.PaymentMethod = strings.ToLower(strings.TrimSpace(in.PaymentMethod))
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	if err := s.validate.Struct(in); err != nil {
		msg := validationMessage(err)
		notify(ctx, cart.LevelWarning, msg)
		obs.IncCounter(obs.CheckoutTotal, "invalid")
		return Result{}, fmt.Errorf("%w: %s", ErrInvalidInput, msg)
	}

	payload := BuildPayload(current, in)
	receipt, err := s.submitter.Submit(ctx, payload)
	if err != nil {
		s.logger.Error().Err(err).Str("cart_key", store.Key()).Msg("checkout_failed")
		notify(ctx, cart.LevelDanger, MsgFailed)
		obs.IncCounter(obs.CheckoutTotal, "error")
		return Result{}, fmt.Errorf("checkout: submit: %w", err)
	}
	message := receipt.Message
	if message == "" {
		message = MsgCompleted
	}
	result := Result{Payload: payload, SaleID: receipt.ID, Message: message}
	notify(ctx, cart.LevelSuccess, message)
	if err := store.Reset(ctx); err != nil {
		s.logger.Error().Err(err).Str("cart_key", store.Key()).Str("sale_id", receipt.ID).Msg("checkout_reset_failed")
		notify(ctx, cart.LevelWarning, MsgNotCleared)
		obs.IncCounter(obs.CheckoutTotal, "not_cleared")
		return result, fmt.Errorf("%w: %w", ErrNotCleared, err)
	}
	obs.IncCounter(obs.CheckoutTotal, "ok")
	return result, nil
}

// BuildPayload assembles the sale submission for c.
func BuildPayload(c cart.Cart, in Input) commerce.SalePayload {
	lines := make([]commerce.SaleLine, 0, len(c.Products))
	for _, it := range c.Products {
		lines = append(lines, commerce.SaleLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	subtotal, tax, total := c.Subtotal, c.Tax, c.Total
	return commerce.SalePayload{
		Products:      lines,
		PaymentMethod: in.PaymentMethod,
		PhoneNumber:   strings.TrimSpace(in.PhoneNumber),
		CustomerName:  strings.TrimSpace(in.CustomerName),
		Subtotal:      &subtotal,
		Tax:           &tax,
		Total:         &total,
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return MsgPaymentMethod
	}
	switch verrs[0].Field() {
	case "PhoneNumber":
		return MsgMpesaPhone
	case "CustomerName":
		return "Customer name must be at most 120 characters."
	default:
		return MsgPaymentMethod
	}
}

func notify(ctx context.Context, level cart.Level, message string) {
	if n, ok := cart.NotifierFrom(ctx); ok {
		n.Notify(level, message)
	}
}
