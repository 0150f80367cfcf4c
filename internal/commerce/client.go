// Package commerce is the client for the remote commerce API that owns
// products, categories, stock and sales.
package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/toko-storefront/internal/obs"
	"github.com/noah-isme/toko-storefront/internal/resilience"
)

// FallbackMessage is used when an error response carries no message.
const FallbackMessage = "An error occurred."

const maxResponseBytes = 4 << 20

// APIError is a non-2xx response from the commerce API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("commerce: status %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the commerce API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Envelope is the response wrapper used by every commerce endpoint.
type Envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type tokenKey struct{}

// WithToken attaches a bearer token that is forwarded on outbound calls.
func WithToken(ctx context.Context, token string) context.Context {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	Breaker     *resilience.Breaker
	Transport   http.RoundTripper
	Logger      zerolog.Logger
}

// Client calls the commerce API.
type Client struct {
	baseURL *url.URL
	http    resilience.HTTPClient
	logger  zerolog.Logger
}

// NewClient builds a client for opts.BaseURL with an instrumented transport.
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("commerce: invalid base url %q", opts.BaseURL)
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: base,
		http: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(transport)},
			Breaker:     opts.Breaker,
			MaxAttempts: opts.MaxAttempts,
			BaseBackoff: 100 * time.Millisecond,
			Jitter:      0.2,
			Timeout:     timeout,
		},
		logger: opts.Logger,
	}, nil
}

// ListProducts returns one page of products.
func (c *Client) ListProducts(ctx context.Context, q ProductQuery) (ProductPage, error) {
	params := url.Values{}
	if q.CategoryID != nil {
		params.Set("category_id", strconv.Itoa(*q.CategoryID))
	}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		params.Set("search", s)
	}
	var page ProductPage
	if _, err := c.do(ctx, "list_products", http.MethodGet, "/products", params, nil, &page); err != nil {
		return ProductPage{}, err
	}
	if page.Products == nil {
		page.Products = []Product{}
	}
	return page, nil
}

// ListCategories returns every category.
func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	var categories []Category
	if _, err := c.do(ctx, "list_categories", http.MethodGet, "/categories", nil, nil, &categories); err != nil {
		return nil, err
	}
	if categories == nil {
		categories = []Category{}
	}
	return categories, nil
}

// ProductStock returns the stock held across stores for productID. The API
// answers with either a list of store rows or a single row.
func (c *Client) ProductStock(ctx context.Context, productID string) (StockLevel, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return StockLevel{}, errors.New("commerce: product id required")
	}
	var raw json.RawMessage
	if _, err := c.do(ctx, "product_stock", http.MethodGet, "/products/stock/"+url.PathEscape(productID), nil, nil, &raw); err != nil {
		return StockLevel{}, err
	}
	level := StockLevel{ProductID: productID}
	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
	case trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &level.Stores); err != nil {
			return StockLevel{}, fmt.Errorf("commerce: decode stock: %w", err)
		}
	default:
		var row StoreStock
		if err := json.Unmarshal(trimmed, &row); err != nil {
			return StockLevel{}, fmt.Errorf("commerce: decode stock: %w", err)
		}
		level.Stores = []StoreStock{row}
	}
	for _, s := range level.Stores {
		if s.Quantity > 0 {
			level.Quantity += s.Quantity
		}
	}
	return level, nil
}

// CreateSale submits a sale. The receipt message falls back to a generic
// confirmation when the API sends none.
func (c *Client) CreateSale(ctx context.Context, payload SalePayload) (SaleReceipt, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return SaleReceipt{}, fmt.Errorf("commerce: encode sale: %w", err)
	}
	var receipt SaleReceipt
	msg, err := c.do(ctx, "create_sale", http.MethodPost, "/sales/create", nil, body, &receipt)
	if err != nil {
		return SaleReceipt{}, err
	}
	receipt.Message = msg
	if receipt.Message == "" {
		receipt.Message = "Sale created successfully."
	}
	return receipt, nil
}

// Ping checks that the commerce API answers at all.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, "ping", http.MethodGet, "/categories", nil, nil, nil)
	return err
}

func (c *Client) do(ctx context.Context, op, method, path string, params url.Values, body []byte, out any) (msg string, err error) {
	start := time.Now()
	defer func() { obs.ObserveCommerce(op, err, time.Since(start)) }()

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = params.Encode()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return "", fmt.Errorf("commerce: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := tokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		c.logger.Warn().Err(err).Str("operation", op).Msg("commerce_request_failed")
		return "", fmt.Errorf("commerce: %s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("commerce: read %s response: %w", op, err)
	}
	var env Envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := strings.TrimSpace(env.Message)
		if decodeErr != nil || message == "" {
			message = FallbackMessage
		}
		c.logger.Warn().Int("status", resp.StatusCode).Str("operation", op).Msg("commerce_request_rejected")
		return "", &APIError{Status: resp.StatusCode, Message: message}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("commerce: decode %s envelope: %w", op, decodeErr)
	}
	if out != nil && len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return "", fmt.Errorf("commerce: decode %s data: %w", op, err)
		}
	}
	return env.Message, nil
}
