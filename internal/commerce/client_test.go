package commerce_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-storefront/internal/commerce"
)

func newClient(t *testing.T, h http.HandlerFunc) *commerce.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cl, err := commerce.NewClient(commerce.Options{BaseURL: srv.URL + "/api", Logger: zerolog.Nop()})
	require.NoError(t, err)
	return cl
}

func TestListProductsSendsQueryAndDecodesPage(t *testing.T) {
	cl := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/products", r.URL.Path)
		require.Equal(t, "3", r.URL.Query().Get("category_id"))
		require.Equal(t, "2", r.URL.Query().Get("page"))
		require.Equal(t, "5", r.URL.Query().Get("limit"))
		require.Equal(t, "chair", r.URL.Query().Get("search"))
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"message":"ok","data":{"products":[{"id":"p1","name":"Widget","price":100,"vat":"16","stock":4,"Category":{"id":3,"name":"Chairs"}}],"total":11,"page":2,"limit":5,"totalPages":3}}`)
	})

	cat := 3
	ctx := commerce.WithToken(context.Background(), "Bearer tok-1")
	page, err := cl.ListProducts(ctx, commerce.ProductQuery{CategoryID: &cat, Page: 2, Limit: 5, Search: " chair "})
	require.NoError(t, err)
	require.Equal(t, 11, page.Total)
	require.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Products, 1)
	p := page.Products[0]
	require.True(t, p.Price.Equal(decimal.NewFromInt(100)))
	require.True(t, p.VAT.Equal(decimal.NewFromInt(16)))
	require.Equal(t, 4, *p.Stock)
	require.Equal(t, "Chairs", p.Category.Name)
}

func TestErrorResponsesUseServerMessageOrFallback(t *testing.T) {
	cl := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/categories" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"message":"Token expired"}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `not json`)
	})

	_, err := cl.ListCategories(context.Background())
	var apiErr *commerce.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusForbidden, apiErr.Status)
	require.Equal(t, "Token expired", apiErr.Message)

	_, err = cl.ProductStock(context.Background(), "p1")
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, commerce.FallbackMessage, apiErr.Message)
	require.True(t, commerce.IsNotFound(err))
}

func TestProductStockAcceptsListOrObject(t *testing.T) {
	cl := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/products/stock/p1":
			_, _ = io.WriteString(w, `{"data":[{"id":"s1","quantity":3},{"id":"s2","quantity":4}]}`)
		case "/api/products/stock/p2":
			_, _ = io.WriteString(w, `{"data":{"id":"s1","quantity":9}}`)
		default:
			_, _ = io.WriteString(w, `{"data":null}`)
		}
	})

	level, err := cl.ProductStock(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, 7, level.Quantity)
	require.Len(t, level.Stores, 2)

	level, err = cl.ProductStock(context.Background(), "p2")
	require.NoError(t, err)
	require.Equal(t, 9, level.Quantity)

	level, err = cl.ProductStock(context.Background(), "p3")
	require.NoError(t, err)
	require.Zero(t, level.Quantity)
}

func TestCreateSalePostsPayload(t *testing.T) {
	cl := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/sales/create", r.URL.Path)
		var got map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		require.Equal(t, "mpesa", got["payment_method"])
		require.Equal(t, "0712345678", got["phone_number"])
		require.NotContains(t, got, "customer_name")
		_, _ = io.WriteString(w, `{"data":{"id":"sale-1","status":"pending"}}`)
	})

	total := decimal.NewFromInt(232)
	receipt, err := cl.CreateSale(context.Background(), commerce.SalePayload{
		Products:      []commerce.SaleLine{{ProductID: "p1", Quantity: 2}},
		PaymentMethod: "mpesa",
		PhoneNumber:   "0712345678",
		Total:         &total,
	})
	require.NoError(t, err)
	require.Equal(t, "sale-1", receipt.ID)
	require.Equal(t, "Sale created successfully.", receipt.Message)
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := commerce.NewClient(commerce.Options{BaseURL: "not a url"})
	require.Error(t, err)
}

func TestDiscountedPrice(t *testing.T) {
	p := commerce.Product{
		Price: decimal.NewFromInt(200),
		Discounts: []commerce.Discount{
			{IsActive: false, FlatAmount: decimal.NewFromInt(150)},
			{IsActive: true, Percentage: decimal.NewFromInt(10)},
		},
	}
	price, ok := p.DiscountedPrice()
	require.True(t, ok)
	require.True(t, price.Equal(decimal.NewFromInt(180)))

	price, ok = commerce.Product{Price: decimal.NewFromInt(5)}.DiscountedPrice()
	require.False(t, ok)
	require.True(t, price.Equal(decimal.NewFromInt(5)))
}
