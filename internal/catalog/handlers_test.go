package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-storefront/internal/catalog"
	"github.com/noah-isme/toko-storefront/internal/commerce"
	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/resilience"
)

type fakeSource struct {
	mu         sync.Mutex
	calls      map[string]int
	lastQuery  commerce.ProductQuery
	productErr error
	stock      map[string]commerce.StockLevel
}

func newFakeSource() *fakeSource {
	return &fakeSource{calls: map[string]int{}, stock: map[string]commerce.StockLevel{
		"p1": {ProductID: "p1", Quantity: 5},
	}}
}

func (f *fakeSource) ListProducts(_ context.Context, q commerce.ProductQuery) (commerce.ProductPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["products"]++
	f.lastQuery = q
	if f.productErr != nil {
		return commerce.ProductPage{}, f.productErr
	}
	return commerce.ProductPage{
		Products: []commerce.Product{{ID: "p1", Name: "Widget", Price: decimal.NewFromInt(100)}},
		Total:    21,
	}, nil
}

func (f *fakeSource) ListCategories(context.Context) ([]commerce.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["categories"]++
	return []commerce.Category{{ID: 1, Name: "Tools"}}, nil
}

func (f *fakeSource) ProductStock(_ context.Context, id string) (commerce.StockLevel, error) {
	level, ok := f.stock[id]
	if !ok {
		return commerce.StockLevel{}, &commerce.APIError{Status: http.StatusNotFound, Message: "Product not found"}
	}
	return level, nil
}

func newRouter(t *testing.T, src catalog.Source, cache *catalog.Cache) http.Handler {
	t.Helper()
	svc, err := catalog.NewService(catalog.ServiceConfig{
		Source:       src,
		Cache:        cache,
		DefaultLimit: 10,
		MaxLimit:     50,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	r := chi.NewRouter()
	r.Route("/api/v1", catalog.NewHandler(catalog.HandlerConfig{Service: svc}).Routes)
	return r
}

func do(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestProductsAppliesQueryBounds(t *testing.T) {
	src := newFakeSource()
	h := newRouter(t, src, nil)

	rr := do(t, h, "/api/v1/products?category_id=4&page=2&limit=500&search=%20wid%20")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "21", rr.Header().Get("X-Total-Count"))
	require.Equal(t, 4, *src.lastQuery.CategoryID)
	require.Equal(t, 2, src.lastQuery.Page)
	require.Equal(t, 50, src.lastQuery.Limit)
	require.Equal(t, "wid", src.lastQuery.Search)

	var body struct {
		Data       []commerce.Product `json:"data"`
		Pagination common.Pagination  `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, 2, body.Pagination.Page)
	require.Equal(t, 50, body.Pagination.PerPage)
	require.Equal(t, 1, body.Pagination.TotalPages)
}

func TestProductsRejectsBadCategory(t *testing.T) {
	rr := do(t, newRouter(t, newFakeSource(), nil), "/api/v1/products?category_id=abc")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpstreamErrorsSurfaceMessage(t *testing.T) {
	src := newFakeSource()
	src.productErr = &commerce.APIError{Status: http.StatusInternalServerError, Message: "Database unavailable"}
	h := newRouter(t, src, nil)

	rr := do(t, h, "/api/v1/products")
	require.Equal(t, http.StatusBadGateway, rr.Code)
	require.Contains(t, rr.Body.String(), "Database unavailable")

	src.productErr = resilience.ErrOpenCircuit
	rr = do(t, h, "/api/v1/products")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, rr.Body.String(), commerce.FallbackMessage)
}

func TestStock(t *testing.T) {
	h := newRouter(t, newFakeSource(), nil)

	rr := do(t, h, "/api/v1/products/p1/stock")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data commerce.StockLevel `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, 5, body.Data.Quantity)

	rr = do(t, h, "/api/v1/products/zzz/stock")
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Contains(t, rr.Body.String(), "Product not found")
}

func TestCategoriesAreCached(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	src := newFakeSource()
	h := newRouter(t, src, catalog.NewCache(client, time.Minute))

	for i := 0; i < 3; i++ {
		rr := do(t, h, "/api/v1/categories")
		require.Equal(t, http.StatusOK, rr.Code)
		require.Contains(t, rr.Body.String(), "Tools")
	}
	require.Equal(t, 1, src.calls["categories"])

	mr.FastForward(2 * time.Minute)
	do(t, h, "/api/v1/categories")
	require.Equal(t, 2, src.calls["categories"])
}

func TestProductsCacheKeyedByQuery(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	src := newFakeSource()
	h := newRouter(t, src, catalog.NewCache(client, time.Minute))

	do(t, h, "/api/v1/products?page=1")
	do(t, h, "/api/v1/products?page=1")
	do(t, h, "/api/v1/products?page=2")
	require.Equal(t, 2, src.calls["products"])
}
