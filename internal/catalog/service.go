// Package catalog serves product and category listings from the commerce
// API, optionally cached in Redis.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-storefront/internal/commerce"
	"github.com/noah-isme/toko-storefront/internal/common"
	"github.com/noah-isme/toko-storefront/internal/resilience"
)

// Source is the upstream catalog. *commerce.Client satisfies it.
type Source interface {
	ListProducts(ctx context.Context, q commerce.ProductQuery) (commerce.ProductPage, error)
	ListCategories(ctx context.Context) ([]commerce.Category, error)
	ProductStock(ctx context.Context, productID string) (commerce.StockLevel, error)
}

// Service orchestrates catalog reads and caching.
type Service struct {
	source       Source
	cache        *Cache
	defaultLimit int
	maxLimit     int
	logger       zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Source       Source
	Cache        *Cache
	DefaultLimit int
	MaxLimit     int
	Logger       zerolog.Logger
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Source == nil {
		return nil, errors.New("catalog: source is required")
	}
	maxLimit := cfg.MaxLimit
	if maxLimit < 1 {
		maxLimit = 100
	}
	defaultLimit := cfg.DefaultLimit
	if defaultLimit < 1 {
		defaultLimit = 10
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &Service{
		source:       cfg.Source,
		cache:        cfg.Cache,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		logger:       cfg.Logger,
	}, nil
}

// ParseQuery turns listing query parameters into a ProductQuery with
// defaults and bounds applied.
func (s *Service) ParseQuery(values url.Values) (commerce.ProductQuery, error) {
	categoryID, err := common.OptionalInt(values.Get("category_id"))
	if err != nil {
		return commerce.ProductQuery{}, common.BadRequest("category_id", "category_id must be an integer", err)
	}
	page, limit := common.ParsePagination(values, s.defaultLimit, s.maxLimit)
	search := strings.TrimSpace(values.Get("search"))
	if len(search) > 100 {
		return commerce.ProductQuery{}, common.BadRequest("search", "search must be at most 100 characters", nil)
	}
	return commerce.ProductQuery{CategoryID: categoryID, Page: page, Limit: limit, Search: search}, nil
}

// ListProducts returns one page of products.
func (s *Service) ListProducts(ctx context.Context, q commerce.ProductQuery) (commerce.ProductPage, error) {
	key := "products:" + digest(productsKey(q))
	var page commerce.ProductPage
	if ok, err := s.cache.GetJSON(ctx, "products", key, &page); err != nil {
		s.logger.Warn().Err(err).Msg("catalog_cache_read_failed")
	} else if ok {
		return page, nil
	}
	page, err := s.source.ListProducts(ctx, q)
	if err != nil {
		return commerce.ProductPage{}, upstreamError(err)
	}
	if page.Page == 0 {
		page.Page = q.Page
	}
	if page.Limit == 0 {
		page.Limit = q.Limit
	}
	if page.TotalPages == 0 && page.Limit > 0 {
		page.TotalPages = (page.Total + page.Limit - 1) / page.Limit
	}
	s.store(ctx, key, page)
	return page, nil
}

// ListCategories returns every category.
func (s *Service) ListCategories(ctx context.Context) ([]commerce.Category, error) {
	const key = "categories"
	var categories []commerce.Category
	if ok, err := s.cache.GetJSON(ctx, "categories", key, &categories); err != nil {
		s.logger.Warn().Err(err).Msg("catalog_cache_read_failed")
	} else if ok {
		return categories, nil
	}
	categories, err := s.source.ListCategories(ctx)
	if err != nil {
		return nil, upstreamError(err)
	}
	s.store(ctx, key, categories)
	return categories, nil
}

// Stock returns the live stock of a product. Stock is never cached.
func (s *Service) Stock(ctx context.Context, productID string) (commerce.StockLevel, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return commerce.StockLevel{}, common.BadRequest("id", "product id is required", nil)
	}
	level, err := s.source.ProductStock(ctx, productID)
	if err != nil {
		return commerce.StockLevel{}, upstreamError(err)
	}
	return level, nil
}

func (s *Service) store(ctx context.Context, key string, v any) {
	if err := s.cache.SetJSON(ctx, key, v); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("catalog_cache_write_failed")
	}
}

func productsKey(q commerce.ProductQuery) string {
	var b strings.Builder
	if q.CategoryID != nil {
		b.WriteString(strconv.Itoa(*q.CategoryID))
	}
	fmt.Fprintf(&b, "|%d|%d|%s", q.Page, q.Limit, strings.ToLower(q.Search))
	return b.String()
}

// upstreamError maps commerce failures to AppErrors carrying the server
// message, or the generic fallback when none is available.
func upstreamError(err error) error {
	var apiErr *commerce.APIError
	switch {
	case errors.As(err, &apiErr):
		status := apiErr.Status
		if status >= http.StatusInternalServerError || status < http.StatusBadRequest {
			status = http.StatusBadGateway
		}
		code := common.CodeUpstream
		if status == http.StatusNotFound {
			code = common.CodeNotFound
		}
		return common.NewAppError(code, apiErr.Message, status, err)
	case errors.Is(err, resilience.ErrOpenCircuit):
		return common.NewAppError(common.CodeUpstream, commerce.FallbackMessage, http.StatusServiceUnavailable, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return common.NewAppError(common.CodeUpstream, commerce.FallbackMessage, http.StatusBadGateway, err)
	}
}
