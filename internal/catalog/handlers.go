package catalog

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/toko-storefront/internal/commerce"
	"github.com/noah-isme/toko-storefront/internal/common"
)

// Handler exposes public catalog endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// Routes mounts the catalog endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/products", h.Products)
	r.Get("/products/{id}/stock", h.Stock)
	r.Get("/categories", h.Categories)
}

// Categories handles GET /api/v1/categories.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	rows, err := h.service.ListCategories(commerce.WithToken(r.Context(), common.BearerToken(r)))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// Products handles GET /api/v1/products with category, search and pagination.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	q, err := h.service.ParseQuery(r.URL.Query())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	page, err := h.service.ListProducts(commerce.WithToken(r.Context(), common.BearerToken(r)), q)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(page.Total))
	common.JSON(w, http.StatusOK, map[string]any{
		"data": page.Products,
		"pagination": common.Pagination{
			Page:       page.Page,
			PerPage:    page.Limit,
			TotalItems: page.Total,
			TotalPages: page.TotalPages,
		},
	})
}

// Stock handles GET /api/v1/products/{id}/stock.
func (h *Handler) Stock(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	level, err := h.service.Stock(commerce.WithToken(r.Context(), common.BearerToken(r)), chi.URLParam(r, "id"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": level})
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "catalog service not configured", nil)
		return false
	}
	return true
}
