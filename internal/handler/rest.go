package handler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/storefront/internal/catalog"
	"github.com/vyrodovalexey/storefront/internal/model"
)

// Dependencies are the services used by RESTHandler. Ready is optional.
type Dependencies struct {
	Sessions Sessions
	Catalog  Catalog
	Checkout Checkout
	Ready    func(ctx context.Context) error
}

// RESTHandler handles the storefront REST API.
type RESTHandler struct {
	sessions Sessions
	catalog  Catalog
	checkout Checkout
	ready    func(ctx context.Context) error
	logger   *zap.Logger
}

// ProductDetail is a product together with the shopper's relation to it.
type ProductDetail struct {
	model.Product
	IsFavorite bool `json:"isFavorite"`
	InCart     bool `json:"inCart"`
}

// SearchResponse is the result of a product search.
type SearchResponse struct {
	Query    string          `json:"query"`
	Products []model.Product `json:"products"`
}

// NewRESTHandler creates a new RESTHandler instance.
func NewRESTHandler(deps Dependencies, logger *zap.Logger) *RESTHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RESTHandler{
		sessions: deps.Sessions,
		catalog:  deps.Catalog,
		checkout: deps.Checkout,
		ready:    deps.Ready,
		logger:   logger,
	}
}

// RegisterRoutes registers the REST API routes with the router.
func (h *RESTHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/ready", h.ReadyCheck).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/products", h.ListProducts).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", h.GetProduct).Methods(http.MethodGet)
	api.HandleFunc("/categories", h.ListCategories).Methods(http.MethodGet)
	api.HandleFunc("/search", h.SearchProducts).Methods(http.MethodGet)

	api.HandleFunc("/cart", h.GetCart).Methods(http.MethodGet)
	api.HandleFunc("/cart", h.ClearCart).Methods(http.MethodDelete)
	api.HandleFunc("/cart/items", h.AddCartItem).Methods(http.MethodPost)
	api.HandleFunc("/cart/items/{id}", h.UpdateCartItem).Methods(http.MethodPut)
	api.HandleFunc("/cart/items/{id}", h.RemoveCartItem).Methods(http.MethodDelete)
	api.HandleFunc("/cart/open", h.OpenCart).Methods(http.MethodPost)
	api.HandleFunc("/cart/close", h.CloseCart).Methods(http.MethodPost)

	api.HandleFunc("/favorites", h.ListFavorites).Methods(http.MethodGet)
	api.HandleFunc("/favorites/products", h.ListFavoriteProducts).Methods(http.MethodGet)
	api.HandleFunc("/favorites/{id}/toggle", h.ToggleFavorite).Methods(http.MethodPost)

	api.HandleFunc("/checkout/summary", h.CheckoutSummary).Methods(http.MethodGet)
	api.HandleFunc("/checkout", h.PlaceOrder).Methods(http.MethodPost)
	api.HandleFunc("/contact", h.SubmitContact).Methods(http.MethodPost)
}

// HealthCheck handles GET /health requests.
func (h *RESTHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	response := HealthResponse{
		Status:  "healthy",
		Version: Version,
	}
	writeJSON(w, h.logger, http.StatusOK, model.NewSuccessResponse(response))
}

// ReadyCheck handles GET /ready requests.
func (h *RESTHandler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			h.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, h.logger, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, h.logger, http.StatusOK, model.NewSuccessResponse(ReadyResponse{Status: "ready"}))
}

// ListProducts handles GET /api/v1/products requests.
func (h *RESTHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	opts, limit, err := parseListingQuery(r.URL.Query())
	if err != nil {
		h.logger.Debug("invalid listing query", zap.Error(err))
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	listing := h.catalog.Listing(r.Context(), opts, limit)
	writeJSON(w, h.logger, http.StatusOK, model.NewSuccessResponse(listing))
}

// GetProduct handles GET /api/v1/products/{id} requests.
func (h *RESTHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(r)
	if !ok {
		writeError(w, h.logger, http.StatusBadRequest, "invalid product ID")
		return
	}

	product := h.catalog.Product(r.Context(), id)
	if product == nil {
		writeError(w, h.logger, http.StatusNotFound, "product not found")
		return
	}

	detail := ProductDetail{Product: *product}
	if s, err := sessionStore(r, h.sessions); err == nil {
		detail.IsFavorite = s.IsFavorite(id)
		detail.InCart = s.InCart(id)
	}

	writeJSON(w, h.logger, http.StatusOK, model.NewSuccessResponse(detail))
}

// ListCategories handles GET /api/v1/categories requests.
func (h *RESTHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, model.NewSuccessResponse(h.catalog.Categories(r.Context())))
}

// SearchProducts handles GET /api/v1/search requests.
func (h *RESTHandler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	response := SearchResponse{
		Query:    query,
		Products: h.catalog.Search(r.Context(), query),
	}
	writeJSON(w, h.logger, http.StatusOK, model.NewSuccessResponse(response))
}

// parseListingQuery reads the filter, sort and limit parameters.
func parseListingQuery(q url.Values) (catalog.FilterOptions, int, error) {
	opts := catalog.FilterOptions{
		Category: strings.TrimSpace(q.Get("category")),
	}

	var err error
	if opts.MinPrice, err = optionalFloat(q, "minPrice"); err != nil {
		return opts, 0, err
	}
	if opts.MaxPrice, err = optionalFloat(q, "maxPrice"); err != nil {
		return opts, 0, err
	}
	if opts.MinRating, err = optionalFloat(q, "minRating"); err != nil {
		return opts, 0, err
	}

	if opts.SortBy, err = catalog.ParseSortKey(q.Get("sortBy")); err != nil {
		if errors.Is(err, catalog.ErrInvalidSortKey) {
			return opts, 0, fmt.Errorf("invalid sortBy %q", q.Get("sortBy"))
		}
		return opts, 0, err
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return opts, 0, fmt.Errorf("invalid limit %q", raw)
		}
	}

	return opts, limit, nil
}

func optionalFloat(q url.Values, name string) (*float64, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("invalid %s %q", name, raw)
	}
	return &v, nil
}
