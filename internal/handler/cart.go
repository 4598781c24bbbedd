package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/storefront/internal/model"
	"github.com/vyrodovalexey/storefront/internal/state"
)

// maxAddQuantity bounds a single add-to-cart request.
const maxAddQuantity = 99

// AddCartItemRequest is the body of POST /api/v1/cart/items. Quantity
// defaults to 1.
type AddCartItemRequest struct {
	ProductID int  `json:"productId"`
	Quantity  *int `json:"quantity,omitempty"`
}

// UpdateCartItemRequest is the body of PUT /api/v1/cart/items/{id}.
type UpdateCartItemRequest struct {
	Quantity *int `json:"quantity"`
}

// FavoritesResponse lists favorite product IDs in insertion order.
type FavoritesResponse struct {
	Favorites  []int `json:"favorites"`
	IsFavorite *bool `json:"isFavorite,omitempty"`
}

// withSession resolves the session state or writes a 400.
func (h *RESTHandler) withSession(w http.ResponseWriter, r *http.Request) (*state.Store, bool) {
	s, err := sessionStore(r, h.sessions)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return s, true
}

func (h *RESTHandler) writeCart(w http.ResponseWriter, s *state.Store) {
	writeJSON(w, h.logger, http.StatusOK, model.NewSuccessResponse(s.View()))
}

// GetCart handles GET /api/v1/cart requests.
func (h *RESTHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.withSession(w, r)
	if !ok {
		return
	}
	h.writeCart(w, s)
}

// ClearCart handles DELETE /api/v1/cart requests.
func (h *RESTHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.withSession(w, r)
	if !ok {
		return
	}
	s.ClearCart(r.Context())
	h.writeCart(w, s)
}

// AddCartItem handles POST /api/v1/cart/items requests. The product is
// resolved from the catalog and added Quantity times.
func (h *RESTHandler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.withSession(w, r)
	if !ok {
		return
	}

	var input AddCartItemRequest
	if err := decodeJSON(w, r, &input); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		writeError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	quantity := 1
	if input.Quantity != nil {
		quantity = *input.Quantity
	}
	if quantity < 1 || quantity > maxAddQuantity {
		writeError(w, h.logger, http.StatusBadRequest, "quantity must be between 1 and 99")
		return
	}
	if input.ProductID <= 0 {
		writeError(w, h.logger, http.StatusBadRequest, "invalid product ID")
		return
	}

	product := h.catalog.Product(r.Context(), input.ProductID)
	if product == nil {
		writeError(w, h.logger, http.StatusNotFound, "product not found")
		return
	}

	for range quantity {
		s.AddToCart(r.Context(), *product)
	}
	h.writeCart(w, s)
}

// UpdateCartItem handles PUT /api/v1/cart/items/{id} requests. A quantity
// of zero or less removes the line; unknown products are ignored.
func (h *RESTHandler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.withSession(w, r)
	if !ok {
		return
	}

	id, ok := productID(r)
	if !ok {
		writeError(w, h.logger, http.StatusBadRequest, "invalid product ID")
		return
	}

	var input UpdateCartItemRequest
	if err := decodeJSON(w, r, &input); err != nil || input.Quantity == nil {
		writeError(w, h.logger, http.StatusBadRequest, "quantity is required")
		return
	}

	s.UpdateQuantity(r.Context(), id, *input.Quantity)
	h.writeCart(w, s)
}

// RemoveCartItem handles DELETE /api/v1/cart/items/{id} requests.
func (h *RESTHandler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.withSession(w, r)
	if !ok {
		return
	}

	id, ok := productID(r)
	if !ok {
		writeError(w, h.logger, http.StatusBadRequest, "invalid product ID")
		return
	}

	s.RemoveFromCart(r.Context(), id)
	h.writeCart(w, s)
}

// OpenCart handles POST /api/v1/cart/open requests.
func (h *RESTHandler) OpenCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.withSession(w, r)
	if !ok {
		return
	}
	s.OpenCart()
	h.writeCart(w, s)
}

// CloseCart handles POST /api/v1/cart/close requests.
func (h *RESTHandler) CloseCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.withSession(w, r)
	if !ok {
		return
	}
	s.CloseCart()
	h.writeCart(w, s)
}

// ListFavorites handles GET /api/v1/favorites requests.
func (h *RESTHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	s, ok := h.withSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, model.NewSuccessResponse(FavoritesResponse{Favorites: s.Favorites()}))
}

// ListFavoriteProducts handles GET /api/v1/favorites/products requests.
func (h *RESTHandler) ListFavoriteProducts(w http.ResponseWriter, r *http.Request) {
	s, ok := h.withSession(w, r)
	if !ok {
		return
	}
	products := h.catalog.ProductsByID(r.Context(), s.Favorites())
	writeJSON(w, h.logger, http.StatusOK, model.NewSuccessResponse(products))
}

// ToggleFavorite handles POST /api/v1/favorites/{id}/toggle requests.
func (h *RESTHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	s, ok := h.withSession(w, r)
	if !ok {
		return
	}

	id, ok := productID(r)
	if !ok {
		writeError(w, h.logger, http.StatusBadRequest, "invalid product ID")
		return
	}

	s.ToggleFavorite(r.Context(), id)

	isFavorite := s.IsFavorite(id)
	writeJSON(w, h.logger, http.StatusOK, model.NewSuccessResponse(FavoritesResponse{
		Favorites:  s.Favorites(),
		IsFavorite: &isFavorite,
	}))
}
