// Package handler provides the HTTP and WebSocket handlers of the storefront
// API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/storefront/internal/catalog"
	"github.com/vyrodovalexey/storefront/internal/checkout"
	"github.com/vyrodovalexey/storefront/internal/middleware"
	"github.com/vyrodovalexey/storefront/internal/model"
	"github.com/vyrodovalexey/storefront/internal/state"
)

// Version is the application version.
const Version = "1.0.0"

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

var errMissingSession = errors.New("missing session")

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Status string `json:"status"`
}

// Catalog is the product catalog used by the handlers. Lookups never fail;
// an unavailable catalog yields empty results.
type Catalog interface {
	Listing(ctx context.Context, opts catalog.FilterOptions, limit int) catalog.Listing
	Product(ctx context.Context, id int) *model.Product
	Categories(ctx context.Context) []string
	Search(ctx context.Context, query string) []model.Product
	ProductsByID(ctx context.Context, ids []int) []model.Product
}

// Checkout places orders and accepts contact messages.
type Checkout interface {
	PlaceOrder(ctx context.Context, cart checkout.Cart, form model.CheckoutForm) (*checkout.Order, error)
	SubmitContact(ctx context.Context, form model.ContactForm) (*checkout.ContactReceipt, error)
}

// Ensure the concrete services satisfy the handler interfaces.
var (
	_ Catalog  = (*catalog.Service)(nil)
	_ Checkout = (*checkout.Service)(nil)
)

// Sessions resolves the state of a shopper session.
type Sessions interface {
	Get(ctx context.Context, sessionID string) *state.Store
}

var _ Sessions = (*state.Registry)(nil)

// sessionStore returns the state of the request's session.
func sessionStore(r *http.Request, sessions Sessions) (*state.Store, error) {
	sessionID := middleware.GetSessionID(r.Context())
	if sessionID == "" {
		return nil, errMissingSession
	}
	return sessions.Get(r.Context(), sessionID), nil
}

// productID parses the {id} route variable.
func productID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// decodeJSON decodes a bounded request body into dest.
func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dest)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError writes an error response with the given status code and message.
func writeError(w http.ResponseWriter, logger *zap.Logger, status int, message string) {
	writeJSON(w, logger, status, model.ErrorResponse{
		Code:    status,
		Message: message,
	})
}

// writeValidationError writes a 422 response listing the failed fields.
func writeValidationError(w http.ResponseWriter, logger *zap.Logger, fields model.FieldErrors) {
	writeJSON(w, logger, http.StatusUnprocessableEntity, model.ErrorResponse{
		Code:    http.StatusUnprocessableEntity,
		Message: "validation failed",
		Fields:  fields,
	})
}
