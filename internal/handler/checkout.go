package handler

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/storefront/internal/checkout"
	"github.com/vyrodovalexey/storefront/internal/model"
)

// CheckoutSummary handles GET /api/v1/checkout/summary requests.
func (h *RESTHandler) CheckoutSummary(w http.ResponseWriter, r *http.Request) {
	s, ok := h.withSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, model.NewSuccessResponse(checkout.SummaryOf(s)))
}

// PlaceOrder handles POST /api/v1/checkout requests.
func (h *RESTHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	s, ok := h.withSession(w, r)
	if !ok {
		return
	}

	var form model.CheckoutForm
	if err := decodeJSON(w, r, &form); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		writeError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.checkout.PlaceOrder(r.Context(), s, form)
	if err != nil {
		h.handleSubmitError(w, err, "place order")
		return
	}

	writeJSON(w, h.logger, http.StatusCreated, model.NewSuccessResponse(order))
}

// SubmitContact handles POST /api/v1/contact requests.
func (h *RESTHandler) SubmitContact(w http.ResponseWriter, r *http.Request) {
	var form model.ContactForm
	if err := decodeJSON(w, r, &form); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		writeError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	receipt, err := h.checkout.SubmitContact(r.Context(), form)
	if err != nil {
		h.handleSubmitError(w, err, "submit contact")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, model.NewSuccessResponse(receipt))
}

// handleSubmitError maps form submission errors to HTTP responses.
func (h *RESTHandler) handleSubmitError(w http.ResponseWriter, err error, operation string) {
	var fields model.FieldErrors
	switch {
	case errors.As(err, &fields):
		writeValidationError(w, h.logger, fields)
	case errors.Is(err, checkout.ErrEmptyCart):
		writeError(w, h.logger, http.StatusConflict, "cart is empty")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.logger.Info("submission abandoned", zap.String("operation", operation), zap.Error(err))
		writeError(w, h.logger, http.StatusServiceUnavailable, "request cancelled")
	default:
		h.logger.Error("submission failed", zap.String("operation", operation), zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "internal server error")
	}
}
