package model

import (
	"time"
)

// APIResponse is a generic wrapper for API responses.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
}

// NewSuccessResponse creates a successful API response.
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error API response.
func NewErrorResponse[T any](errMsg string) APIResponse[T] {
	return APIResponse[T]{
		Success: false,
		Error:   errMsg,
	}
}

// ErrorResponse represents an error response structure.
type ErrorResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Details string      `json:"details,omitempty"`
	Fields  FieldErrors `json:"fields,omitempty"`
}

// WebSocketMessage is exchanged over the live connection in both directions.
type WebSocketMessage struct {
	Type      string    `json:"type"`
	Seq       uint64    `json:"seq,omitempty"`
	Query     string    `json:"query,omitempty"`
	Products  []Product `json:"products,omitempty"`
	Cart      *CartView `json:"cart,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// WebSocket message types.
const (
	WSMessageTypeSearch        = "search"
	WSMessageTypeSearchResults = "search_results"
	WSMessageTypeCartUpdated   = "cart_updated"
	WSMessageTypeError         = "error"
)

// CartView is the cart as presented to clients, including derived values.
type CartView struct {
	Items      []CartItem `json:"items"`
	Total      string     `json:"total"`
	ItemsCount int        `json:"itemsCount"`
	IsOpen     bool       `json:"isOpen"`
}

// NewSearchResultsMessage creates a search result message for the given sequence.
func NewSearchResultsMessage(seq uint64, query string, products []Product) WebSocketMessage {
	if products == nil {
		products = []Product{}
	}
	return WebSocketMessage{
		Type:      WSMessageTypeSearchResults,
		Seq:       seq,
		Query:     query,
		Products:  products,
		Timestamp: time.Now().UTC(),
	}
}

// NewCartUpdatedMessage creates a cart push message.
func NewCartUpdatedMessage(view CartView) WebSocketMessage {
	return WebSocketMessage{
		Type:      WSMessageTypeCartUpdated,
		Cart:      &view,
		Timestamp: time.Now().UTC(),
	}
}

// NewErrorMessage creates an error message.
func NewErrorMessage(errMsg string) WebSocketMessage {
	return WebSocketMessage{
		Type:      WSMessageTypeError,
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	}
}
