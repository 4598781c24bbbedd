// Package model defines data structures used throughout the application.
package model

import (
	"errors"
)

// Validation errors for Product.
var (
	ErrInvalidProductID = errors.New("product id must be positive")
	ErrEmptyTitle       = errors.New("title cannot be empty")
	ErrNegativePrice    = errors.New("price cannot be negative")
	ErrRatingOutOfRange = errors.New("rating must be between 0 and 5")
	ErrNegativeCount    = errors.New("rating count cannot be negative")
)

// Rating bounds.
const (
	MinRating = 0
	MaxRating = 5
)

// Rating is the aggregate customer rating of a product.
type Rating struct {
	Rate  float64 `json:"rate"`
	Count int     `json:"count"`
}

// Product is a catalog record. Products are immutable once fetched.
type Product struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Image       string  `json:"image"`
	Rating      Rating  `json:"rating"`
}

// Validate checks if the Product has valid field values.
func (p *Product) Validate() error {
	if p.ID <= 0 {
		return ErrInvalidProductID
	}

	if p.Title == "" {
		return ErrEmptyTitle
	}

	if p.Price < 0 {
		return ErrNegativePrice
	}

	if p.Rating.Rate < MinRating || p.Rating.Rate > MaxRating {
		return ErrRatingOutOfRange
	}

	if p.Rating.Count < 0 {
		return ErrNegativeCount
	}

	return nil
}

// CartItem is a product line in the cart. Quantity is always at least 1.
type CartItem struct {
	Product
	Quantity int `json:"quantity"`
}

// PersistedState is the subset of the cart state that survives restarts.
// The sidebar visibility flag is deliberately absent.
type PersistedState struct {
	Cart      []CartItem `json:"cart"`
	Favorites []int      `json:"favorites"`
}
