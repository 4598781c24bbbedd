package catalog

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/vyrodovalexey/storefront/internal/model"
)

// ErrInvalidSortKey is returned by ParseSortKey for unknown keys.
var ErrInvalidSortKey = errors.New("invalid sort key")

// CategoryAll disables the category filter.
const CategoryAll = "all"

// SortKey selects the ordering applied by Filter.
type SortKey string

// Supported sort keys. SortNone keeps the input order.
const (
	SortNone      SortKey = ""
	SortPriceAsc  SortKey = "price-asc"
	SortPriceDesc SortKey = "price-desc"
	SortRating    SortKey = "rating"
	SortName      SortKey = "name"
)

// ParseSortKey converts a query value into a SortKey.
func ParseSortKey(raw string) (SortKey, error) {
	key := SortKey(strings.TrimSpace(raw))
	switch key {
	case SortNone, SortPriceAsc, SortPriceDesc, SortRating, SortName:
		return key, nil
	default:
		return SortNone, fmt.Errorf("%w: %q", ErrInvalidSortKey, raw)
	}
}

// FilterOptions narrows and orders a product list. Nil bounds are ignored.
type FilterOptions struct {
	Category  string
	MinPrice  *float64
	MaxPrice  *float64
	MinRating *float64
	SortBy    SortKey
}

// Filter returns the products matching every set criterion, in the
// requested order. Bounds are inclusive and the input is never mutated.
func Filter(products []model.Product, opts FilterOptions) []model.Product {
	out := make([]model.Product, 0, len(products))
	for _, p := range products {
		if matches(p, opts) {
			out = append(out, p)
		}
	}

	sortProducts(out, opts.SortBy)
	return out
}

func matches(p model.Product, opts FilterOptions) bool {
	if opts.Category != "" && opts.Category != CategoryAll && p.Category != opts.Category {
		return false
	}
	if opts.MinPrice != nil && p.Price < *opts.MinPrice {
		return false
	}
	if opts.MaxPrice != nil && p.Price > *opts.MaxPrice {
		return false
	}
	if opts.MinRating != nil && p.Rating.Rate < *opts.MinRating {
		return false
	}
	return true
}

func sortProducts(products []model.Product, key SortKey) {
	switch key {
	case SortPriceAsc:
		slices.SortStableFunc(products, func(a, b model.Product) int {
			return cmp.Compare(a.Price, b.Price)
		})
	case SortPriceDesc:
		slices.SortStableFunc(products, func(a, b model.Product) int {
			return cmp.Compare(b.Price, a.Price)
		})
	case SortRating:
		slices.SortStableFunc(products, func(a, b model.Product) int {
			return cmp.Compare(b.Rating.Rate, a.Rating.Rate)
		})
	case SortName:
		// Collators keep internal buffers and are not safe for concurrent use.
		coll := collate.New(language.English)
		slices.SortStableFunc(products, func(a, b model.Product) int {
			return coll.CompareString(a.Title, b.Title)
		})
	}
}
