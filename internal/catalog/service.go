package catalog

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/vyrodovalexey/storefront/internal/model"
)

// Request outcomes, used as metric labels.
const (
	outcomeHit   = "cache_hit"
	outcomeOK    = "ok"
	outcomeError = "error"
)

// Catalog endpoints, used as metric labels.
const (
	endpointProducts   = "products"
	endpointCategory   = "category"
	endpointProduct    = "product"
	endpointCategories = "categories"
)

var catalogRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_catalog_requests_total",
		Help: "Total number of catalog lookups by endpoint and outcome",
	},
	[]string{"endpoint", "outcome"},
)

// ServiceOptions tunes a Service. Zero search limits use the defaults.
type ServiceOptions struct {
	// CacheTTL is how long lookups are served from memory. Zero disables
	// the cache; concurrent identical lookups are still collapsed.
	CacheTTL         time.Duration
	SearchMinLength  int
	SearchMaxResults int
}

// Listing is a product page together with the available categories.
type Listing struct {
	Products   []model.Product `json:"products"`
	Categories []string        `json:"categories"`
	Total      int             `json:"total"`
}

type cacheEntry struct {
	value   any
	expires time.Time
}

// Service is the catalog as seen by the rest of the storefront. Failures
// are logged and degrade to empty results; lookups are cached and
// concurrent identical lookups share one upstream request.
type Service struct {
	fetcher Fetcher
	logger  *zap.Logger
	opts    ServiceOptions
	now     func() time.Time

	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewService wraps fetcher.
func NewService(fetcher Fetcher, logger *zap.Logger, opts ServiceOptions) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CacheTTL < 0 {
		opts.CacheTTL = 0
	}
	if opts.SearchMinLength <= 0 {
		opts.SearchMinLength = DefaultMinQueryLength
	}
	if opts.SearchMaxResults <= 0 {
		opts.SearchMaxResults = DefaultMaxResults
	}
	return &Service{
		fetcher: fetcher,
		logger:  logger,
		opts:    opts,
		now:     time.Now,
		cache:   make(map[string]cacheEntry),
	}
}

// Products returns the products of category ("" or "all" for every
// product), limited to limit when limit > 0. Failures yield an empty slice.
func (s *Service) Products(ctx context.Context, category string, limit int) []model.Product {
	var (
		products []model.Product
		err      error
	)
	if category == "" || category == CategoryAll {
		products, err = load(ctx, s, endpointProducts, "products:"+strconv.Itoa(limit),
			func(ctx context.Context) ([]model.Product, error) {
				return s.fetcher.FetchProducts(ctx, limit)
			})
	} else {
		products, err = load(ctx, s, endpointCategory, "category:"+category+":"+strconv.Itoa(limit),
			func(ctx context.Context) ([]model.Product, error) {
				return s.fetcher.FetchProductsByCategory(ctx, category, limit)
			})
	}
	if err != nil {
		s.logFailure("failed to fetch products", err,
			zap.String("category", category),
			zap.Int("limit", limit),
		)
		return []model.Product{}
	}
	return s.validProducts(products)
}

// Product returns a single product, or nil when it does not exist or the
// catalog is unavailable.
func (s *Service) Product(ctx context.Context, id int) *model.Product {
	product, err := load(ctx, s, endpointProduct, "product:"+strconv.Itoa(id),
		func(ctx context.Context) (*model.Product, error) {
			return s.fetcher.FetchProduct(ctx, id)
		})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Debug("product not found", zap.Int("product_id", id))
		} else {
			s.logFailure("failed to fetch product", err, zap.Int("product_id", id))
		}
		return nil
	}
	if err := product.Validate(); err != nil {
		s.logger.Warn("dropping invalid product", zap.Int("product_id", id), zap.Error(err))
		return nil
	}
	p := *product
	return &p
}

// Categories returns the category names. Failures yield an empty slice.
func (s *Service) Categories(ctx context.Context) []string {
	categories, err := load(ctx, s, endpointCategories, "categories",
		func(ctx context.Context) ([]string, error) {
			return s.fetcher.FetchCategories(ctx)
		})
	if err != nil {
		s.logFailure("failed to fetch categories", err)
		return []string{}
	}
	return slices.Clone(categories)
}

// Listing fetches the products of category and the category list
// concurrently, then applies opts.
func (s *Service) Listing(ctx context.Context, opts FilterOptions, limit int) Listing {
	var listing Listing

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		listing.Products = Filter(s.Products(gctx, opts.Category, limit), opts)
		return nil
	})
	g.Go(func() error {
		listing.Categories = s.Categories(gctx)
		return nil
	})
	_ = g.Wait()

	listing.Total = len(listing.Products)
	return listing
}

// Search returns at most the configured number of products matching query.
// Queries below the configured minimum length skip the catalog entirely.
func (s *Service) Search(ctx context.Context, query string) []model.Product {
	if utf8.RuneCountInString(strings.TrimSpace(query)) < s.opts.SearchMinLength {
		return []model.Product{}
	}
	matches := SearchMin(s.Products(ctx, "", 0), query, s.opts.SearchMinLength)
	return Limit(matches, s.opts.SearchMaxResults)
}

// ProductsByID returns the products with the given IDs, in the order of ids.
// Unknown IDs are skipped.
func (s *Service) ProductsByID(ctx context.Context, ids []int) []model.Product {
	out := make([]model.Product, 0, len(ids))
	if len(ids) == 0 {
		return out
	}

	all := s.Products(ctx, "", 0)
	for _, id := range ids {
		i := slices.IndexFunc(all, func(p model.Product) bool { return p.ID == id })
		if i >= 0 {
			out = append(out, all[i])
		}
	}
	return out
}

// Invalidate drops every cached lookup.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]cacheEntry)
}

func (s *Service) validProducts(products []model.Product) []model.Product {
	out := make([]model.Product, 0, len(products))
	for i := range products {
		if err := products[i].Validate(); err != nil {
			s.logger.Warn("dropping invalid product",
				zap.Int("product_id", products[i].ID),
				zap.Error(err),
			)
			continue
		}
		out = append(out, products[i])
	}
	return out
}

// logFailure logs a failed lookup. Callers that went away are not an
// upstream failure and are logged at debug level.
func (s *Service) logFailure(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if errors.Is(err, context.Canceled) {
		s.logger.Debug(msg, fields...)
		return
	}
	s.logger.Error(msg, fields...)
}

func (s *Service) cached(key string) (any, bool) {
	if s.opts.CacheTTL == 0 {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.cache[key]
	if !ok || !s.now().Before(entry.expires) {
		return nil, false
	}
	return entry.value, true
}

func (s *Service) remember(key string, value any) {
	if s.opts.CacheTTL == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = cacheEntry{value: value, expires: s.now().Add(s.opts.CacheTTL)}
}

// load serves key from the cache or fetches it once for all concurrent
// callers. The shared fetch is detached from any single caller's
// cancellation; each caller still stops waiting when its own ctx ends.
func load[T any](
	ctx context.Context,
	s *Service,
	endpoint, key string,
	fetch func(context.Context) (T, error),
) (T, error) {
	var zero T

	if v, ok := s.cached(key); ok {
		catalogRequestsTotal.WithLabelValues(endpoint, outcomeHit).Inc()
		return v.(T), nil
	}

	ch := s.group.DoChan(key, func() (any, error) {
		v, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			catalogRequestsTotal.WithLabelValues(endpoint, outcomeError).Inc()
			return nil, err
		}
		catalogRequestsTotal.WithLabelValues(endpoint, outcomeOK).Inc()
		s.remember(key, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}
