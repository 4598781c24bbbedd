// Package state holds the cart and favorites of a shopper. A Store is the
// single source of truth for one session; every mutation goes through its
// methods, is atomic, and writes the persisted subset to the backend.
package state

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/storefront/internal/model"
	"github.com/vyrodovalexey/storefront/internal/store"
)

// Mutation operation names, used as metric labels.
const (
	OpAddToCart      = "add_to_cart"
	OpRemoveFromCart = "remove_from_cart"
	OpUpdateQuantity = "update_quantity"
	OpClearCart      = "clear_cart"
	OpSubtract       = "subtract"
	OpToggleFavorite = "toggle_favorite"
	OpOpenCart       = "open_cart"
	OpCloseCart      = "close_cart"
)

var (
	cartMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_mutations_total",
			Help: "Total number of state mutations by operation",
		},
		[]string{"operation"},
	)

	persistFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_persist_failures_total",
			Help: "Total number of failed state persistence writes",
		},
	)
)

// Snapshot is a point-in-time copy of a Store.
type Snapshot struct {
	Cart       []model.CartItem
	Favorites  []int
	IsCartOpen bool
}

// Listener is called after every state change with the new snapshot.
type Listener func(Snapshot)

// Store is the cart and favorites container of one session.
type Store struct {
	mu        sync.RWMutex
	key       string
	backend   store.Store
	logger    *zap.Logger
	cart      []model.CartItem
	favorites []int
	cartOpen  bool

	// notifyMu is taken before mu is released and held while listeners
	// run, so they observe snapshots in mutation order.
	notifyMu    sync.Mutex
	listenersMu sync.Mutex
	listeners   map[int]Listener
	nextID      int
}

// New creates an empty Store persisting under key. A nil backend keeps the
// state in memory only.
func New(key string, backend store.Store, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		key:       key,
		backend:   backend,
		logger:    logger,
		cart:      []model.CartItem{},
		favorites: []int{},
		listeners: make(map[int]Listener),
	}
}

// Load rehydrates cart and favorites from the backend. A missing record
// leaves the store empty. The sidebar always starts closed.
func (s *Store) Load(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}

	persisted, err := s.backend.Load(ctx, s.key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	cart, favorites := normalize(persisted)

	s.mu.Lock()
	s.cart = cart
	s.favorites = favorites
	s.cartOpen = false
	s.mu.Unlock()

	return nil
}

// AddToCart increments the quantity of the product's line, or appends a
// new line with quantity 1.
func (s *Store) AddToCart(ctx context.Context, product model.Product) {
	s.mutate(ctx, OpAddToCart, true, func() bool {
		if i := s.indexOf(product.ID); i >= 0 {
			s.cart[i].Quantity++
			return true
		}
		s.cart = append(s.cart, model.CartItem{Product: product, Quantity: 1})
		return true
	})
}

// RemoveFromCart removes the product's line if present.
func (s *Store) RemoveFromCart(ctx context.Context, productID int) {
	s.mutate(ctx, OpRemoveFromCart, true, func() bool {
		return s.remove(productID)
	})
}

// UpdateQuantity sets the quantity of the product's line. A quantity of
// zero or less removes the line. Unknown products are ignored.
func (s *Store) UpdateQuantity(ctx context.Context, productID, quantity int) {
	s.mutate(ctx, OpUpdateQuantity, true, func() bool {
		if quantity <= 0 {
			return s.remove(productID)
		}
		i := s.indexOf(productID)
		if i < 0 || s.cart[i].Quantity == quantity {
			return false
		}
		s.cart[i].Quantity = quantity
		return true
	})
}

// ClearCart empties the cart.
func (s *Store) ClearCart(ctx context.Context) {
	s.mutate(ctx, OpClearCart, true, func() bool {
		if len(s.cart) == 0 {
			return false
		}
		s.cart = []model.CartItem{}
		return true
	})
}

// Subtract lowers each cart line by the quantity of the matching item and
// drops lines that reach zero. Lines added or raised since items were read
// keep the difference.
func (s *Store) Subtract(ctx context.Context, items []model.CartItem) {
	s.mutate(ctx, OpSubtract, true, func() bool {
		changed := false
		for _, item := range items {
			i := s.indexOf(item.ID)
			if i < 0 || item.Quantity <= 0 {
				continue
			}
			changed = true
			if s.cart[i].Quantity <= item.Quantity {
				s.cart = slices.Delete(s.cart, i, i+1)
				continue
			}
			s.cart[i].Quantity -= item.Quantity
		}
		return changed
	})
}

// ToggleFavorite removes the product from favorites if present, otherwise
// appends it at the end.
func (s *Store) ToggleFavorite(ctx context.Context, productID int) {
	s.mutate(ctx, OpToggleFavorite, true, func() bool {
		if i := slices.Index(s.favorites, productID); i >= 0 {
			s.favorites = slices.Delete(s.favorites, i, i+1)
			return true
		}
		s.favorites = append(s.favorites, productID)
		return true
	})
}

// OpenCart shows the cart sidebar.
func (s *Store) OpenCart() {
	s.mutate(context.Background(), OpOpenCart, false, func() bool {
		changed := !s.cartOpen
		s.cartOpen = true
		return changed
	})
}

// CloseCart hides the cart sidebar.
func (s *Store) CloseCart() {
	s.mutate(context.Background(), OpCloseCart, false, func() bool {
		changed := s.cartOpen
		s.cartOpen = false
		return changed
	})
}

// CartTotal returns the sum of price times quantity over the cart,
// computed from the current contents on every call.
func (s *Store) CartTotal() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cartTotal(s.cart)
}

// CartItemsCount returns the sum of quantities over the cart.
func (s *Store) CartItemsCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cartItemsCount(s.cart)
}

// Cart returns a copy of the cart lines.
func (s *Store) Cart() []model.CartItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.cart)
}

// Favorites returns a copy of the favorite product IDs in insertion order.
func (s *Store) Favorites() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.favorites)
}

// IsCartOpen reports whether the cart sidebar is visible.
func (s *Store) IsCartOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cartOpen
}

// IsFavorite reports whether the product is a favorite.
func (s *Store) IsFavorite(productID int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.favorites, productID)
}

// InCart reports whether the product has a cart line.
func (s *Store) InCart(productID int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexOf(productID) >= 0
}

// Snapshot returns a copy of the whole state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// View returns the cart as presented to clients.
func (s *Store) View() model.CartView {
	return NewCartView(s.Snapshot())
}

// OnChange registers l to be called after every state change. The returned
// function unregisters it.
func (s *Store) OnChange(l Listener) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = l

	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		delete(s.listeners, id)
	}
}

// Watch registers l like OnChange and first calls it with the current
// snapshot. No change is delivered to l ahead of that snapshot.
func (s *Store) Watch(l Listener) func() {
	s.mu.RLock()
	snap := s.snapshotLocked()
	s.notifyMu.Lock()
	s.mu.RUnlock()
	defer s.notifyMu.Unlock()

	unsubscribe := s.OnChange(l)
	l(snap)
	return unsubscribe
}

// listenerCount returns the number of registered listeners.
func (s *Store) listenerCount() int {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	return len(s.listeners)
}

// NewCartView builds the client view of a snapshot.
func NewCartView(snap Snapshot) model.CartView {
	items := snap.Cart
	if items == nil {
		items = []model.CartItem{}
	}
	return model.CartView{
		Items:      items,
		Total:      cartTotal(snap.Cart).StringFixed(2),
		ItemsCount: cartItemsCount(snap.Cart),
		IsOpen:     snap.IsCartOpen,
	}
}

// mutate applies fn under the write lock. When fn reports a change, the
// persisted subset is written (if persist is set) and listeners are notified.
// Listeners run outside the write lock and must not mutate the store.
func (s *Store) mutate(ctx context.Context, op string, persist bool, fn func() bool) {
	s.mu.Lock()
	changed := fn()
	if !changed {
		s.mu.Unlock()
		return
	}
	cartMutationsTotal.WithLabelValues(op).Inc()
	if persist {
		s.persistLocked(ctx, op)
	}
	snap := s.snapshotLocked()
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	s.notify(snap)
}

// persistLocked writes the persisted subset. It runs under the write lock so
// writes reach the backend in mutation order. Failures are logged and the
// in-memory state stays authoritative.
func (s *Store) persistLocked(ctx context.Context, op string) {
	if s.backend == nil {
		return
	}

	persisted := model.PersistedState{
		Cart:      slices.Clone(s.cart),
		Favorites: slices.Clone(s.favorites),
	}

	// A client hanging up must not lose a mutation that already happened.
	if err := s.backend.Save(context.WithoutCancel(ctx), s.key, persisted); err != nil {
		persistFailuresTotal.Inc()
		s.logger.Error("failed to persist state",
			zap.String("key", s.key),
			zap.String("operation", op),
			zap.Error(err),
		)
	}
}

func (s *Store) notify(snap Snapshot) {
	s.listenersMu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listenersMu.Unlock()

	for _, l := range listeners {
		l(cloneSnapshot(snap))
	}
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Cart:       slices.Clone(s.cart),
		Favorites:  slices.Clone(s.favorites),
		IsCartOpen: s.cartOpen,
	}
}

func (s *Store) indexOf(productID int) int {
	return slices.IndexFunc(s.cart, func(item model.CartItem) bool {
		return item.ID == productID
	})
}

func (s *Store) remove(productID int) bool {
	i := s.indexOf(productID)
	if i < 0 {
		return false
	}
	s.cart = slices.Delete(s.cart, i, i+1)
	return true
}

func cartTotal(items []model.CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		line := decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))
		total = total.Add(line)
	}
	return total
}

func cartItemsCount(items []model.CartItem) int {
	count := 0
	for _, item := range items {
		count += item.Quantity
	}
	return count
}

func cloneSnapshot(snap Snapshot) Snapshot {
	return Snapshot{
		Cart:       slices.Clone(snap.Cart),
		Favorites:  slices.Clone(snap.Favorites),
		IsCartOpen: snap.IsCartOpen,
	}
}

// normalize repairs a persisted state so the cart invariants hold: one line
// per product, quantities of at least 1, unique favorites.
func normalize(p *model.PersistedState) ([]model.CartItem, []int) {
	cart := make([]model.CartItem, 0, len(p.Cart))
	for _, item := range p.Cart {
		if item.Quantity <= 0 {
			continue
		}
		i := slices.IndexFunc(cart, func(existing model.CartItem) bool {
			return existing.ID == item.ID
		})
		if i >= 0 {
			cart[i].Quantity += item.Quantity
			continue
		}
		cart = append(cart, item)
	}

	favorites := make([]int, 0, len(p.Favorites))
	for _, id := range p.Favorites {
		if !slices.Contains(favorites, id) {
			favorites = append(favorites, id)
		}
	}

	return cart, favorites
}
