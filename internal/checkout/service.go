package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/storefront/internal/model"
)

// ErrEmptyCart is returned when placing an order with an empty cart.
var ErrEmptyCart = errors.New("cart is empty")

// Default simulated processing times.
const (
	DefaultProcessingDelay = 2 * time.Second
	DefaultContactDelay    = 1500 * time.Millisecond
)

// Form names and outcomes, used as metric labels.
const (
	formCheckout = "checkout"
	formContact  = "contact"

	outcomeAccepted  = "accepted"
	outcomeInvalid   = "invalid"
	outcomeEmpty     = "empty_cart"
	outcomeCancelled = "cancelled"
)

var formsSubmittedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_forms_submitted_total",
		Help: "Total number of form submissions by form and outcome",
	},
	[]string{"form", "outcome"},
)

// Cart is the part of the session state an order consumes.
type Cart interface {
	Cart() []model.CartItem
	Subtract(ctx context.Context, items []model.CartItem)
}

// Order is the confirmation of a placed order.
type Order struct {
	ID       string           `json:"id"`
	Email    string           `json:"email"`
	Items    []model.CartItem `json:"items"`
	Summary  Summary          `json:"summary"`
	PlacedAt time.Time        `json:"placedAt"`
}

// ContactReceipt confirms a contact message.
type ContactReceipt struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Service places orders and accepts contact messages.
type Service struct {
	logger          *zap.Logger
	processingDelay time.Duration
	contactDelay    time.Duration
	now             func() time.Time
}

// NewService creates a Service. Negative delays are treated as zero.
func NewService(logger *zap.Logger, processingDelay, contactDelay time.Duration) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		logger:          logger,
		processingDelay: max(processingDelay, 0),
		contactDelay:    max(contactDelay, 0),
		now:             time.Now,
	}
}

// SummaryOf prices the current contents of cart.
func SummaryOf(cart Cart) Summary {
	return summarize(cart.Cart())
}

func summarize(items []model.CartItem) Summary {
	subtotal := decimal.Zero
	count := 0
	for _, item := range items {
		subtotal = subtotal.Add(decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity))))
		count += item.Quantity
	}
	return Compute(subtotal, count)
}

// PlaceOrder validates form, waits for the simulated processing time and
// takes the ordered lines out of the cart. The order covers the cart as it
// was when submitted; anything added during processing stays in the cart.
// Validation failures are returned as model.FieldErrors. When ctx ends
// during processing the cart is left untouched.
func (s *Service) PlaceOrder(ctx context.Context, cart Cart, form model.CheckoutForm) (*Order, error) {
	items := cart.Cart()
	if len(items) == 0 {
		formsSubmittedTotal.WithLabelValues(formCheckout, outcomeEmpty).Inc()
		return nil, ErrEmptyCart
	}

	if errs := form.Validate(); errs != nil {
		formsSubmittedTotal.WithLabelValues(formCheckout, outcomeInvalid).Inc()
		return nil, errs
	}

	summary := summarize(items)

	if err := wait(ctx, s.processingDelay); err != nil {
		formsSubmittedTotal.WithLabelValues(formCheckout, outcomeCancelled).Inc()
		return nil, err
	}

	cart.Subtract(ctx, items)

	order := &Order{
		ID:       uuid.New().String(),
		Email:    form.Email,
		Items:    items,
		Summary:  summary,
		PlacedAt: s.now().UTC(),
	}
	formsSubmittedTotal.WithLabelValues(formCheckout, outcomeAccepted).Inc()

	s.logger.Info("order placed",
		zap.String("order_id", order.ID),
		zap.Int("items", summary.ItemsCount),
		zap.String("total", summary.Total.StringFixed(2)),
	)

	return order, nil
}

// SubmitContact validates form and waits for the simulated send time.
func (s *Service) SubmitContact(ctx context.Context, form model.ContactForm) (*ContactReceipt, error) {
	if errs := form.Validate(); errs != nil {
		formsSubmittedTotal.WithLabelValues(formContact, outcomeInvalid).Inc()
		return nil, errs
	}

	if err := wait(ctx, s.contactDelay); err != nil {
		formsSubmittedTotal.WithLabelValues(formContact, outcomeCancelled).Inc()
		return nil, err
	}

	receipt := &ContactReceipt{
		ID:         uuid.New().String(),
		Subject:    form.Subject,
		ReceivedAt: s.now().UTC(),
	}
	formsSubmittedTotal.WithLabelValues(formContact, outcomeAccepted).Inc()

	s.logger.Info("contact message received",
		zap.String("receipt_id", receipt.ID),
		zap.String("subject", form.Subject),
	)

	return receipt, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
