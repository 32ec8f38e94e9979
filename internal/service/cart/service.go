package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"storefront/internal/domain"
	"storefront/internal/logging"
	"storefront/internal/service/storage"
)

const (
	cartKey      = "shopping_cart"
	savedCartKey = "saved_cart"
)

// Service owns the single shopping cart of the process. Every mutation
// recomputes the totals, persists the cart and publishes it to subscribers.
type Service struct {
	mu            sync.Mutex
	store         cartStore
	productRepo   productRepo
	pricing       Pricing
	checkoutDelay time.Duration
	now           func() time.Time
	newOrderID    func(time.Time) string
	logger        logrus.FieldLogger
	state         *subject
	checkingOut   bool
}

type cartStore interface {
	Fetch(ctx context.Context, key string) (json.RawMessage, error)
	Put(ctx context.Context, key string, value interface{}, opts storage.SetOptions) error
	Remove(ctx context.Context, key string) bool
}

type productRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}

type Option func(*Service)

func WithPricing(p Pricing) Option {
	return func(s *Service) { s.pricing = p }
}

func WithCheckoutDelay(d time.Duration) Option {
	return func(s *Service) { s.checkoutDelay = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithProducts enables AddProduct lookups.
func WithProducts(repo productRepo) Option {
	return func(s *Service) { s.productRepo = repo }
}

// DiscountResult reports the outcome of ApplyDiscountCode.
type DiscountResult struct {
	Success       bool   `json:"success"`
	DiscountCents int64  `json:"discountCents"`
	Message       string `json:"message"`
}

// New loads the persisted cart from store. A missing or unreadable cart
// starts the service with an empty one.
func New(ctx context.Context, store cartStore, logger logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{
		store:         store,
		pricing:       DefaultPricing(),
		checkoutDelay: 2 * time.Second,
		now:           time.Now,
		newOrderID:    orderID,
		logger:        logging.OrDiscard(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	c := s.load(ctx)
	s.state = newSubject(recompute(c, s.pricing, s.now()))
	return s
}

func emptyCart() domain.Cart {
	return domain.Cart{Items: []domain.CartLine{}, SavedForLater: []domain.CartLine{}}
}

func (s *Service) load(ctx context.Context) domain.Cart {
	raw, err := s.store.Fetch(ctx, cartKey)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WithError(err).Warn("stored cart unreadable, starting empty")
			s.store.Remove(ctx, cartKey)
		}
		return emptyCart()
	}
	c, err := decodeCart(raw)
	if err != nil {
		s.logger.WithError(err).Warn("stored cart unreadable, starting empty")
		s.store.Remove(ctx, cartKey)
		return emptyCart()
	}
	return c
}

func decodeCart(raw json.RawMessage) (domain.Cart, error) {
	var c domain.Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return domain.Cart{}, fmt.Errorf("decode cart: %w", err)
	}
	if c.Items == nil {
		c.Items = []domain.CartLine{}
	}
	if c.SavedForLater == nil {
		c.SavedForLater = []domain.CartLine{}
	}
	return c, nil
}

// mutate applies fn to a copy of the current cart, then recomputes, persists
// and publishes it. When fn fails nothing changes.
func (s *Service) mutate(ctx context.Context, fn func(c *domain.Cart) error) (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.state.value()
	if err := fn(&c); err != nil {
		return s.state.value(), err
	}
	c = recompute(c, s.pricing, s.now())
	if err := s.store.Put(ctx, cartKey, c, storage.SetOptions{}); err != nil {
		s.logger.WithError(err).Error("persist cart")
	}
	s.state.publish(c)
	return cloneCart(c), nil
}

// Cart returns the current cart.
func (s *Service) Cart() domain.Cart {
	return s.state.value()
}

// Subscribe streams the current cart and every later change. The returned
// func unsubscribes and closes the channel.
func (s *Service) Subscribe() (<-chan domain.Cart, func()) {
	return s.state.subscribe()
}

// AddToCart adds quantity units of product, merging with an existing line.
func (s *Service) AddToCart(ctx context.Context, product domain.Product, quantity int) (domain.Cart, error) {
	if quantity <= 0 {
		return s.Cart(), domain.ErrInvalidQuantity
	}
	if strings.TrimSpace(product.ID) == "" {
		return s.Cart(), errors.New("product id required")
	}
	return s.mutate(ctx, func(c *domain.Cart) error {
		if i := indexOf(c.Items, product.ID); i >= 0 {
			c.Items[i].Quantity += quantity
			return nil
		}
		c.Items = append(c.Items, domain.CartLine{
			Product:  product,
			Quantity: quantity,
			AddedAt:  s.now(),
		})
		return nil
	})
}

// AddProduct looks the product up in the catalog and adds it.
func (s *Service) AddProduct(ctx context.Context, productID string, quantity int) (domain.Cart, error) {
	if s.productRepo == nil {
		return s.Cart(), errors.New("product repository unavailable")
	}
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return s.Cart(), err
	}
	return s.AddToCart(ctx, *product, quantity)
}

// RemoveFromCart drops the line for productID. Removing a product that is not
// in the cart leaves the cart unchanged.
func (s *Service) RemoveFromCart(ctx context.Context, productID string) (domain.Cart, error) {
	return s.mutate(ctx, func(c *domain.Cart) error {
		c.Items = without(c.Items, productID)
		return nil
	})
}

// UpdateQuantity sets the quantity of a line; zero or less removes it.
func (s *Service) UpdateQuantity(ctx context.Context, productID string, quantity int) (domain.Cart, error) {
	if quantity <= 0 {
		return s.RemoveFromCart(ctx, productID)
	}
	return s.mutate(ctx, func(c *domain.Cart) error {
		i := indexOf(c.Items, productID)
		if i < 0 {
			return domain.ErrNotFound
		}
		c.Items[i].Quantity = quantity
		return nil
	})
}

func (s *Service) ClearCart(ctx context.Context) domain.Cart {
	c, _ := s.mutate(ctx, func(c *domain.Cart) error {
		*c = emptyCart()
		return nil
	})
	return c
}

func (s *Service) CartItem(productID string) (domain.CartLine, bool) {
	c := s.state.value()
	if i := indexOf(c.Items, productID); i >= 0 {
		return c.Items[i], true
	}
	return domain.CartLine{}, false
}

func (s *Service) IsInCart(productID string) bool {
	_, ok := s.CartItem(productID)
	return ok
}

func (s *Service) ItemCount() int {
	return s.state.value().TotalItems
}

func (s *Service) Total() int64 {
	return s.state.value().TotalCents
}

// Checkout takes the lines in the cart, waits out the simulated processing
// delay and returns the new order id. Only the taken lines and the discount
// leave the cart; lines added during the delay stay. An empty cart fails with
// domain.ErrEmptyCart before any delay, a second concurrent checkout with
// domain.ErrCheckoutInProgress.
func (s *Service) Checkout(ctx context.Context) (string, error) {
	s.mu.Lock()
	ordered := s.state.value().Items
	if len(ordered) == 0 {
		s.mu.Unlock()
		return "", domain.ErrEmptyCart
	}
	if s.checkingOut {
		s.mu.Unlock()
		return "", domain.ErrCheckoutInProgress
	}
	s.checkingOut = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.checkingOut = false
		s.mu.Unlock()
	}()

	if s.checkoutDelay > 0 {
		timer := time.NewTimer(s.checkoutDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	id := s.newOrderID(s.now())
	if _, err := s.mutate(ctx, func(c *domain.Cart) error {
		c.Items = withoutOrdered(c.Items, ordered)
		c.DiscountCode = ""
		c.ManualDiscount = 0
		return nil
	}); err != nil {
		return "", err
	}
	s.logger.WithFields(logrus.Fields{"order_id": id, "lines": len(ordered)}).Info("checkout completed")
	return id, nil
}

// withoutOrdered subtracts the ordered quantities from lines and drops the
// lines that reach zero.
func withoutOrdered(lines, ordered []domain.CartLine) []domain.CartLine {
	taken := make(map[string]int, len(ordered))
	for _, l := range ordered {
		taken[l.Product.ID] += l.Quantity
	}
	out := make([]domain.CartLine, 0, len(lines))
	for _, l := range lines {
		l.Quantity -= taken[l.Product.ID]
		if l.Quantity > 0 {
			out = append(out, l)
		}
	}
	return out
}

func orderID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:9]
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), suffix)
}

// ApplyDiscountCode replaces the active discount code. Unknown codes leave the
// cart untouched and return domain.ErrUnknownDiscountCode.
func (s *Service) ApplyDiscountCode(ctx context.Context, code string) (DiscountResult, error) {
	normalized, d, ok := lookupCode(code)
	if !ok {
		return DiscountResult{Message: "Invalid discount code"}, domain.ErrUnknownDiscountCode
	}
	c, err := s.mutate(ctx, func(c *domain.Cart) error {
		c.DiscountCode = normalized
		return nil
	})
	if err != nil {
		return DiscountResult{}, err
	}
	res := DiscountResult{Success: true, DiscountCents: c.DiscountCents - c.ManualDiscount}
	if d.freeShipping {
		res.Message = "Free shipping applied"
	} else {
		res.Message = fmt.Sprintf("Discount applied: %d%% off", int(d.rate*100+0.5))
	}
	return res, nil
}

// SetDiscountAmount sets a fixed discount on top of any code discount.
func (s *Service) SetDiscountAmount(ctx context.Context, cents int64) (domain.Cart, error) {
	if cents < 0 {
		return s.Cart(), domain.ErrNegativeAmount
	}
	return s.mutate(ctx, func(c *domain.Cart) error {
		c.ManualDiscount = cents
		return nil
	})
}

// RemoveDiscount clears both the discount code and any fixed discount.
func (s *Service) RemoveDiscount(ctx context.Context) domain.Cart {
	c, _ := s.mutate(ctx, func(c *domain.Cart) error {
		c.DiscountCode = ""
		c.ManualDiscount = 0
		return nil
	})
	return c
}

// ShippingEstimate reports what shipping would cost for the current subtotal.
// An empty cart ships nothing and costs nothing.
func (s *Service) ShippingEstimate() domain.ShippingEstimate {
	c := s.state.value()
	free := c.SubtotalCents >= s.pricing.FreeShippingThresholdCents
	if _, d, ok := lookupCode(c.DiscountCode); ok && d.freeShipping {
		free = true
	}
	est := domain.ShippingEstimate{Free: free, ThresholdCents: s.pricing.FreeShippingThresholdCents}
	if !free && len(c.Items) > 0 {
		est.CostCents = s.pricing.ShippingFeeCents
	}
	return est
}

func (s *Service) TaxEstimate() int64 {
	return s.state.value().TaxCents
}

// SaveForLater moves a cart line to the saved-for-later list, where it no
// longer counts toward the totals.
func (s *Service) SaveForLater(ctx context.Context, productID string) (domain.Cart, error) {
	return s.mutate(ctx, func(c *domain.Cart) error {
		i := indexOf(c.Items, productID)
		if i < 0 {
			return domain.ErrNotFound
		}
		line := c.Items[i]
		line.SavedForLater = true
		c.Items = without(c.Items, productID)
		c.SavedForLater = append(without(c.SavedForLater, productID), line)
		return nil
	})
}

// MoveToCart moves a saved line back into the cart, merging quantities.
func (s *Service) MoveToCart(ctx context.Context, productID string) (domain.Cart, error) {
	return s.mutate(ctx, func(c *domain.Cart) error {
		i := indexOf(c.SavedForLater, productID)
		if i < 0 {
			return domain.ErrNotFound
		}
		line := c.SavedForLater[i]
		line.SavedForLater = false
		c.SavedForLater = without(c.SavedForLater, productID)
		if j := indexOf(c.Items, productID); j >= 0 {
			c.Items[j].Quantity += line.Quantity
			return nil
		}
		c.Items = append(c.Items, line)
		return nil
	})
}

func (s *Service) RemoveSaved(ctx context.Context, productID string) (domain.Cart, error) {
	return s.mutate(ctx, func(c *domain.Cart) error {
		c.SavedForLater = without(c.SavedForLater, productID)
		return nil
	})
}

func (s *Service) SavedForLater() []domain.CartLine {
	return s.state.value().SavedForLater
}

func (s *Service) IsSavedForLater(productID string) bool {
	return indexOf(s.state.value().SavedForLater, productID) >= 0
}

// SaveCartForLater stores a snapshot of the whole cart.
func (s *Service) SaveCartForLater(ctx context.Context) error {
	if err := s.store.Put(ctx, savedCartKey, s.Cart(), storage.SetOptions{}); err != nil {
		return fmt.Errorf("save cart snapshot: %w", err)
	}
	return nil
}

// LoadSavedCart replaces the cart with the stored snapshot and deletes the
// snapshot. It returns domain.ErrNotFound when there is none.
func (s *Service) LoadSavedCart(ctx context.Context) (domain.Cart, error) {
	raw, err := s.store.Fetch(ctx, savedCartKey)
	if err != nil {
		return s.Cart(), err
	}
	saved, err := decodeCart(raw)
	if err != nil {
		return s.Cart(), err
	}
	c, err := s.mutate(ctx, func(c *domain.Cart) error {
		*c = saved
		return nil
	})
	if err != nil {
		return c, err
	}
	s.store.Remove(ctx, savedCartKey)
	return c, nil
}

func indexOf(lines []domain.CartLine, productID string) int {
	for i, l := range lines {
		if l.Product.ID == productID {
			return i
		}
	}
	return -1
}

func without(lines []domain.CartLine, productID string) []domain.CartLine {
	out := make([]domain.CartLine, 0, len(lines))
	for _, l := range lines {
		if l.Product.ID != productID {
			out = append(out, l)
		}
	}
	return out
}
