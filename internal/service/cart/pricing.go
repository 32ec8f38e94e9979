package cart

import (
	"math"
	"strings"
	"time"

	"storefront/internal/domain"
)

// Pricing holds the constants of the cart total computation. Amounts are in cents.
type Pricing struct {
	TaxRate                    float64
	FreeShippingThresholdCents int64
	ShippingFeeCents           int64
	ExpressThresholdCents      int64
	ExpressFeeCents            int64
}

func DefaultPricing() Pricing {
	return Pricing{
		TaxRate:                    0.08,
		FreeShippingThresholdCents: 5000,
		ShippingFeeCents:           599,
		ExpressThresholdCents:      200000,
		ExpressFeeCents:            20000,
	}
}

type discountCode struct {
	rate         float64
	freeShipping bool
}

var discountCodes = map[string]discountCode{
	"SAVE10":   {rate: 0.10},
	"SAVE20":   {rate: 0.20},
	"WELCOME":  {rate: 0.15},
	"FREESHIP": {freeShipping: true},
}

func lookupCode(code string) (string, discountCode, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	d, ok := discountCodes[code]
	return code, d, ok
}

const (
	standardDeliveryDays = 4
	expressDeliveryDays  = 2
)

// recompute derives every total of c from its lines and discount inputs in a
// single pass over the lines.
func recompute(c domain.Cart, p Pricing, now time.Time) domain.Cart {
	var items int
	var subtotal int64
	for _, line := range c.Items {
		items += line.Quantity
		subtotal += line.TotalCents()
	}
	c.TotalItems = items
	c.SubtotalCents = subtotal
	c.TaxCents = taxOn(subtotal, p.TaxRate)

	freeShipping := subtotal >= p.FreeShippingThresholdCents
	var codeDiscount int64
	if c.DiscountCode != "" {
		if _, d, ok := lookupCode(c.DiscountCode); ok {
			codeDiscount = percentOf(subtotal, d.rate)
			freeShipping = freeShipping || d.freeShipping
		}
	}

	c.ShippingCents = 0
	if len(c.Items) > 0 && !freeShipping {
		c.ShippingCents = p.ShippingFeeCents
	}

	c.DiscountCents = codeDiscount + c.ManualDiscount
	total := subtotal + c.TaxCents + c.ShippingCents - c.DiscountCents
	if total < 0 {
		total = 0
	}
	c.TotalCents = total

	c.Delivery = nil
	if len(c.Items) > 0 {
		c.Delivery = deliveryEstimate(subtotal, c.ShippingCents == 0, p, now)
	}
	return c
}

func taxOn(subtotal int64, rate float64) int64 {
	return int64(math.Round(float64(subtotal) * rate))
}

func percentOf(amount int64, rate float64) int64 {
	return int64(math.Round(float64(amount) * rate))
}

func deliveryEstimate(subtotal int64, freeShipping bool, p Pricing, now time.Time) *domain.DeliveryEstimate {
	est := &domain.DeliveryEstimate{
		DeliveryTime: "3-5 business days",
		Free:         freeShipping,
	}
	days := standardDeliveryDays
	if p.ExpressThresholdCents > 0 && subtotal >= p.ExpressThresholdCents {
		days = expressDeliveryDays
		est.Express = true
		est.DeliveryTime = "1-2 business days"
		est.CostCents = p.ExpressFeeCents
		est.Free = false
	}
	y, m, d := now.Date()
	date := time.Date(y, m, d+days, 0, 0, 0, 0, now.Location())
	switch date.Weekday() {
	case time.Saturday:
		date = date.AddDate(0, 0, 2)
	case time.Sunday:
		date = date.AddDate(0, 0, 1)
	}
	est.EstimatedDate = date
	return est
}
