package domain

import "time"

// Cart is the shopper's cart. Everything except Items, SavedForLater and the
// discount inputs is derived and recomputed on every mutation.
type Cart struct {
	Items          []CartLine        `json:"items"`
	SavedForLater  []CartLine        `json:"savedForLater"`
	TotalItems     int               `json:"totalItems"`
	SubtotalCents  int64             `json:"subtotalCents"`
	TaxCents       int64             `json:"taxCents"`
	ShippingCents  int64             `json:"shippingCents"`
	DiscountCode   string            `json:"discountCode,omitempty"`
	ManualDiscount int64             `json:"manualDiscountCents,omitempty"`
	DiscountCents  int64             `json:"discountCents"`
	TotalCents     int64             `json:"totalCents"`
	Delivery       *DeliveryEstimate `json:"deliveryEstimate,omitempty"`
}

type CartLine struct {
	Product       Product   `json:"product"`
	Quantity      int       `json:"quantity"`
	AddedAt       time.Time `json:"addedAt"`
	SavedForLater bool      `json:"savedForLater,omitempty"`
}

// TotalCents is the line price before tax and discounts.
func (l CartLine) TotalCents() int64 {
	return l.Product.PriceCents * int64(l.Quantity)
}

type DeliveryEstimate struct {
	EstimatedDate time.Time `json:"estimatedDate"`
	DeliveryTime  string    `json:"deliveryTime"`
	Express       bool      `json:"isExpress"`
	CostCents     int64     `json:"costCents"`
	Free          bool      `json:"isFree"`
}

type ShippingEstimate struct {
	CostCents      int64 `json:"costCents"`
	Free           bool  `json:"isFree"`
	ThresholdCents int64 `json:"thresholdCents"`
}
