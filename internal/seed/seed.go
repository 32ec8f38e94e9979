package seed

import (
	"context"
	"fmt"

	"storefront/internal/domain"
)

type ProductWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}

// Products is the demo catalog. Upserting by key keeps Apply idempotent.
var Products = []domain.Product{
	{
		Key:         "demo-shirt",
		SKU:         "SKU-DEMO-TSHIRT",
		Name:        "Demo T-Shirt",
		Description: "Soft cotton tee for demo purposes",
		Category:    "apparel",
		PriceCents:  1999,
		Currency:    "USD",
		Stock:       120,
	},
	{
		Key:         "demo-mug",
		SKU:         "SKU-DEMO-MUG",
		Name:        "Demo Mug",
		Description: "Ceramic mug with demo logo",
		Category:    "kitchen",
		PriceCents:  1299,
		Currency:    "USD",
		Stock:       80,
	},
	{
		Key:         "demo-headphones",
		SKU:         "SKU-DEMO-HEADPHONES",
		Name:        "Demo Headphones",
		Description: "Over-ear wireless headphones",
		Category:    "electronics",
		PriceCents:  8999,
		Currency:    "USD",
		Stock:       25,
	},
	{
		Key:         "demo-tv",
		SKU:         "SKU-DEMO-TV",
		Name:        "Demo 65\" TV",
		Description: "4K television, ships express",
		Category:    "electronics",
		PriceCents:  219900,
		Currency:    "USD",
		Stock:       4,
	},
}

// Apply upserts the demo catalog through w.
func Apply(ctx context.Context, w ProductWriter) error {
	for _, p := range Products {
		if _, err := w.Upsert(ctx, p); err != nil {
			return fmt.Errorf("upsert product %s: %w", p.Key, err)
		}
	}
	return nil
}
