package category

import (
	"context"
	"sort"
	"strings"

	"storefront/internal/domain"
)

type productLister interface {
	List(ctx context.Context) ([]domain.Product, error)
}

type Service struct {
	products productLister
}

func New(products productLister) *Service {
	return &Service{products: products}
}

// List groups catalog products by category key, ordered by name. Products
// without a category are left out.
func (s *Service) List(ctx context.Context) ([]domain.Category, error) {
	products, err := s.products.List(ctx)
	if err != nil {
		return nil, err
	}
	byKey := map[string]*domain.Category{}
	for _, p := range products {
		key := strings.ToLower(strings.TrimSpace(p.Category))
		if key == "" {
			continue
		}
		c, ok := byKey[key]
		if !ok {
			c = &domain.Category{Key: key, Name: titleCase(key), Slug: strings.ReplaceAll(key, " ", "-")}
			byKey[key] = c
		}
		c.ProductCount++
	}
	out := make([]domain.Category, 0, len(byKey))
	for _, c := range byKey {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func titleCase(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == '_' || r == ' ' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
