package httpserver

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
)

type productAPI interface {
	List(ctx context.Context) ([]domain.Product, error)
	Get(ctx context.Context, id string) (*domain.Product, error)
}

type categoryAPI interface {
	List(ctx context.Context) ([]domain.Category, error)
}

type productResponse struct {
	ID          string     `json:"id"`
	Key         string     `json:"key,omitempty"`
	SKU         string     `json:"sku"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category,omitempty"`
	Slug        string     `json:"slug,omitempty"`
	Price       priceValue `json:"price"`
	Stock       int        `json:"stock"`
	InStock     bool       `json:"inStock"`
	Images      []string   `json:"images"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type priceValue struct {
	CurrencyCode   string `json:"currencyCode"`
	CentAmount     int64  `json:"centAmount"`
	FractionDigits int    `json:"fractionDigits"`
}

type pagedProducts struct {
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
	Count   int               `json:"count"`
	Total   int               `json:"total"`
	Results []productResponse `json:"results"`
}

type productQuery struct {
	Category string
	MinCents *int64
	MaxCents *int64
	InStock  bool
	Sort     string
	Limit    int
	Offset   int
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 500
)

func toProductResponse(p domain.Product) productResponse {
	slug := ""
	if p.Key != "" {
		slug = strings.ReplaceAll(strings.ToLower(p.Key), " ", "-")
	}
	images := extractImages(p.Attributes)
	if len(images) == 0 && p.Image != "" {
		images = []string{p.Image}
	}
	return productResponse{
		ID:          p.ID,
		Key:         p.Key,
		SKU:         p.SKU,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Slug:        slug,
		Price:       priceValue{CurrencyCode: p.Currency, CentAmount: p.PriceCents, FractionDigits: 2},
		Stock:       p.Stock,
		InStock:     p.InStock(),
		Images:      images,
		CreatedAt:   p.CreatedAt,
	}
}

func extractImages(attrs map[string]interface{}) []string {
	raw, ok := attrs["images"]
	if !ok {
		return []string{}
	}
	var urls []string
	switch v := raw.(type) {
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				urls = append(urls, s)
			}
		}
	case []string:
		urls = v
	}
	images := make([]string, 0, len(urls))
	for _, u := range urls {
		if strings.TrimSpace(u) != "" {
			images = append(images, u)
		}
	}
	return images
}

func parseProductQuery(c *gin.Context) (productQuery, bool) {
	q := productQuery{
		Category: strings.TrimSpace(c.Query("category")),
		Sort:     c.DefaultQuery("sort", "name asc"),
		Limit:    defaultPageLimit,
	}
	var ok bool
	if q.MinCents, ok = optionalInt64(c, "minPrice"); !ok {
		return q, false
	}
	if q.MaxCents, ok = optionalInt64(c, "maxPrice"); !ok {
		return q, false
	}
	q.InStock = c.Query("inStock") == "true"
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			badRequest(c, "invalid limit")
			return q, false
		}
		if n > maxPageLimit {
			n = maxPageLimit
		}
		q.Limit = n
	}
	if s := c.Query("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			badRequest(c, "invalid offset")
			return q, false
		}
		q.Offset = n
	}
	return q, true
}

func optionalInt64(c *gin.Context, name string) (*int64, bool) {
	s := c.Query(name)
	if s == "" {
		return nil, true
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return nil, false
	}
	return &v, true
}

// buildProductPage filters, sorts and pages products.
func buildProductPage(products []domain.Product, q productQuery) pagedProducts {
	filtered := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if q.Category != "" && !strings.EqualFold(p.Category, q.Category) {
			continue
		}
		if q.MinCents != nil && p.PriceCents < *q.MinCents {
			continue
		}
		if q.MaxCents != nil && p.PriceCents > *q.MaxCents {
			continue
		}
		if q.InStock && !p.InStock() {
			continue
		}
		filtered = append(filtered, p)
	}
	sortProducts(filtered, q.Sort)

	page := pagedProducts{Limit: q.Limit, Offset: q.Offset, Total: len(filtered), Results: []productResponse{}}
	if q.Offset < len(filtered) {
		end := q.Offset + q.Limit
		if end > len(filtered) {
			end = len(filtered)
		}
		for _, p := range filtered[q.Offset:end] {
			page.Results = append(page.Results, toProductResponse(p))
		}
	}
	page.Count = len(page.Results)
	return page
}

// sortProducts orders by "name", "price" or "createdAt", each optionally
// followed by "asc" or "desc". Anything else sorts by name ascending.
func sortProducts(products []domain.Product, order string) {
	fields := strings.Fields(strings.ToLower(order))
	field, desc := "name", false
	if len(fields) > 0 {
		field = fields[0]
	}
	if len(fields) > 1 && fields[1] == "desc" {
		desc = true
	}
	less := func(a, b domain.Product) bool { return strings.ToLower(a.Name) < strings.ToLower(b.Name) }
	switch field {
	case "price":
		less = func(a, b domain.Product) bool { return a.PriceCents < b.PriceCents }
	case "createdat":
		less = func(a, b domain.Product) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}
	sort.SliceStable(products, func(i, j int) bool {
		if desc {
			return less(products[j], products[i])
		}
		return less(products[i], products[j])
	})
}

func (h *handlers) listProducts(c *gin.Context) {
	q, ok := parseProductQuery(c)
	if !ok {
		return
	}
	products, err := h.products.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, buildProductPage(products, q))
}

func (h *handlers) getProduct(c *gin.Context) {
	p, err := h.products.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toProductResponse(*p))
}

func (h *handlers) listCategories(c *gin.Context) {
	categories, err := h.categories.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(categories), "results": categories})
}
