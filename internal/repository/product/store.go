package product

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"storefront/internal/domain"
	"storefront/internal/logging"
	"storefront/internal/service/storage"
)

// documentStore is the slice of storage.Namespace the catalog needs.
type documentStore interface {
	Fetch(ctx context.Context, key string) (json.RawMessage, error)
	Put(ctx context.Context, key string, value interface{}, opts storage.SetOptions) error
	Keys(ctx context.Context) []string
}

type storeRepo struct {
	store  documentStore
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewStore keeps one JSON document per product, keyed by product id.
func NewStore(store documentStore, logger logrus.FieldLogger) Repository {
	return &storeRepo{store: store, logger: logging.OrDiscard(logger), now: time.Now}
}

func (r *storeRepo) List(ctx context.Context) ([]domain.Product, error) {
	keys := r.store.Keys(ctx)
	result := make([]domain.Product, 0, len(keys))
	for _, id := range keys {
		p, err := r.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		result = append(result, *p)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].Name < result[j].Name
	})
	r.logger.WithField("count", len(result)).Debug("product repo: list")
	return result, nil
}

func (r *storeRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	raw, err := r.store.Fetch(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			r.logger.WithField("id", id).Debug("product repo: not found")
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	var p domain.Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode product %s: %w", id, err)
	}
	return &p, nil
}

// Upsert writes product. Without an id it reuses the id of an existing
// product with the same key, or assigns a new one.
func (r *storeRepo) Upsert(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.Key = strings.TrimSpace(product.Key)
	if strings.TrimSpace(product.Name) == "" {
		return nil, errors.New("product name required")
	}
	if product.PriceCents < 0 {
		return nil, domain.ErrNegativeAmount
	}

	var existing *domain.Product
	if product.ID == "" && product.Key != "" {
		all, err := r.List(ctx)
		if err != nil {
			return nil, err
		}
		for i := range all {
			if all[i].Key == product.Key {
				existing = &all[i]
				break
			}
		}
	} else if product.ID != "" {
		p, err := r.GetByID(ctx, product.ID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		existing = p
	}

	switch {
	case existing != nil:
		product.ID = existing.ID
		product.CreatedAt = existing.CreatedAt
	case product.ID == "":
		product.ID = uuid.NewString()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = r.now().UTC()
	}

	if err := r.store.Put(ctx, product.ID, product, storage.SetOptions{}); err != nil {
		return nil, fmt.Errorf("upsert product %s: %w", product.ID, err)
	}
	r.logger.WithFields(logrus.Fields{"id": product.ID, "key": product.Key}).Info("product repo: upsert")
	return &product, nil
}
