package product

import (
	"context"

	"golang.org/x/sync/singleflight"

	"storefront/internal/domain"
	productrepo "storefront/internal/repository/product"
)

type Service struct {
	repo  productrepo.Repository
	group singleflight.Group
}

func New(repo productrepo.Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context) ([]domain.Product, error) {
	return s.repo.List(ctx)
}

// Get coalesces concurrent lookups of the same id into one repository call.
// The shared call ignores the first caller's cancellation; each caller still
// stops waiting when its own ctx is done.
func (s *Service) Get(ctx context.Context, id string) (*domain.Product, error) {
	ch := s.group.DoChan(id, func() (interface{}, error) {
		return s.repo.GetByID(context.WithoutCancel(ctx), id)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	p := *res.Val.(*domain.Product)
	return &p, nil
}

// GetByID lets the service stand in for a repository in the cart engine.
func (s *Service) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	return s.Get(ctx, id)
}

func (s *Service) Upsert(ctx context.Context, p domain.Product) (*domain.Product, error) {
	saved, err := s.repo.Upsert(ctx, p)
	if err != nil {
		return nil, err
	}
	s.group.Forget(saved.ID)
	return saved, nil
}
