package sale

import (
	"context"

	"github.com/google/uuid"
)

// SaleRepository persists sale aggregates together with their items
type SaleRepository interface {
	Create(ctx context.Context, s *Sale) error
	Save(ctx context.Context, s *Sale) error
	FindByID(ctx context.Context, id uuid.UUID) (*Sale, error)
}
