package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/retailpos/backend/internal/domain/sale"
	"github.com/retailpos/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormSaleRepository implements SaleRepository using GORM
type GormSaleRepository struct {
	db *gorm.DB
}

// NewGormSaleRepository creates a new GormSaleRepository
func NewGormSaleRepository(db *gorm.DB) *GormSaleRepository {
	return &GormSaleRepository{db: db}
}

// Create inserts a new sale together with its items
func (r *GormSaleRepository) Create(ctx context.Context, s *sale.Sale) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// Save updates a sale and reconciles its items
func (r *GormSaleRepository) Save(ctx context.Context, s *sale.Sale) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Items").Save(s).Error; err != nil {
			return err
		}

		currentItemIDs := make([]uuid.UUID, len(s.Items))
		for i, item := range s.Items {
			currentItemIDs[i] = item.ID
		}

		if len(currentItemIDs) > 0 {
			if err := tx.Where("sale_id = ? AND id NOT IN ?", s.ID, currentItemIDs).
				Delete(&sale.SaleItem{}).Error; err != nil {
				return err
			}
		} else {
			if err := tx.Where("sale_id = ?", s.ID).
				Delete(&sale.SaleItem{}).Error; err != nil {
				return err
			}
		}

		for i := range s.Items {
			s.Items[i].SaleID = s.ID
			if err := tx.Save(&s.Items[i]).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

// FindByID loads a sale with its items
func (r *GormSaleRepository) FindByID(ctx context.Context, id uuid.UUID) (*sale.Sale, error) {
	var s sale.Sale
	if err := r.db.WithContext(ctx).
		Preload("Items").
		First(&s, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// WithTx returns a repository bound to the given transaction
func (r *GormSaleRepository) WithTx(tx *gorm.DB) *GormSaleRepository {
	return &GormSaleRepository{db: tx}
}
