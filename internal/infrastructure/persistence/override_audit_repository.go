package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/retailpos/backend/internal/domain/stock"
	"gorm.io/gorm"
)

// GormLotOverrideAuditRepository implements LotOverrideAuditRepository using GORM.
// Audit rows are append-only: the repository exposes no update or delete.
type GormLotOverrideAuditRepository struct {
	db *gorm.DB
}

// NewGormLotOverrideAuditRepository creates a new GormLotOverrideAuditRepository
func NewGormLotOverrideAuditRepository(db *gorm.DB) *GormLotOverrideAuditRepository {
	return &GormLotOverrideAuditRepository{db: db}
}

// Save inserts an override audit record
func (r *GormLotOverrideAuditRepository) Save(ctx context.Context, audit *stock.LotOverrideAudit) error {
	return r.db.WithContext(ctx).Create(audit).Error
}

// FindBySale lists override records for a sale, oldest first
func (r *GormLotOverrideAuditRepository) FindBySale(ctx context.Context, saleID uuid.UUID) ([]*stock.LotOverrideAudit, error) {
	var audits []*stock.LotOverrideAudit
	if err := r.db.WithContext(ctx).
		Where("sale_id = ?", saleID).
		Order("authorized_at ASC").
		Find(&audits).Error; err != nil {
		return nil, err
	}
	return audits, nil
}

// FindByProduct lists the most recent override records for a product
func (r *GormLotOverrideAuditRepository) FindByProduct(ctx context.Context, productID uuid.UUID, limit int) ([]*stock.LotOverrideAudit, error) {
	var audits []*stock.LotOverrideAudit
	query := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("authorized_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&audits).Error; err != nil {
		return nil, err
	}
	return audits, nil
}

// WithTx returns a repository bound to the given transaction
func (r *GormLotOverrideAuditRepository) WithTx(tx *gorm.DB) *GormLotOverrideAuditRepository {
	return &GormLotOverrideAuditRepository{db: tx}
}
