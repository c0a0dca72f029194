package persistence

import (
	"context"

	appcheckout "github.com/retailpos/backend/internal/application/checkout"
	"github.com/retailpos/backend/internal/domain/sale"
	"github.com/retailpos/backend/internal/domain/shared"
	"github.com/retailpos/backend/internal/domain/stock"
	"gorm.io/gorm"
)

// GormCheckoutScope implements the checkout TransactionScope using GORM
// transactions. The outbox saver is shared so that events written inside
// the scope use the same serializer as the outbox processor reading them.
type GormCheckoutScope struct {
	db     *gorm.DB
	outbox shared.OutboxEventSaver
}

// NewGormCheckoutScope creates a new GormCheckoutScope
func NewGormCheckoutScope(db *gorm.DB, outbox shared.OutboxEventSaver) *GormCheckoutScope {
	return &GormCheckoutScope{db: db, outbox: outbox}
}

// Execute runs the given function within a database transaction.
func (s *GormCheckoutScope) Execute(ctx context.Context, fn func(repos appcheckout.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormCheckoutRepositories{tx: tx, outbox: s.outbox})
	})
}

type gormCheckoutRepositories struct {
	tx     *gorm.DB
	outbox shared.OutboxEventSaver
}

// SaleRepo returns the sale repository scoped to the current transaction.
func (r *gormCheckoutRepositories) SaleRepo() sale.SaleRepository {
	return NewGormSaleRepository(r.tx)
}

// LotRepo returns the stock lot repository scoped to the current transaction.
func (r *gormCheckoutRepositories) LotRepo() stock.StockLotRepository {
	return NewGormStockLotRepository(r.tx)
}

// AuditRepo returns the override audit repository scoped to the current transaction.
func (r *gormCheckoutRepositories) AuditRepo() stock.LotOverrideAuditRepository {
	return NewGormLotOverrideAuditRepository(r.tx)
}

// Committer returns a stock committer whose decrements join the current transaction.
func (r *gormCheckoutRepositories) Committer() stock.StockCommitter {
	return NewGormStockCommitter(r.tx)
}

// SaveEvents writes domain events to the outbox within the current transaction.
func (r *gormCheckoutRepositories) SaveEvents(ctx context.Context, events ...shared.DomainEvent) error {
	return r.outbox.SaveEvents(ctx, r.tx, events...)
}

var _ appcheckout.TransactionScope = (*GormCheckoutScope)(nil)
var _ appcheckout.TransactionalRepositories = (*gormCheckoutRepositories)(nil)
