package checkout

import (
	"context"

	"github.com/retailpos/backend/internal/domain/sale"
	"github.com/retailpos/backend/internal/domain/shared"
	"github.com/retailpos/backend/internal/domain/stock"
)

// TransactionScope provides transactional access to the repositories a
// checkout touches. When a function is executed within a transaction
// scope, all repository operations are part of the same database
// transaction and commit or roll back atomically.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to the checkout repositories
// within one transaction. Everything returned shares the same underlying
// database transaction, which is what makes the core checkout guarantee
// hold: the lot decrements, the sale's terminal status and the outbox
// entries all land together or not at all.
type TransactionalRepositories interface {
	// SaleRepo returns the sale repository scoped to the current transaction
	SaleRepo() sale.SaleRepository
	// LotRepo returns the stock lot repository scoped to the current transaction
	LotRepo() stock.StockLotRepository
	// AuditRepo returns the override audit repository scoped to the current transaction
	AuditRepo() stock.LotOverrideAuditRepository
	// Committer returns a stock committer whose decrements join the current transaction
	Committer() stock.StockCommitter
	// SaveEvents writes domain events to the outbox within the current transaction
	SaveEvents(ctx context.Context, events ...shared.DomainEvent) error
}

// NoOpTransactionScope is a transaction scope that doesn't actually use
// transactions. This is useful for testing with in-memory repositories.
type NoOpTransactionScope struct {
	Repos TransactionalRepositories
}

// Execute runs the function without a real transaction.
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s.Repos)
}
