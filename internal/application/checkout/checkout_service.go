package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/retailpos/backend/internal/domain/sale"
	"github.com/retailpos/backend/internal/domain/shared"
	"github.com/retailpos/backend/internal/domain/stock"
	"github.com/retailpos/backend/internal/infrastructure/telemetry"
)

const (
	// DefaultCommitTimeout bounds the commit transaction once the caller's
	// own deadline no longer applies
	DefaultCommitTimeout = 10 * time.Second
)

// rejectReasonOutOfStock is persisted on sales rejected by a stock
// conflict, so a resubmission of the same sale ID replays the outcome.
const rejectReasonOutOfStock = "insufficient stock at commit time"

// CheckoutService orchestrates a sale from request to terminal state:
// FEFO planning per item, override authorization, then one atomic stock
// commit for the whole item list. Planning and authorization read live
// data outside any transaction; the commit itself re-validates every
// quantity, so a plan going stale between the two phases surfaces as an
// out_of_stock rejection rather than oversell.
type CheckoutService struct {
	scope         TransactionScope
	lotRepo       stock.StockLotRepository
	auditRepo     stock.LotOverrideAuditRepository
	saleRepo      sale.SaleRepository
	authorizer    *stock.OverrideAuthorizer
	logger        *zap.Logger
	metrics       *telemetry.CheckoutMetrics
	commitTimeout time.Duration
}

// NewCheckoutService creates a new CheckoutService
func NewCheckoutService(
	scope TransactionScope,
	lotRepo stock.StockLotRepository,
	auditRepo stock.LotOverrideAuditRepository,
	saleRepo sale.SaleRepository,
	authorizer *stock.OverrideAuthorizer,
	logger *zap.Logger,
) *CheckoutService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckoutService{
		scope:         scope,
		lotRepo:       lotRepo,
		auditRepo:     auditRepo,
		saleRepo:      saleRepo,
		authorizer:    authorizer,
		logger:        logger,
		commitTimeout: DefaultCommitTimeout,
	}
}

// SetMetrics sets the checkout metrics recorder (optional)
func (s *CheckoutService) SetMetrics(metrics *telemetry.CheckoutMetrics) {
	s.metrics = metrics
}

// SetCommitTimeout overrides the default commit transaction timeout
func (s *CheckoutService) SetCommitTimeout(d time.Duration) {
	if d > 0 {
		s.commitTimeout = d
	}
}

// plannedItem carries one item through the checkout phases
type plannedItem struct {
	request CheckoutItemRequest
	lots    []stock.StockLot
	plan    *stock.AllocationPlan
}

// Checkout runs one sale to a terminal state. The caller can cancel via
// ctx until committing begins; from there the commit runs detached from
// the caller's context under its own timeout, because a half-applied
// decrement must never be the answer to a dropped connection. There are
// no automatic retries: a conflict is reported to the operator, who
// re-checks out against fresh stock.
func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "checkout", "Checkout")
	defer span.End()
	telemetry.SetAttributes(span, "sale_id", req.SaleID.String(), "item_count", len(req.Items))

	// A resubmitted sale ID replays the recorded outcome instead of
	// committing twice.
	existing, err := s.saleRepo.FindByID(ctx, req.SaleID)
	if err == nil {
		s.logger.Info("checkout replayed for known sale",
			zap.String("sale_id", req.SaleID.String()),
			zap.String("status", string(existing.Status)))
		return s.replayOutcome(existing), nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up sale: %w", err)
	}

	sl, err := sale.NewSale(req.SaleID, req.OperatorID)
	if err != nil {
		return nil, err
	}
	for _, item := range req.Items {
		if err := sl.AddItem(item.ProductID, item.Quantity, item.LotID); err != nil {
			return nil, err
		}
	}
	if err := sl.BeginPlanning(); err != nil {
		return nil, err
	}

	planned, reject, err := s.planItems(ctx, req.Items)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if reject != nil {
		reject.SaleID = sl.ID
		return reject, nil
	}

	if err := sl.BeginAuthorizing(); err != nil {
		return nil, err
	}

	audits, reject, err := s.authorizeOverrides(ctx, sl.ID, req.OperatorID, planned)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if reject != nil {
		reject.SaleID = sl.ID
		return reject, nil
	}

	// Audit records are written before the commit is attempted and stand
	// even if the sale is then rejected by a conflict.
	for _, audit := range audits {
		if err := s.auditRepo.Save(ctx, audit); err != nil {
			return nil, fmt.Errorf("failed to save override audit: %w", err)
		}
		if s.metrics != nil {
			s.metrics.RecordOverride(ctx, audit.ProductID.String())
		}
	}

	// Last point at which the caller can still abandon the sale.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := sl.BeginCommitting(); err != nil {
		return nil, err
	}

	return s.commit(ctx, sl, planned)
}

// planItems computes the FEFO plan per item. An infeasible item rejects
// the whole checkout; nothing has been persisted at this point.
func (s *CheckoutService) planItems(ctx context.Context, items []CheckoutItemRequest) ([]plannedItem, *CheckoutResponse, error) {
	planned := make([]plannedItem, 0, len(items))
	for _, item := range items {
		lotPtrs, err := s.lotRepo.FindEligibleForAllocation(ctx, item.ProductID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load lots for product %s: %w", item.ProductID, err)
		}
		lots := make([]stock.StockLot, len(lotPtrs))
		for i, lot := range lotPtrs {
			lots[i] = *lot
		}

		plan, err := stock.PlanAllocation(item.ProductID, item.Quantity, lots)
		if err != nil {
			var infeasible *stock.InfeasibleAllocationError
			if errors.As(err, &infeasible) {
				return nil, &CheckoutResponse{
					Status: StatusOutOfStock,
					Missing: []MissingLine{{
						ProductID: infeasible.ProductID,
						Requested: infeasible.Requested,
						Available: infeasible.Available,
					}},
				}, nil
			}
			return nil, nil, err
		}
		planned = append(planned, plannedItem{request: item, lots: lots, plan: plan})
	}
	return planned, nil, nil
}

// authorizeOverrides validates every deviation from the recommended lot.
// The first failure rejects the whole checkout and no audit record is
// produced for any item: authorization is all-or-nothing.
func (s *CheckoutService) authorizeOverrides(ctx context.Context, saleID, operatorID uuid.UUID, planned []plannedItem) ([]*stock.LotOverrideAudit, *CheckoutResponse, error) {
	var audits []*stock.LotOverrideAudit
	for i := range planned {
		item := &planned[i]
		if item.request.LotID == nil {
			continue
		}
		audit, err := s.authorizer.Authorize(ctx, item.plan, stock.OverrideRequest{
			SaleID:      saleID,
			ChosenLotID: *item.request.LotID,
			Reason:      item.request.Reason,
			Pin:         item.request.Pin,
			OperatorID:  operatorID,
		}, item.lots)
		if err != nil {
			var domainErr *shared.DomainError
			if errors.As(err, &domainErr) {
				s.logger.Warn("override authorization rejected",
					zap.String("sale_id", saleID.String()),
					zap.String("product_id", item.request.ProductID.String()),
					zap.String("code", domainErr.Code))
				return nil, &CheckoutResponse{
					Status:  StatusAuthorizationError,
					Code:    domainErr.Code,
					Field:   domainErr.Field,
					Message: domainErr.Message,
				}, nil
			}
			return nil, nil, fmt.Errorf("failed to authorize override: %w", err)
		}
		if audit == nil {
			// Chosen lot is the recommendation; not an override.
			continue
		}
		chosen := findChosenLot(item.lots, *item.request.LotID)
		item.plan = stock.OverridePlan(item.plan, chosen)
		audits = append(audits, audit)
	}
	return audits, nil, nil
}

// commit applies all plan lines in one transaction together with the
// sale's terminal state and its outbox events
func (s *CheckoutService) commit(ctx context.Context, sl *sale.Sale, planned []plannedItem) (*CheckoutResponse, error) {
	var items []stock.CommitItem
	for _, p := range planned {
		for _, line := range p.plan.Lines {
			items = append(items, stock.CommitItem{
				ProductID: p.plan.ProductID,
				LotID:     line.LotID,
				Quantity:  line.Quantity,
			})
		}
	}

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.commitTimeout)
	defer cancel()

	var response *CheckoutResponse
	start := time.Now()
	err := s.scope.Execute(commitCtx, func(repos TransactionalRepositories) error {
		result, err := repos.Committer().Commit(commitCtx, sl.ID, items)

		var conflict *stock.CommitConflictError
		if errors.As(err, &conflict) {
			if err := sl.Reject(rejectReasonOutOfStock, conflict.Shortfalls); err != nil {
				return err
			}
			if err := repos.SaleRepo().Create(commitCtx, sl); err != nil {
				return fmt.Errorf("failed to persist rejected sale: %w", err)
			}
			if err := repos.SaveEvents(commitCtx, sl.GetDomainEvents()...); err != nil {
				return fmt.Errorf("failed to save events: %w", err)
			}
			sl.ClearDomainEvents()
			response = &CheckoutResponse{
				SaleID:  sl.ID,
				Status:  StatusOutOfStock,
				Missing: missingFromShortfalls(conflict.Shortfalls),
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("stock commit failed: %w", err)
		}

		if err := sl.MarkCommitted(result.Lines); err != nil {
			return err
		}
		if err := repos.SaleRepo().Create(commitCtx, sl); err != nil {
			return fmt.Errorf("failed to persist committed sale: %w", err)
		}
		if err := repos.SaveEvents(commitCtx, sl.GetDomainEvents()...); err != nil {
			return fmt.Errorf("failed to save events: %w", err)
		}
		sl.ClearDomainEvents()
		response = &CheckoutResponse{
			SaleID: sl.ID,
			Status: StatusCommitted,
			Lines:  result.Lines,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordOutcome(ctx, sl, response, time.Since(start))
	return response, nil
}

func (s *CheckoutService) recordOutcome(ctx context.Context, sl *sale.Sale, response *CheckoutResponse, elapsed time.Duration) {
	if response.Status == StatusCommitted {
		s.logger.Info("sale committed",
			zap.String("sale_id", sl.ID.String()),
			zap.Int("lines", len(response.Lines)),
			zap.Duration("commit_duration", elapsed))
	} else {
		s.logger.Warn("sale rejected on stock conflict",
			zap.String("sale_id", sl.ID.String()),
			zap.Int("missing", len(response.Missing)),
			zap.Duration("commit_duration", elapsed))
	}
	if s.metrics == nil {
		return
	}
	s.metrics.RecordCommitDuration(ctx, elapsed)
	if response.Status == StatusCommitted {
		s.metrics.RecordSale(ctx, telemetry.SaleOutcomeCommitted)
	} else {
		s.metrics.RecordSale(ctx, telemetry.SaleOutcomeRejected)
		s.metrics.RecordCommitConflict(ctx)
	}
}

// replayOutcome maps an already-terminal sale back onto the response
// contract without touching stock again
func (s *CheckoutService) replayOutcome(existing *sale.Sale) *CheckoutResponse {
	switch existing.Status {
	case sale.StatusCommitted:
		return &CheckoutResponse{SaleID: existing.ID, Status: StatusCommitted}
	case sale.StatusRejected:
		return &CheckoutResponse{
			SaleID:  existing.ID,
			Status:  StatusOutOfStock,
			Message: existing.RejectReason,
		}
	default:
		return &CheckoutResponse{
			SaleID:  existing.ID,
			Status:  StatusOutOfStock,
			Message: fmt.Sprintf("sale already in progress (status %s)", existing.Status),
		}
	}
}

func findChosenLot(lots []stock.StockLot, id uuid.UUID) *stock.StockLot {
	for i := range lots {
		if lots[i].ID == id {
			return &lots[i]
		}
	}
	return nil
}
