// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Attribute keys used for checkout and stock metrics labeling.
var (
	AttrProductID    = attribute.Key("product_id")
	AttrSaleOutcome  = attribute.Key("outcome")
	AttrRejectReason = attribute.Key("reject_reason")
)

// SaleOutcome labels a finished checkout for metrics.
type SaleOutcome string

const (
	SaleOutcomeCommitted SaleOutcome = "committed"
	SaleOutcomeRejected  SaleOutcome = "rejected"
)

// MetricsError describes a metrics initialization failure.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewCheckoutMetrics", Err: "meter cannot be nil"}

// StockMetricsProvider provides stock data for periodic metrics
// collection. The interface keeps the telemetry layer from depending on
// the stock domain directly.
type StockMetricsProvider interface {
	// GetLowStockCount returns the number of products whose eligible
	// quantity is at or below the replenishment threshold
	GetLowStockCount(ctx context.Context) (int64, error)
}

// CheckoutMetricsConfig holds configuration for checkout metrics.
type CheckoutMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	CollectInterval time.Duration // Default: 5 minutes
	StockProvider   StockMetricsProvider
}

// CheckoutMetrics tracks checkout throughput, commit conflicts, lot
// overrides and stock health.
type CheckoutMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	saleTotal           *Counter
	commitConflictTotal *Counter
	overrideTotal       *Counter
	commitDuration      *Histogram

	lowStockCount *Gauge

	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	stockProvider StockMetricsProvider
}

// NewCheckoutMetrics creates a new CheckoutMetrics instance.
func NewCheckoutMetrics(cfg CheckoutMetricsConfig) (*CheckoutMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cm := &CheckoutMetrics{
		meter:         cfg.Meter,
		logger:        logger,
		stopChan:      make(chan struct{}),
		stockProvider: cfg.StockProvider,
	}

	var err error

	cm.saleTotal, err = NewCounter(
		cfg.Meter,
		"pos_sale_total",
		"Total number of finished checkouts by outcome",
		"{sales}",
	)
	if err != nil {
		return nil, err
	}

	cm.commitConflictTotal, err = NewCounter(
		cfg.Meter,
		"pos_commit_conflict_total",
		"Total number of stock commits lost to a concurrent sale",
		"{conflicts}",
	)
	if err != nil {
		return nil, err
	}

	cm.overrideTotal, err = NewCounter(
		cfg.Meter,
		"pos_lot_override_total",
		"Total number of authorized lot overrides",
		"{overrides}",
	)
	if err != nil {
		return nil, err
	}

	cm.commitDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "pos_commit_duration_seconds",
		Description: "Duration of the stock commit transaction",
		Unit:        "s",
		Boundaries:  []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})
	if err != nil {
		return nil, err
	}

	cm.lowStockCount, err = NewGauge(
		cfg.Meter,
		"pos_low_stock_count",
		"Number of products at or below the replenishment threshold",
		"{products}",
	)
	if err != nil {
		return nil, err
	}

	return cm, nil
}

// RecordSale records a finished checkout with its outcome.
func (cm *CheckoutMetrics) RecordSale(ctx context.Context, outcome SaleOutcome) {
	cm.saleTotal.Inc(ctx, AttrSaleOutcome.String(string(outcome)))
}

// RecordCommitConflict records a sale lost to a concurrent commit.
func (cm *CheckoutMetrics) RecordCommitConflict(ctx context.Context) {
	cm.commitConflictTotal.Inc(ctx)
}

// RecordOverride records an authorized lot override for a product.
func (cm *CheckoutMetrics) RecordOverride(ctx context.Context, productID string) {
	cm.overrideTotal.Inc(ctx, AttrProductID.String(productID))
}

// RecordCommitDuration records how long the commit transaction took.
func (cm *CheckoutMetrics) RecordCommitDuration(ctx context.Context, d time.Duration) {
	cm.commitDuration.RecordDuration(ctx, d)
}

// StartPeriodicCollection starts periodic collection of the stock gauges.
// Non-blocking; use Stop() to stop collection.
func (cm *CheckoutMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	cm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		go cm.runPeriodicCollection(ctx, interval)
	})
}

func (cm *CheckoutMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	cm.collectStockMetrics(ctx)

	for {
		select {
		case <-cm.stopChan:
			cm.logger.Info("Stopping periodic checkout metrics collection")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			cm.collectStockMetrics(ctx)
		}
	}
}

func (cm *CheckoutMetrics) collectStockMetrics(ctx context.Context) {
	if cm.stockProvider == nil {
		cm.logger.Debug("No stock provider configured, skipping stock metrics collection")
		return
	}

	count, err := cm.stockProvider.GetLowStockCount(ctx)
	if err != nil {
		cm.logger.Warn("Failed to get low stock count", zap.Error(err))
		return
	}
	cm.lowStockCount.Record(ctx, count)
}

// Stop stops the periodic collection.
func (cm *CheckoutMetrics) Stop() {
	cm.stopOnce.Do(func() {
		close(cm.stopChan)
	})
}
