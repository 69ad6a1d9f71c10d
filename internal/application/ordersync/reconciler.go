package ordersync

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/beautyops/backend/internal/domain/integration"
)

// ReconcileStats counts the outcome of reconciling one list of records
type ReconcileStats struct {
	Created int
	Updated int
	Failed  int
	// Errors holds one *integration.PersistenceError per failed record
	Errors []error
}

// Written returns the number of rows created or updated
func (s ReconcileStats) Written() int {
	return s.Created + s.Updated
}

func (s *ReconcileStats) add(other ReconcileStats) {
	s.Created += other.Created
	s.Updated += other.Updated
	s.Failed += other.Failed
	s.Errors = append(s.Errors, other.Errors...)
}

// Reconciler upserts OrderRecords keyed by (channel, external order id).
// Existing rows are overwritten field by field; nothing is ever deleted.
type Reconciler struct {
	orders integration.OrderRepository
	logger *zap.Logger
}

// NewReconciler creates a new Reconciler
func NewReconciler(orders integration.OrderRepository, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{orders: orders, logger: logger}
}

// Reconcile writes records in the given order. A failed record is counted and
// reported in the stats; the remaining records still proceed. onRecord, when
// non-nil, is called after every successful write with the running stats.
// The returned error is non-nil only when ctx is cancelled mid-way.
func (r *Reconciler) Reconcile(ctx context.Context, records []*integration.OrderRecord, onRecord func(ReconcileStats)) (ReconcileStats, error) {
	var stats ReconcileStats

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		created, err := r.upsert(ctx, record)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, ctxErr
			}
			stats.Failed++
			stats.Errors = append(stats.Errors, &integration.PersistenceError{
				Channel: record.Channel,
				OrderID: record.ExternalOrderID,
				Err:     err,
			})
			r.logger.Warn("Failed to reconcile order",
				zap.String("channel", record.Channel.String()),
				zap.String("order_id", record.ExternalOrderID),
				zap.Error(err))
			continue
		}

		if created {
			stats.Created++
		} else {
			stats.Updated++
		}
		if onRecord != nil {
			onRecord(stats)
		}
	}

	return stats, nil
}

// upsert looks the record up and then inserts or overwrites it
func (r *Reconciler) upsert(ctx context.Context, record *integration.OrderRecord) (created bool, err error) {
	existing, err := r.orders.FindByChannelAndOrderID(ctx, record.Channel, record.ExternalOrderID)
	switch {
	case errors.Is(err, integration.ErrOrderNotFound):
		if err := r.orders.Create(ctx, record); err != nil {
			return false, err
		}
		return true, nil
	case err != nil:
		return false, err
	}

	existing.ApplyFrom(record)
	if err := r.orders.Update(ctx, existing); err != nil {
		return false, err
	}
	return false, nil
}
