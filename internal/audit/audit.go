// Package audit appends rows to the immutable payment_events log. Rows are
// never updated or deleted.
package audit

import (
	"context"

	"oxe-delivery/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Event kinds written by the hot paths and the sweeps.
const (
	KindIntakeFailed    = "intake_failed"
	KindChargeCreated   = "charge_created"
	KindChargeFailed    = "charge_failed"
	KindChargeReused    = "charge_reused"
	KindWebhookReceived = "webhook_received"
	KindWebhookApplied  = "webhook_applied"
	KindWebhookSkipped  = "webhook_skipped"
	KindWebhookUnknown  = "webhook_unknown_payment"
	KindWebhookFailed   = "webhook_failed"
	KindOrphanRepaired  = "orphan_repaired"
	KindPaymentExpired  = "payment_expired"
	KindOrderOutOfSync  = "order_out_of_sync"
)

type Recorder struct {
	dbPool *pgxpool.Pool
	logger *logger.Logger
}

func NewRecorder(dbPool *pgxpool.Pool, log *logger.Logger) *Recorder {
	return &Recorder{
		dbPool: dbPool,
		logger: log,
	}
}

// Record appends one audit row. It is a best-effort side effect: failures are
// logged locally and never propagated, so an audit outage cannot fail or roll
// back the primary write.
func (r *Recorder) Record(ctx context.Context, paymentID *int64, kind, providerID, detail, correlationID string) {
	_, err := r.dbPool.Exec(ctx, `
        INSERT INTO payment_events (payment_id, kind, provider_id, detail, correlation_id)
        VALUES ($1, $2, $3, $4, $5)
    `, paymentID, kind, providerID, detail, correlationID)

	if err != nil {
		r.logger.Error(correlationID, "audit_write_failed", "Failed to append payment event", err)
	}
}
