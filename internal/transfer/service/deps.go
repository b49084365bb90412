package service

import (
	"context"

	"github.com/retailops/retailops-backend/internal/transfer/repository"
	"github.com/retailops/retailops-backend/pkg/messaging"
)

// EventPublisher is the write-only event surface the engines emit to.
// Implemented by events.TransferEventPublisher; consumers are out of scope.
type EventPublisher interface {
	PublishPackingStarted(ctx context.Context, data messaging.PackingStartedEvent)
	PublishPackaged(ctx context.Context, data messaging.TransferPackagedEvent)
	PublishReceived(ctx context.Context, data messaging.TransferReceivedEvent)
	PublishLineUpserted(ctx context.Context, data messaging.LineUpsertedEvent)
	PublishLineRemoved(ctx context.Context, data messaging.LineRemovedEvent)
	PublishDiscrepancyRaised(ctx context.Context, data messaging.DiscrepancyRaisedEvent)
	PublishUnified(ctx context.Context, rec messaging.UnifiedRecord)
	PublishMetrics(ctx context.Context, rec messaging.MetricsRecord)
}

// SyncQueue enqueues downstream synchronization jobs.
// Implemented by events.SyncQueue; the consumer side is out of scope.
type SyncQueue interface {
	Enqueue(ctx context.Context, kind, transferID, status string, payload map[string]any) (string, error)
}

// RecordSink receives the audit, unified-event and metrics records emitted
// at the end of each committed submission. Emission is best-effort: a sink
// failure never fails the submission that already committed.
type RecordSink interface {
	Audit(ctx context.Context, entry *repository.AuditEntry)
	UnifiedEvent(ctx context.Context, rec messaging.UnifiedRecord)
	Metrics(ctx context.Context, rec messaging.MetricsRecord)
}
