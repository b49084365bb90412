package events

import (
	"context"

	"github.com/google/uuid"

	"github.com/retailops/retailops-backend/pkg/logger"
	"github.com/retailops/retailops-backend/pkg/messaging"
)

// TransferEventPublisher publishes transfer lifecycle events, unified
// operational records and metrics to the transfer.events exchange.
type TransferEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewTransferEventPublisher creates a new transfer event publisher
func NewTransferEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*TransferEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeTransferEvents, "transfer-service", log)
	if err != nil {
		return nil, err
	}

	return &TransferEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishPackingStarted publishes the one-time packing started event
func (p *TransferEventPublisher) PublishPackingStarted(ctx context.Context, data messaging.PackingStartedEvent) {
	if p == nil {
		return
	}
	if err := p.publisher.Publish(ctx, messaging.EventTransferPackingStarted, data); err != nil {
		p.logger.Error().Err(err).Str("transfer_id", data.TransferID).Msg("failed to publish packing started event")
	}
}

// PublishPackaged publishes a packaged event for a committed packing submission
func (p *TransferEventPublisher) PublishPackaged(ctx context.Context, data messaging.TransferPackagedEvent) {
	if p == nil {
		return
	}
	if err := p.publisher.Publish(ctx, messaging.EventTransferPackaged, data); err != nil {
		p.logger.Error().Err(err).Str("transfer_id", data.TransferID).Msg("failed to publish packaged event")
	}
}

// PublishReceived publishes a received/partial event for a committed receiving submission
func (p *TransferEventPublisher) PublishReceived(ctx context.Context, data messaging.TransferReceivedEvent) {
	if p == nil {
		return
	}
	eventType := messaging.EventTransferPartial
	if data.Complete {
		eventType = messaging.EventTransferReceived
	}
	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).Str("transfer_id", data.TransferID).Msg("failed to publish received event")
	}
}

// PublishLineUpserted publishes a line upsert; the legacy staging consumer
// is driven from this instead of a dual write.
func (p *TransferEventPublisher) PublishLineUpserted(ctx context.Context, data messaging.LineUpsertedEvent) {
	if p == nil {
		return
	}
	if err := p.publisher.Publish(ctx, messaging.EventLineUpserted, data); err != nil {
		p.logger.Error().Err(err).Str("transfer_id", data.TransferID).Msg("failed to publish line upserted event")
	}
}

// PublishLineRemoved publishes a line removal so consumers of the upsert
// stream can retract the line.
func (p *TransferEventPublisher) PublishLineRemoved(ctx context.Context, data messaging.LineRemovedEvent) {
	if p == nil {
		return
	}
	if err := p.publisher.Publish(ctx, messaging.EventLineRemoved, data); err != nil {
		p.logger.Error().Err(err).Str("transfer_id", data.TransferID).Msg("failed to publish line removed event")
	}
}

// PublishDiscrepancyRaised publishes one event per shortfall discrepancy
func (p *TransferEventPublisher) PublishDiscrepancyRaised(ctx context.Context, data messaging.DiscrepancyRaisedEvent) {
	if p == nil {
		return
	}
	if err := p.publisher.Publish(ctx, messaging.EventDiscrepancyRaised, data); err != nil {
		p.logger.Error().Err(err).Str("transfer_id", data.TransferID).Msg("failed to publish discrepancy event")
	}
}

// PublishUnified publishes a unified operational record for the reporting pipeline
func (p *TransferEventPublisher) PublishUnified(ctx context.Context, rec messaging.UnifiedRecord) {
	if p == nil {
		return
	}
	if err := p.publisher.Publish(ctx, messaging.EventUnified, rec); err != nil {
		p.logger.Error().Err(err).Str("transfer_id", rec.TransferID).Msg("failed to publish unified record")
	}
}

// PublishMetrics publishes per-submission processing metrics
func (p *TransferEventPublisher) PublishMetrics(ctx context.Context, rec messaging.MetricsRecord) {
	if p == nil {
		return
	}
	if err := p.publisher.Publish(ctx, messaging.EventMetrics, rec); err != nil {
		p.logger.Error().Err(err).Str("transfer_id", rec.TransferID).Msg("failed to publish metrics record")
	}
}

// SyncQueue enqueues downstream synchronization jobs. Consumers (legacy
// staging, storefront caches) live outside this service.
type SyncQueue struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewSyncQueue creates a new downstream sync queue producer
func NewSyncQueue(rmq *messaging.RabbitMQ, log *logger.Logger) (*SyncQueue, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeTransferSync, "transfer-service", log)
	if err != nil {
		return nil, err
	}

	return &SyncQueue{
		publisher: publisher,
		logger:    log,
	}, nil
}

// Enqueue publishes one sync job and returns its job ID.
func (q *SyncQueue) Enqueue(ctx context.Context, kind, transferID, status string, payload map[string]any) (string, error) {
	job := messaging.SyncJob{
		JobID:      uuid.New().String(),
		Kind:       kind,
		TransferID: transferID,
		Status:     status,
		Payload:    payload,
	}

	event, err := messaging.NewEvent(messaging.EventSyncJob+"."+kind, "transfer-service", "", job)
	if err != nil {
		return "", err
	}

	if err := q.publisher.PublishWithRoutingKey(ctx, messaging.EventSyncJob+"."+kind, event); err != nil {
		return "", err
	}

	q.logger.Debug().
		Str("job_id", job.JobID).
		Str("kind", kind).
		Str("transfer_id", transferID).
		Msg("sync job enqueued")

	return job.JobID, nil
}
