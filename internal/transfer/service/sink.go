package service

import (
	"context"

	"github.com/retailops/retailops-backend/internal/transfer/repository"
	"github.com/retailops/retailops-backend/pkg/logger"
	"github.com/retailops/retailops-backend/pkg/messaging"
)

// OpsSink is the production RecordSink: audit rows go to the append-only
// audit trail, unified and metrics records go out on the event exchange.
type OpsSink struct {
	audit  *repository.AuditRepository
	pub    EventPublisher
	logger *logger.Logger
}

// NewOpsSink creates the production record sink
func NewOpsSink(audit *repository.AuditRepository, pub EventPublisher, log *logger.Logger) *OpsSink {
	return &OpsSink{
		audit:  audit,
		pub:    pub,
		logger: log,
	}
}

// Audit appends one audit trail entry
func (s *OpsSink) Audit(ctx context.Context, entry *repository.AuditEntry) {
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("entity_id", entry.EntityID).
			Str("action", entry.Action).
			Msg("failed to write audit entry")
	}
}

// UnifiedEvent publishes one unified operational record
func (s *OpsSink) UnifiedEvent(ctx context.Context, rec messaging.UnifiedRecord) {
	s.pub.PublishUnified(ctx, rec)
}

// Metrics publishes one metrics record
func (s *OpsSink) Metrics(ctx context.Context, rec messaging.MetricsRecord) {
	s.pub.PublishMetrics(ctx, rec)
}
