package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/retailops/retailops-backend/internal/transfer/domain"
	"github.com/retailops/retailops-backend/internal/transfer/repository"
	"github.com/retailops/retailops-backend/pkg/actor"
	"github.com/retailops/retailops-backend/pkg/database"
	"github.com/retailops/retailops-backend/pkg/errors"
	"github.com/retailops/retailops-backend/pkg/logger"
	"github.com/retailops/retailops-backend/pkg/messaging"
)

// ReceivingService counts arrived quantities, records discrepancies for
// shortfalls, and advances the transfer to partial or received.
type ReceivingService struct {
	db        *database.DB
	transfers *repository.TransferRepository
	shipments *repository.ShipmentRepository
	receipts  *repository.ReceiptRepository
	pub       EventPublisher
	queue     SyncQueue
	sink      RecordSink
	logger    *logger.Logger
}

// NewReceivingService creates a new receiving engine
func NewReceivingService(db *database.DB, transfers *repository.TransferRepository, shipments *repository.ShipmentRepository, receipts *repository.ReceiptRepository, pub EventPublisher, queue SyncQueue, sink RecordSink, log *logger.Logger) *ReceivingService {
	return &ReceivingService{
		db:        db,
		transfers: transfers,
		shipments: shipments,
		receipts:  receipts,
		pub:       pub,
		queue:     queue,
		sink:      sink,
		logger:    log,
	}
}

// ReceivedLine is one counted line of a receiving submission
type ReceivedLine struct {
	ItemID      string  `json:"item_id" validate:"required,uuid"`
	QtyReceived int     `json:"qty_received" validate:"required,gt=0"`
	Condition   string  `json:"condition,omitempty" validate:"omitempty,oneof=good damaged expired"`
	Notes       *string `json:"notes,omitempty"`
}

// ReceivingRequest is the receive input
type ReceivingRequest struct {
	Lines []ReceivedLine `json:"lines" validate:"required,min=1,dive"`
}

// ReceivingResult is the receive response payload
type ReceivingResult struct {
	TransferID       string                    `json:"transfer_id"`
	ReceiptID        string                    `json:"receipt_id"`
	State            domain.State              `json:"state"`
	Complete         bool                      `json:"complete"`
	QtyReceivedTotal int                       `json:"qty_received_total"`
	Discrepancies    []*repository.Discrepancy `json:"discrepancies,omitempty"`
}

// Submit runs one receiving submission. Completeness is recomputed from the
// persisted line totals after this submission's counts are applied, never
// taken from the caller.
func (s *ReceivingService) Submit(ctx context.Context, transferID string, req ReceivingRequest) (*ReceivingResult, error) {
	start := time.Now()

	receivedBy := ""
	if a := actor.FromContext(ctx); a != nil {
		receivedBy = a.ID
	}

	var result ReceivingResult

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		t, err := s.transfers.GetTx(ctx, tx, transferID)
		if err != nil {
			return err
		}

		// Reject before any write; the exact next state depends on the
		// recomputed completeness below.
		if !domain.Can(t.State, domain.ActionReceivePart) {
			return errors.State(fmt.Sprintf("cannot receive a transfer in state %s", t.State))
		}

		now := time.Now().UTC()
		receipt := &repository.Receipt{
			TransferID: transferID,
			ReceivedBy: receivedBy,
			ReceivedAt: now,
		}
		if err := s.receipts.Insert(ctx, tx, receipt); err != nil {
			return err
		}

		qtyTotal := 0
		for _, line := range req.Lines {
			item, err := s.transfers.GetItemTx(ctx, tx, transferID, line.ItemID)
			if err != nil {
				return err
			}
			if item.QtyReceived+line.QtyReceived > item.QtySent {
				return errors.Invariant("INVARIANT_OVER_RECEIPT",
					fmt.Sprintf("receiving %d of product %s would exceed the sent %d (already received %d)",
						line.QtyReceived, item.ProductID, item.QtySent, item.QtyReceived))
			}
			if err := s.transfers.AddItemReceived(ctx, tx, item.ID, line.QtyReceived); err != nil {
				return err
			}
			if err := s.receipts.InsertItem(ctx, tx, &repository.ReceiptItem{
				ReceiptID:      receipt.ID,
				TransferItemID: line.ItemID,
				QtyReceived:    line.QtyReceived,
				Condition:      line.Condition,
				Notes:          line.Notes,
			}); err != nil {
				return err
			}
			qtyTotal += line.QtyReceived
		}

		// Every delivery attempt consumes the in-transit parcels, whether or
		// not the counts add up.
		if err := s.shipments.MarkReceived(ctx, tx, transferID, now); err != nil {
			return err
		}

		items, err := s.transfers.ListItemsTx(ctx, tx, transferID)
		if err != nil {
			return err
		}
		sentTotal := 0
		complete := true
		var discrepancies []*repository.Discrepancy
		for _, item := range items {
			sentTotal += item.QtySent
			if item.QtyReceived < item.QtySent {
				complete = false
				discrepancies = append(discrepancies, &repository.Discrepancy{
					TransferID: transferID,
					ItemID:     item.ID,
					Type:       "missing",
					Qty:        item.QtySent - item.QtyReceived,
				})
			}
		}

		// A transfer with nothing sent yet can never count as fully received.
		if sentTotal == 0 {
			complete = false
		}

		action := domain.ActionReceivePart
		if complete {
			action = domain.ActionReceiveAll
			discrepancies = nil
		}
		nextState, err := domain.Next(t.State, action)
		if err != nil {
			return err
		}

		for _, d := range discrepancies {
			if err := s.receipts.InsertDiscrepancy(ctx, tx, d); err != nil {
				return err
			}
		}

		if err := s.transfers.UpdateStateCAS(ctx, tx, t, nextState, 0, decimal.Zero); err != nil {
			return err
		}

		result = ReceivingResult{
			TransferID:       transferID,
			ReceiptID:        receipt.ID,
			State:            t.State,
			Complete:         complete,
			QtyReceivedTotal: qtyTotal,
			Discrepancies:    discrepancies,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitReceived(ctx, &result, receivedBy, len(req.Lines), time.Since(start))

	return &result, nil
}

func (s *ReceivingService) emitReceived(ctx context.Context, result *ReceivingResult, receivedBy string, lineCount int, elapsed time.Duration) {
	s.pub.PublishReceived(ctx, messaging.TransferReceivedEvent{
		TransferID: result.TransferID,
		ReceiptID:  result.ReceiptID,
		Complete:   result.Complete,
		ReceivedBy: receivedBy,
	})

	for _, d := range result.Discrepancies {
		s.pub.PublishDiscrepancyRaised(ctx, messaging.DiscrepancyRaisedEvent{
			TransferID: d.TransferID,
			ItemID:     d.ItemID,
			Type:       d.Type,
			Qty:        d.Qty,
		})
	}

	action := "transfer.received.partial"
	if result.Complete {
		action = "transfer.received"
	}
	entry := &repository.AuditEntry{
		EntityType: "transfer",
		EntityID:   result.TransferID,
		Action:     action,
	}
	meta := fmt.Sprintf(`{"receipt_id":%q,"complete":%t,"discrepancies":%d}`,
		result.ReceiptID, result.Complete, len(result.Discrepancies))
	entry.Metadata = &meta
	if a := actor.FromContext(ctx); a != nil {
		entry.PerformedBy = &a.ID
		name := a.Name
		entry.PerformedByName = &name
	}
	s.sink.Audit(ctx, entry)

	s.sink.UnifiedEvent(ctx, messaging.UnifiedRecord{
		Kind:       action,
		TransferID: result.TransferID,
		ActorID:    receivedBy,
		Payload: map[string]any{
			"receipt_id": result.ReceiptID,
			"complete":   result.Complete,
		},
	})

	s.sink.Metrics(ctx, messaging.MetricsRecord{
		Operation:  "receive",
		TransferID: result.TransferID,
		ItemCount:  lineCount,
		QtyTotal:   result.QtyReceivedTotal,
		ElapsedMS:  elapsed.Milliseconds(),
	})

	if _, err := s.queue.Enqueue(ctx, "received", result.TransferID, string(result.State), map[string]any{
		"receipt_id": result.ReceiptID,
		"complete":   result.Complete,
	}); err != nil {
		s.logger.Error().Err(err).Str("transfer_id", result.TransferID).Msg("failed to enqueue received sync job")
	}
}
