package service

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/retailops/retailops-backend/internal/transfer/domain"
	"github.com/retailops/retailops-backend/internal/transfer/repository"
	"github.com/retailops/retailops-backend/pkg/actor"
	"github.com/retailops/retailops-backend/pkg/database"
	"github.com/retailops/retailops-backend/pkg/errors"
	"github.com/retailops/retailops-backend/pkg/logger"
	"github.com/retailops/retailops-backend/pkg/messaging"
)

// LineService manages the requested lines on a transfer before it ships.
type LineService struct {
	db     *database.DB
	repo   *repository.TransferRepository
	pub    EventPublisher
	queue  SyncQueue
	sink   RecordSink
	logger *logger.Logger
}

// NewLineService creates a new line service
func NewLineService(db *database.DB, repo *repository.TransferRepository, pub EventPublisher, queue SyncQueue, sink RecordSink, log *logger.Logger) *LineService {
	return &LineService{
		db:     db,
		repo:   repo,
		pub:    pub,
		queue:  queue,
		sink:   sink,
		logger: log,
	}
}

// AddLineRequest is the add_line input
type AddLineRequest struct {
	ProductID    string `json:"product_id" validate:"required,uuid"`
	QtyRequested int    `json:"qty_requested" validate:"required,gt=0"`
}

// AddLine upserts a line by (transfer, product). An existing non-deleted
// line keeps the greater of its stored and the submitted requested
// quantity, so retried or doubled-up adds are absorbed.
func (s *LineService) AddLine(ctx context.Context, transferID string, req AddLineRequest) (*repository.TransferItem, error) {
	var (
		item  *repository.TransferItem
		state domain.State
	)

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		t, err := s.repo.GetTx(ctx, tx, transferID)
		if err != nil {
			return err
		}
		state = t.State
		if !domain.Can(t.State, domain.ActionEditLines) {
			return errors.State(fmt.Sprintf("lines cannot be edited while the transfer is %q", t.State))
		}

		existing, err := s.repo.GetItemByProductTx(ctx, tx, transferID, req.ProductID)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return err
		}

		if existing != nil {
			merged, err := s.repo.MergeItemRequested(ctx, tx, existing.ID, req.QtyRequested)
			if err != nil {
				return err
			}
			existing.QtyRequested = merged
			item = existing
			return nil
		}

		item = &repository.TransferItem{
			TransferID:   transferID,
			ProductID:    req.ProductID,
			QtyRequested: req.QtyRequested,
		}
		if a := actor.FromContext(ctx); a != nil {
			item.CreatedBy = &a.ID
		}
		return s.repo.InsertItem(ctx, tx, item)
	})
	if err != nil {
		return nil, err
	}

	s.pub.PublishLineUpserted(ctx, messaging.LineUpsertedEvent{
		TransferID:   transferID,
		ItemID:       item.ID,
		ProductID:    item.ProductID,
		QtyRequested: item.QtyRequested,
	})

	// The legacy staging consumer is fed from the sync queue; a failed
	// enqueue is logged and repaired by the reconciliation sweep, it does
	// not fail the line edit that already committed.
	if _, err := s.queue.Enqueue(ctx, "line_upserted", transferID, string(state), map[string]any{
		"item_id":       item.ID,
		"product_id":    item.ProductID,
		"qty_requested": item.QtyRequested,
	}); err != nil {
		s.logger.Error().Err(err).Str("transfer_id", transferID).Msg("failed to enqueue line sync job")
	}

	s.auditLine(ctx, transferID, item.ID, "line.upserted")

	return item, nil
}

// UpdateLineQtyRequest is the update_line_qty input
type UpdateLineQtyRequest struct {
	QtyRequested int `json:"qty_requested" validate:"required,gt=0"`
}

// UpdateLineQty overwrites a line's requested quantity. The new quantity
// may not undercut what has already been sent.
func (s *LineService) UpdateLineQty(ctx context.Context, transferID, itemID string, req UpdateLineQtyRequest) (*repository.TransferItem, error) {
	var item *repository.TransferItem

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		t, err := s.repo.GetTx(ctx, tx, transferID)
		if err != nil {
			return err
		}
		if !domain.Can(t.State, domain.ActionEditLines) {
			return errors.State(fmt.Sprintf("lines cannot be edited while the transfer is %q", t.State))
		}

		item, err = s.repo.GetItemTx(ctx, tx, transferID, itemID)
		if err != nil {
			return err
		}
		if req.QtyRequested < item.QtySent {
			return errors.Invariant("INVARIANT_OVERPACK",
				fmt.Sprintf("requested quantity %d is below the %d already sent", req.QtyRequested, item.QtySent))
		}

		if err := s.repo.SetItemRequested(ctx, tx, item.ID, req.QtyRequested); err != nil {
			return err
		}
		item.QtyRequested = req.QtyRequested
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditLine(ctx, transferID, item.ID, "line.qty_updated")

	return item, nil
}

// RemoveLine soft-deletes a line. A line that has shipped or been received
// in any quantity is locked in place.
func (s *LineService) RemoveLine(ctx context.Context, transferID, itemID string) error {
	var (
		productID string
		state     domain.State
	)

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		t, err := s.repo.GetTx(ctx, tx, transferID)
		if err != nil {
			return err
		}
		state = t.State
		if !domain.Can(t.State, domain.ActionEditLines) {
			return errors.State(fmt.Sprintf("lines cannot be edited while the transfer is %q", t.State))
		}

		item, err := s.repo.GetItemTx(ctx, tx, transferID, itemID)
		if err != nil {
			return err
		}
		if item.QtySent > 0 || item.QtyReceived > 0 {
			return errors.Invariant("INVARIANT_LINE_LOCKED",
				"a line with sent or received quantity cannot be removed")
		}
		productID = item.ProductID

		return s.repo.SoftDeleteItem(ctx, tx, item.ID)
	})
	if err != nil {
		return err
	}

	s.pub.PublishLineRemoved(ctx, messaging.LineRemovedEvent{
		TransferID: transferID,
		ItemID:     itemID,
		ProductID:  productID,
	})

	if _, err := s.queue.Enqueue(ctx, "line_removed", transferID, string(state), map[string]any{
		"item_id":    itemID,
		"product_id": productID,
	}); err != nil {
		s.logger.Error().Err(err).Str("transfer_id", transferID).Msg("failed to enqueue line sync job")
	}

	s.auditLine(ctx, transferID, itemID, "line.removed")

	return nil
}

func (s *LineService) auditLine(ctx context.Context, transferID, itemID, action string) {
	entry := &repository.AuditEntry{
		EntityType: "transfer_item",
		EntityID:   itemID,
		Action:     action,
	}
	meta := fmt.Sprintf(`{"transfer_id":%q}`, transferID)
	entry.Metadata = &meta
	if a := actor.FromContext(ctx); a != nil {
		entry.PerformedBy = &a.ID
		name := a.Name
		entry.PerformedByName = &name
	}
	s.sink.Audit(ctx, entry)
}
