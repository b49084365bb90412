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

// PackingService records packed quantities, creates the shipment and its
// parcels, and advances the transfer state. Every submission is one atomic
// transaction: on failure nothing persists.
type PackingService struct {
	db        *database.DB
	transfers *repository.TransferRepository
	shipments *repository.ShipmentRepository
	pub       EventPublisher
	queue     SyncQueue
	sink      RecordSink
	logger    *logger.Logger
}

// NewPackingService creates a new packing engine
func NewPackingService(db *database.DB, transfers *repository.TransferRepository, shipments *repository.ShipmentRepository, pub EventPublisher, queue SyncQueue, sink RecordSink, log *logger.Logger) *PackingService {
	return &PackingService{
		db:        db,
		transfers: transfers,
		shipments: shipments,
		pub:       pub,
		queue:     queue,
		sink:      sink,
		logger:    log,
	}
}

// PackedLine is one line of a packing submission
type PackedLine struct {
	ItemID    string `json:"item_id" validate:"required,uuid"`
	ProductID string `json:"product_id" validate:"required,uuid"`
	QtyPacked int    `json:"qty_packed" validate:"required,gt=0"`
}

// BoxSpec describes one physical box of the submission
type BoxSpec struct {
	TrackingNumber string              `json:"tracking_number" validate:"required"`
	Weight         decimal.NullDecimal `json:"weight,omitempty"`
	Dimensions     *string             `json:"dimensions,omitempty"`
}

// BoxAllocation optionally binds a line quantity to a specific box
type BoxAllocation struct {
	BoxNumber int    `json:"box_number" validate:"required,gte=1"`
	ItemID    string `json:"item_id" validate:"required,uuid"`
	Qty       int    `json:"qty" validate:"required,gt=0"`
}

// PackingRequest is the pack_submit input
type PackingRequest struct {
	Lines            []PackedLine    `json:"lines" validate:"required,min=1,dive"`
	DeliveryMode     string          `json:"delivery_mode" validate:"required"`
	BoxCount         int             `json:"box_count" validate:"required,gte=1"`
	Boxes            []BoxSpec       `json:"boxes" validate:"required,min=1,dive"`
	Allocations      []BoxAllocation `json:"allocations,omitempty" validate:"omitempty,dive"`
	ContainsNicotine bool            `json:"contains_nicotine"`
}

// PackingResult is the pack_submit response payload
type PackingResult struct {
	TransferID      string       `json:"transfer_id"`
	ShipmentID      string       `json:"shipment_id"`
	State           domain.State `json:"state"`
	BoxCount        int          `json:"box_count"`
	TrackingNumbers []string     `json:"tracking_numbers"`
	ParcelIDs       []string     `json:"parcel_ids"`
	QtyPackedTotal  int          `json:"qty_packed_total"`
}

// Submit runs one packing submission.
func (s *PackingService) Submit(ctx context.Context, transferID string, req PackingRequest) (*PackingResult, error) {
	start := time.Now()

	mode, err := NormalizeDeliveryMode(req.DeliveryMode)
	if err != nil {
		return nil, err
	}
	if len(req.Boxes) != req.BoxCount {
		return nil, errors.Invariant("INVARIANT_BOX_MISMATCH",
			fmt.Sprintf("box_count is %d but %d tracking numbers were supplied", req.BoxCount, len(req.Boxes)))
	}
	if err := validateAllocations(req); err != nil {
		return nil, err
	}

	carrier := CarrierForMode(mode)
	packedBy := ""
	if a := actor.FromContext(ctx); a != nil {
		packedBy = a.ID
	}

	var (
		result         PackingResult
		startedPacking bool
	)

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		t, err := s.transfers.GetTx(ctx, tx, transferID)
		if err != nil {
			return err
		}

		nextState, err := domain.Next(t.State, domain.ActionPackSubmit)
		if err != nil {
			return err
		}
		// The first submission against an open transfer passes through
		// packing before it lands in packaged.
		startedPacking = t.State == domain.StateOpen

		qtyTotal := 0
		for _, line := range req.Lines {
			item, err := s.transfers.GetItemTx(ctx, tx, transferID, line.ItemID)
			if err != nil {
				return err
			}
			if item.ProductID != line.ProductID {
				return errors.Validation(map[string]string{
					"product_id": "does not match the transfer line",
				})
			}
			if item.QtySent+line.QtyPacked > item.QtyRequested {
				return errors.Invariant("INVARIANT_OVERPACK",
					fmt.Sprintf("packing %d of product %s would exceed the requested %d (already sent %d)",
						line.QtyPacked, item.ProductID, item.QtyRequested, item.QtySent))
			}
			if err := s.transfers.AddItemSent(ctx, tx, item.ID, line.QtyPacked); err != nil {
				return err
			}
			qtyTotal += line.QtyPacked
		}

		shipment := &repository.Shipment{
			TransferID:       transferID,
			DeliveryMode:     mode,
			ContainsNicotine: req.ContainsNicotine,
			PackedBy:         packedBy,
			PackedAt:         time.Now().UTC(),
		}
		if err := s.shipments.Insert(ctx, tx, shipment); err != nil {
			return err
		}

		for _, line := range req.Lines {
			if err := s.shipments.InsertItem(ctx, tx, &repository.ShipmentItem{
				ShipmentID: shipment.ID,
				ItemID:     line.ItemID,
				QtySent:    line.QtyPacked,
			}); err != nil {
				return err
			}
		}

		totalWeight := decimal.Zero
		parcelByBox := make(map[int]string, req.BoxCount)
		tracking := make([]string, 0, req.BoxCount)
		parcelIDs := make([]string, 0, req.BoxCount)

		for i, box := range req.Boxes {
			parcel := &repository.Parcel{
				ShipmentID:     shipment.ID,
				BoxNumber:      i + 1,
				TrackingNumber: box.TrackingNumber,
				Carrier:        carrier,
				Weight:         box.Weight,
				Dimensions:     box.Dimensions,
			}
			if err := s.shipments.InsertParcel(ctx, tx, parcel); err != nil {
				return err
			}
			if box.Weight.Valid {
				totalWeight = totalWeight.Add(box.Weight.Decimal)
			}
			parcelByBox[parcel.BoxNumber] = parcel.ID
			tracking = append(tracking, parcel.TrackingNumber)
			parcelIDs = append(parcelIDs, parcel.ID)

			if err := s.shipments.InsertLabel(ctx, tx, &repository.Label{
				TrackingNumber: parcel.TrackingNumber,
				Carrier:        carrier,
				TransferID:     transferID,
				ShipmentID:     shipment.ID,
				ParcelID:       parcel.ID,
			}); err != nil {
				return err
			}
		}

		for _, alloc := range req.Allocations {
			if err := s.shipments.InsertParcelItem(ctx, tx, &repository.ParcelItem{
				ParcelID: parcelByBox[alloc.BoxNumber],
				ItemID:   alloc.ItemID,
				Qty:      alloc.Qty,
			}); err != nil {
				return err
			}
		}

		if err := s.transfers.UpdateStateCAS(ctx, tx, t, nextState, req.BoxCount, totalWeight); err != nil {
			return err
		}

		result = PackingResult{
			TransferID:      transferID,
			ShipmentID:      shipment.ID,
			State:           t.State,
			BoxCount:        req.BoxCount,
			TrackingNumbers: tracking,
			ParcelIDs:       parcelIDs,
			QtyPackedTotal:  qtyTotal,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitPacked(ctx, &result, mode, packedBy, startedPacking, len(req.Lines), time.Since(start))

	return &result, nil
}

func validateAllocations(req PackingRequest) error {
	if len(req.Allocations) == 0 {
		return nil
	}

	lines := make(map[string]int, len(req.Lines))
	for _, l := range req.Lines {
		lines[l.ItemID] = l.QtyPacked
	}

	allocated := make(map[string]int)
	for _, alloc := range req.Allocations {
		if alloc.BoxNumber > req.BoxCount {
			return errors.Validation(map[string]string{
				"allocations": fmt.Sprintf("box %d does not exist", alloc.BoxNumber),
			})
		}
		if _, ok := lines[alloc.ItemID]; !ok {
			return errors.Validation(map[string]string{
				"allocations": "allocation references an item not in this submission",
			})
		}
		allocated[alloc.ItemID] += alloc.Qty
	}
	for itemID, qty := range allocated {
		if qty > lines[itemID] {
			return errors.Validation(map[string]string{
				"allocations": "allocated quantity exceeds the packed quantity for item " + itemID,
			})
		}
	}
	return nil
}

func (s *PackingService) emitPacked(ctx context.Context, result *PackingResult, mode, packedBy string, startedPacking bool, lineCount int, elapsed time.Duration) {
	if startedPacking {
		s.pub.PublishPackingStarted(ctx, messaging.PackingStartedEvent{
			TransferID: result.TransferID,
			StartedBy:  packedBy,
		})
	}

	s.pub.PublishPackaged(ctx, messaging.TransferPackagedEvent{
		TransferID:      result.TransferID,
		ShipmentID:      result.ShipmentID,
		DeliveryMode:    mode,
		BoxCount:        result.BoxCount,
		TrackingNumbers: result.TrackingNumbers,
		PackedBy:        packedBy,
	})

	entry := &repository.AuditEntry{
		EntityType: "transfer",
		EntityID:   result.TransferID,
		Action:     "transfer.packed",
	}
	meta := fmt.Sprintf(`{"shipment_id":%q,"box_count":%d}`, result.ShipmentID, result.BoxCount)
	entry.Metadata = &meta
	if a := actor.FromContext(ctx); a != nil {
		entry.PerformedBy = &a.ID
		name := a.Name
		entry.PerformedByName = &name
	}
	s.sink.Audit(ctx, entry)

	s.sink.UnifiedEvent(ctx, messaging.UnifiedRecord{
		Kind:       "transfer.packed",
		TransferID: result.TransferID,
		ActorID:    packedBy,
		Payload: map[string]any{
			"shipment_id":   result.ShipmentID,
			"delivery_mode": mode,
		},
	})

	s.sink.Metrics(ctx, messaging.MetricsRecord{
		Operation:  "pack_submit",
		TransferID: result.TransferID,
		ItemCount:  lineCount,
		QtyTotal:   result.QtyPackedTotal,
		ElapsedMS:  elapsed.Milliseconds(),
	})

	if _, err := s.queue.Enqueue(ctx, "packaged", result.TransferID, string(result.State), map[string]any{
		"shipment_id":      result.ShipmentID,
		"delivery_mode":    mode,
		"tracking_numbers": result.TrackingNumbers,
	}); err != nil {
		s.logger.Error().Err(err).Str("transfer_id", result.TransferID).Msg("failed to enqueue packaged sync job")
	}
}
