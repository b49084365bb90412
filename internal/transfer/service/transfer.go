package service

import (
	"context"

	"github.com/retailops/retailops-backend/internal/transfer/repository"
	"github.com/retailops/retailops-backend/pkg/logger"
)

// TransferService serves the read side: transfer detail, shipment history,
// discrepancies and the audit trail.
type TransferService struct {
	transfers *repository.TransferRepository
	shipments *repository.ShipmentRepository
	receipts  *repository.ReceiptRepository
	audit     *repository.AuditRepository
	logger    *logger.Logger
}

// NewTransferService creates a new transfer read service
func NewTransferService(transfers *repository.TransferRepository, shipments *repository.ShipmentRepository, receipts *repository.ReceiptRepository, audit *repository.AuditRepository, log *logger.Logger) *TransferService {
	return &TransferService{
		transfers: transfers,
		shipments: shipments,
		receipts:  receipts,
		audit:     audit,
		logger:    log,
	}
}

// TransferDetail is a transfer with its active lines
type TransferDetail struct {
	*repository.Transfer
	Items []*repository.TransferItem `json:"items"`
}

// ShipmentDetail is a shipment with its parcels
type ShipmentDetail struct {
	*repository.Shipment
	Parcels []*repository.Parcel `json:"parcels"`
}

// Get returns a transfer and its lines
func (s *TransferService) Get(ctx context.Context, transferID string) (*TransferDetail, error) {
	t, err := s.transfers.Get(ctx, transferID)
	if err != nil {
		return nil, err
	}
	items, err := s.transfers.ListItems(ctx, transferID)
	if err != nil {
		return nil, err
	}
	return &TransferDetail{Transfer: t, Items: items}, nil
}

// Shipments returns a transfer's shipments with their parcels
func (s *TransferService) Shipments(ctx context.Context, transferID string) ([]*ShipmentDetail, error) {
	if _, err := s.transfers.Get(ctx, transferID); err != nil {
		return nil, err
	}

	shipments, err := s.shipments.ListByTransfer(ctx, transferID)
	if err != nil {
		return nil, err
	}

	details := make([]*ShipmentDetail, 0, len(shipments))
	for _, sh := range shipments {
		parcels, err := s.shipments.ListParcels(ctx, sh.ID)
		if err != nil {
			return nil, err
		}
		details = append(details, &ShipmentDetail{Shipment: sh, Parcels: parcels})
	}
	return details, nil
}

// Discrepancies returns a transfer's recorded shortfalls
func (s *TransferService) Discrepancies(ctx context.Context, transferID string) ([]*repository.Discrepancy, error) {
	if _, err := s.transfers.Get(ctx, transferID); err != nil {
		return nil, err
	}
	return s.receipts.ListDiscrepancies(ctx, transferID)
}

// Receipts returns a transfer's receiving submissions
func (s *TransferService) Receipts(ctx context.Context, transferID string) ([]*repository.Receipt, error) {
	if _, err := s.transfers.Get(ctx, transferID); err != nil {
		return nil, err
	}
	return s.receipts.ListByTransfer(ctx, transferID)
}

// AuditTrail returns a page of the transfer's audit history
func (s *TransferService) AuditTrail(ctx context.Context, transferID string, page, perPage int) ([]*repository.AuditEntry, int64, error) {
	if _, err := s.transfers.Get(ctx, transferID); err != nil {
		return nil, 0, err
	}
	return s.audit.ListByEntity(ctx, "transfer", transferID, page, perPage)
}
