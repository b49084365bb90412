package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/retailops/retailops-backend/pkg/database"
)

// Shipment is one packing submission's dispatch record. A transfer may carry
// several shipments when it is packed in parts.
type Shipment struct {
	ID               string     `db:"id" json:"id"`
	TransferID       string     `db:"transfer_id" json:"transfer_id"`
	DeliveryMode     string     `db:"delivery_mode" json:"delivery_mode"` // courier, pickup, dropoff, internal
	Status           string     `db:"status" json:"status"`               // packed, received
	ContainsNicotine bool       `db:"contains_nicotine" json:"contains_nicotine"`
	PackedBy         string     `db:"packed_by" json:"packed_by"`
	PackedAt         time.Time  `db:"packed_at" json:"packed_at"`
	ReceivedAt       *time.Time `db:"received_at" json:"received_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// ShipmentItem mirrors the quantity packed per line in one shipment.
type ShipmentItem struct {
	ID         string `db:"id" json:"id"`
	ShipmentID string `db:"shipment_id" json:"shipment_id"`
	ItemID     string `db:"item_id" json:"item_id"`
	QtySent    int    `db:"qty_sent" json:"qty_sent"`
}

// Parcel is one physically tracked box within a shipment.
type Parcel struct {
	ID             string              `db:"id" json:"id"`
	ShipmentID     string              `db:"shipment_id" json:"shipment_id"`
	BoxNumber      int                 `db:"box_number" json:"box_number"`
	TrackingNumber string              `db:"tracking_number" json:"tracking_number"`
	Carrier        string              `db:"carrier" json:"carrier"`
	Weight         decimal.NullDecimal `db:"weight" json:"weight,omitempty"`
	Dimensions     *string             `db:"dimensions" json:"dimensions,omitempty"` // LxWxH cm, free text
	Status         string              `db:"status" json:"status"`                   // packed, received
	CreatedAt      time.Time           `db:"created_at" json:"created_at"`
}

// ParcelItem is an optional fine-grained allocation of line quantities to a
// specific parcel.
type ParcelItem struct {
	ID          string `db:"id" json:"id"`
	ParcelID    string `db:"parcel_id" json:"parcel_id"`
	ItemID      string `db:"item_id" json:"item_id"`
	Qty         int    `db:"qty" json:"qty"`
	QtyReceived int    `db:"qty_received" json:"qty_received"`
}

// Label is the flat tracking-number registry used for cross-transfer lookup.
type Label struct {
	ID             string    `db:"id" json:"id"`
	TrackingNumber string    `db:"tracking_number" json:"tracking_number"`
	Carrier        string    `db:"carrier" json:"carrier"`
	TransferID     string    `db:"transfer_id" json:"transfer_id"`
	ShipmentID     string    `db:"shipment_id" json:"shipment_id"`
	ParcelID       string    `db:"parcel_id" json:"parcel_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ShipmentRepository handles shipment, parcel and label persistence.
type ShipmentRepository struct {
	db *database.DB
}

// NewShipmentRepository creates a new shipment repository
func NewShipmentRepository(db *database.DB) *ShipmentRepository {
	return &ShipmentRepository{db: db}
}

// Insert inserts a shipment header inside the packing transaction.
func (r *ShipmentRepository) Insert(ctx context.Context, tx *sqlx.Tx, s *Shipment) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Status == "" {
		s.Status = "packed"
	}

	query := `
		INSERT INTO shipments (
			id, transfer_id, delivery_mode, status, contains_nicotine,
			packed_by, packed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	return tx.QueryRowxContext(ctx, query,
		s.ID, s.TransferID, s.DeliveryMode, s.Status, s.ContainsNicotine,
		s.PackedBy, s.PackedAt,
	).Scan(&s.CreatedAt)
}

// InsertItem inserts one shipment line mirror row.
func (r *ShipmentRepository) InsertItem(ctx context.Context, tx *sqlx.Tx, si *ShipmentItem) error {
	if si.ID == "" {
		si.ID = uuid.New().String()
	}

	query := `
		INSERT INTO shipment_items (id, shipment_id, item_id, qty_sent)
		VALUES ($1, $2, $3, $4)
	`
	_, err := tx.ExecContext(ctx, query, si.ID, si.ShipmentID, si.ItemID, si.QtySent)
	return err
}

// InsertParcel inserts one box row.
func (r *ShipmentRepository) InsertParcel(ctx context.Context, tx *sqlx.Tx, p *Parcel) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = "packed"
	}

	query := `
		INSERT INTO parcels (
			id, shipment_id, box_number, tracking_number, carrier,
			weight, dimensions, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	return tx.QueryRowxContext(ctx, query,
		p.ID, p.ShipmentID, p.BoxNumber, p.TrackingNumber, p.Carrier,
		p.Weight, p.Dimensions, p.Status,
	).Scan(&p.CreatedAt)
}

// InsertParcelItem inserts one parcel allocation row.
func (r *ShipmentRepository) InsertParcelItem(ctx context.Context, tx *sqlx.Tx, pi *ParcelItem) error {
	if pi.ID == "" {
		pi.ID = uuid.New().String()
	}

	query := `
		INSERT INTO parcel_items (id, parcel_id, item_id, qty, qty_received)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := tx.ExecContext(ctx, query, pi.ID, pi.ParcelID, pi.ItemID, pi.Qty, pi.QtyReceived)
	return err
}

// InsertLabel mirrors a tracking number into the flat label registry.
func (r *ShipmentRepository) InsertLabel(ctx context.Context, tx *sqlx.Tx, l *Label) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}

	query := `
		INSERT INTO labels (id, tracking_number, carrier, transfer_id, shipment_id, parcel_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := tx.ExecContext(ctx, query,
		l.ID, l.TrackingNumber, l.Carrier, l.TransferID, l.ShipmentID, l.ParcelID)
	return err
}

// MarkReceived bulk-marks every shipment and parcel of a transfer received.
// Called by the receiving engine inside its transaction.
func (r *ShipmentRepository) MarkReceived(ctx context.Context, tx *sqlx.Tx, transferID string, at time.Time) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE shipments SET status = 'received', received_at = $1
		WHERE transfer_id = $2 AND status <> 'received'
	`, at, transferID); err != nil {
		return err
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE parcels SET status = 'received'
		WHERE shipment_id IN (SELECT id FROM shipments WHERE transfer_id = $1)
		  AND status <> 'received'
	`, transferID)
	return err
}

// ListByTransfer returns the shipments of a transfer, newest first.
func (r *ShipmentRepository) ListByTransfer(ctx context.Context, transferID string) ([]*Shipment, error) {
	query := `
		SELECT id, transfer_id, delivery_mode, status, contains_nicotine,
		       packed_by, packed_at, received_at, created_at
		FROM shipments
		WHERE transfer_id = $1
		ORDER BY packed_at DESC
	`
	var shipments []*Shipment
	if err := r.db.SelectContext(ctx, &shipments, query, transferID); err != nil {
		return nil, err
	}
	return shipments, nil
}

// ListParcels returns the parcels of a shipment in box order.
func (r *ShipmentRepository) ListParcels(ctx context.Context, shipmentID string) ([]*Parcel, error) {
	query := `
		SELECT id, shipment_id, box_number, tracking_number, carrier,
		       weight, dimensions, status, created_at
		FROM parcels
		WHERE shipment_id = $1
		ORDER BY box_number
	`
	var parcels []*Parcel
	if err := r.db.SelectContext(ctx, &parcels, query, shipmentID); err != nil {
		return nil, err
	}
	return parcels, nil
}
