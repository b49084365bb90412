package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/retailops/retailops-backend/pkg/database"
)

// Receipt is one receiving submission's record against a transfer.
type Receipt struct {
	ID         string    `db:"id" json:"id"`
	TransferID string    `db:"transfer_id" json:"transfer_id"`
	ReceivedBy string    `db:"received_by" json:"received_by"`
	ReceivedAt time.Time `db:"received_at" json:"received_at"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ReceiptItem records the quantity and condition counted for one line.
type ReceiptItem struct {
	ID             string  `db:"id" json:"id"`
	ReceiptID      string  `db:"receipt_id" json:"receipt_id"`
	TransferItemID string  `db:"transfer_item_id" json:"transfer_item_id"`
	QtyReceived    int     `db:"qty_received" json:"qty_received"`
	Condition      string  `db:"condition" json:"condition"` // good, damaged, expired
	Notes          *string `db:"notes" json:"notes,omitempty"`
}

// Discrepancy is a recorded shortfall between sent and received quantity.
// Created only by the receiving engine and never deleted by this service.
type Discrepancy struct {
	ID         string    `db:"id" json:"id"`
	TransferID string    `db:"transfer_id" json:"transfer_id"`
	ItemID     string    `db:"item_id" json:"item_id"`
	Type       string    `db:"type" json:"type"` // missing
	Qty        int       `db:"qty" json:"qty"`
	Status     string    `db:"status" json:"status"` // open, resolved
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ReceiptRepository handles receipt and discrepancy persistence.
type ReceiptRepository struct {
	db *database.DB
}

// NewReceiptRepository creates a new receipt repository
func NewReceiptRepository(db *database.DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

// Insert inserts a receipt header inside the receiving transaction.
func (r *ReceiptRepository) Insert(ctx context.Context, tx *sqlx.Tx, rc *Receipt) error {
	if rc.ID == "" {
		rc.ID = uuid.New().String()
	}

	query := `
		INSERT INTO receipts (id, transfer_id, received_by, received_at)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	return tx.QueryRowxContext(ctx, query,
		rc.ID, rc.TransferID, rc.ReceivedBy, rc.ReceivedAt,
	).Scan(&rc.CreatedAt)
}

// InsertItem inserts one receipt line row.
func (r *ReceiptRepository) InsertItem(ctx context.Context, tx *sqlx.Tx, ri *ReceiptItem) error {
	if ri.ID == "" {
		ri.ID = uuid.New().String()
	}
	if ri.Condition == "" {
		ri.Condition = "good"
	}

	query := `
		INSERT INTO receipt_items (id, receipt_id, transfer_item_id, qty_received, condition, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := tx.ExecContext(ctx, query,
		ri.ID, ri.ReceiptID, ri.TransferItemID, ri.QtyReceived, ri.Condition, ri.Notes)
	return err
}

// InsertDiscrepancy records one shortfall for one line.
func (r *ReceiptRepository) InsertDiscrepancy(ctx context.Context, tx *sqlx.Tx, d *Discrepancy) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.Status == "" {
		d.Status = "open"
	}

	query := `
		INSERT INTO discrepancies (id, transfer_id, item_id, type, qty, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	return tx.QueryRowxContext(ctx, query,
		d.ID, d.TransferID, d.ItemID, d.Type, d.Qty, d.Status,
	).Scan(&d.CreatedAt)
}

// ListDiscrepancies lists a transfer's discrepancies, newest first.
func (r *ReceiptRepository) ListDiscrepancies(ctx context.Context, transferID string) ([]*Discrepancy, error) {
	query := `
		SELECT id, transfer_id, item_id, type, qty, status, created_at
		FROM discrepancies
		WHERE transfer_id = $1
		ORDER BY created_at DESC
	`
	var ds []*Discrepancy
	if err := r.db.SelectContext(ctx, &ds, query, transferID); err != nil {
		return nil, err
	}
	return ds, nil
}

// ListByTransfer lists a transfer's receipts, newest first.
func (r *ReceiptRepository) ListByTransfer(ctx context.Context, transferID string) ([]*Receipt, error) {
	query := `
		SELECT id, transfer_id, received_by, received_at, created_at
		FROM receipts
		WHERE transfer_id = $1
		ORDER BY received_at DESC
	`
	var rs []*Receipt
	if err := r.db.SelectContext(ctx, &rs, query, transferID); err != nil {
		return nil, err
	}
	return rs, nil
}
