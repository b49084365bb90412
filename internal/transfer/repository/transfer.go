package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/retailops/retailops-backend/internal/transfer/domain"
	"github.com/retailops/retailops-backend/pkg/database"
	"github.com/retailops/retailops-backend/pkg/errors"
)

// Transfer represents an inter-location stock transfer. The row is created
// upstream (recommendation/planning) in state open; this service drives it
// through the packing/receiving lifecycle.
type Transfer struct {
	ID               string          `db:"id" json:"id"`
	State            domain.State    `db:"state" json:"state"`
	SourceLocationID string          `db:"source_location_id" json:"source_location_id"`
	DestLocationID   string          `db:"dest_location_id" json:"dest_location_id"`
	TotalBoxes       int             `db:"total_boxes" json:"total_boxes"`
	TotalWeight      decimal.Decimal `db:"total_weight" json:"total_weight"`
	Version          int             `db:"version" json:"version"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
	DeletedAt        *time.Time      `db:"deleted_at" json:"-"`
}

// TransferItem is one requested product line on a transfer.
// Unique per (transfer_id, product_id) among non-deleted rows.
type TransferItem struct {
	ID           string     `db:"id" json:"id"`
	TransferID   string     `db:"transfer_id" json:"transfer_id"`
	ProductID    string     `db:"product_id" json:"product_id"`
	QtyRequested int        `db:"qty_requested" json:"qty_requested"`
	QtySent      int        `db:"qty_sent_total" json:"qty_sent_total"`
	QtyReceived  int        `db:"qty_received_total" json:"qty_received_total"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt    *time.Time `db:"deleted_at" json:"-"`
	CreatedBy    *string    `db:"created_by" json:"created_by,omitempty"`
}

// TransferRepository handles transfer and transfer-item persistence.
// Methods that take a tx run inside the caller's transaction; the engines
// pass the tx opened by database.DB.Transaction.
type TransferRepository struct {
	db *database.DB
}

// NewTransferRepository creates a new transfer repository
func NewTransferRepository(db *database.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

const transferColumns = `
	id, state, source_location_id, dest_location_id,
	total_boxes, total_weight, version, created_at, updated_at, deleted_at
`

// Get loads a transfer by ID, excluding soft-deleted rows.
func (r *TransferRepository) Get(ctx context.Context, id string) (*Transfer, error) {
	return getTransfer(ctx, r.db, id, false)
}

// GetTx loads a transfer inside a transaction, locking the row FOR UPDATE so
// concurrent submissions against the same transfer serialize on it.
func (r *TransferRepository) GetTx(ctx context.Context, tx *sqlx.Tx, id string) (*Transfer, error) {
	return getTransfer(ctx, tx, id, true)
}

func getTransfer(ctx context.Context, q sqlx.QueryerContext, id string, forUpdate bool) (*Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE id = $1 AND deleted_at IS NULL`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var t Transfer
	err := sqlx.GetContext(ctx, q, &t, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("transfer")
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateStateCAS advances the transfer row with a compare-and-swap on the
// version column. Aggregates are added, never overwritten. A zero row count
// means another submission won the race; callers surface a retryable conflict.
func (r *TransferRepository) UpdateStateCAS(ctx context.Context, tx *sqlx.Tx, t *Transfer, newState domain.State, addBoxes int, addWeight decimal.Decimal) error {
	query := `
		UPDATE transfers
		SET state = $1,
		    total_boxes = total_boxes + $2,
		    total_weight = total_weight + $3,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $4 AND version = $5 AND deleted_at IS NULL
	`
	res, err := tx.ExecContext(ctx, query, newState, addBoxes, addWeight, t.ID, t.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Conflict("transfer was modified concurrently, retry the submission")
	}

	t.State = newState
	t.TotalBoxes += addBoxes
	t.TotalWeight = t.TotalWeight.Add(addWeight)
	t.Version++
	return nil
}

// ============================================================================
// TRANSFER ITEMS
// ============================================================================

const itemColumns = `
	id, transfer_id, product_id, qty_requested, qty_sent_total,
	qty_received_total, created_at, updated_at, deleted_at, created_by
`

// ListItems lists the non-deleted lines of a transfer.
func (r *TransferRepository) ListItems(ctx context.Context, transferID string) ([]*TransferItem, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM transfer_items
		WHERE transfer_id = $1 AND deleted_at IS NULL
		ORDER BY created_at
	`
	var items []*TransferItem
	if err := r.db.SelectContext(ctx, &items, query, transferID); err != nil {
		return nil, err
	}
	return items, nil
}

// ListItemsTx lists the non-deleted lines inside a transaction.
func (r *TransferRepository) ListItemsTx(ctx context.Context, tx *sqlx.Tx, transferID string) ([]*TransferItem, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM transfer_items
		WHERE transfer_id = $1 AND deleted_at IS NULL
		ORDER BY created_at
	`
	var items []*TransferItem
	if err := tx.SelectContext(ctx, &items, query, transferID); err != nil {
		return nil, err
	}
	return items, nil
}

// GetItemTx loads one line FOR UPDATE. Both engines read lines through this
// before incrementing totals so the quantity bounds hold under concurrency.
func (r *TransferRepository) GetItemTx(ctx context.Context, tx *sqlx.Tx, transferID, itemID string) (*TransferItem, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM transfer_items
		WHERE id = $1 AND transfer_id = $2 AND deleted_at IS NULL
		FOR UPDATE
	`
	var item TransferItem
	err := tx.GetContext(ctx, &item, query, itemID, transferID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("transfer item")
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GetItemByProductTx loads the non-deleted line for a product FOR UPDATE.
func (r *TransferRepository) GetItemByProductTx(ctx context.Context, tx *sqlx.Tx, transferID, productID string) (*TransferItem, error) {
	query := `
		SELECT ` + itemColumns + `
		FROM transfer_items
		WHERE transfer_id = $1 AND product_id = $2 AND deleted_at IS NULL
		FOR UPDATE
	`
	var item TransferItem
	err := tx.GetContext(ctx, &item, query, transferID, productID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("transfer item")
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// InsertItem inserts a fresh line with zero sent/received totals.
func (r *TransferRepository) InsertItem(ctx context.Context, tx *sqlx.Tx, item *TransferItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	query := `
		INSERT INTO transfer_items (
			id, transfer_id, product_id, qty_requested,
			qty_sent_total, qty_received_total, created_by
		) VALUES ($1, $2, $3, $4, 0, 0, $5)
		RETURNING created_at, updated_at
	`
	return tx.QueryRowxContext(ctx, query,
		item.ID, item.TransferID, item.ProductID, item.QtyRequested, item.CreatedBy,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
}

// MergeItemRequested raises qty_requested to the greater of the stored and
// submitted values. Retried add_line calls are therefore absorbed.
func (r *TransferRepository) MergeItemRequested(ctx context.Context, tx *sqlx.Tx, itemID string, qty int) (int, error) {
	query := `
		UPDATE transfer_items
		SET qty_requested = GREATEST(qty_requested, $1), updated_at = NOW()
		WHERE id = $2 AND deleted_at IS NULL
		RETURNING qty_requested
	`
	var merged int
	if err := tx.QueryRowxContext(ctx, query, qty, itemID).Scan(&merged); err != nil {
		return 0, err
	}
	return merged, nil
}

// SetItemRequested overwrites qty_requested for an existing line.
func (r *TransferRepository) SetItemRequested(ctx context.Context, tx *sqlx.Tx, itemID string, qty int) error {
	query := `
		UPDATE transfer_items
		SET qty_requested = $1, updated_at = NOW()
		WHERE id = $2 AND deleted_at IS NULL
	`
	res, err := tx.ExecContext(ctx, query, qty, itemID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.NotFound("transfer item")
	}
	return nil
}

// SoftDeleteItem marks a line removed. The caller checks the removal guard
// under the FOR UPDATE read first.
func (r *TransferRepository) SoftDeleteItem(ctx context.Context, tx *sqlx.Tx, itemID string) error {
	query := `
		UPDATE transfer_items
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	res, err := tx.ExecContext(ctx, query, itemID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.NotFound("transfer item")
	}
	return nil
}

// AddItemSent increments a line's sent total. The overpack bound was checked
// by the engine under the FOR UPDATE read; the CHECK constraint backs it up.
func (r *TransferRepository) AddItemSent(ctx context.Context, tx *sqlx.Tx, itemID string, qty int) error {
	query := `
		UPDATE transfer_items
		SET qty_sent_total = qty_sent_total + $1, updated_at = NOW()
		WHERE id = $2 AND deleted_at IS NULL
	`
	_, err := tx.ExecContext(ctx, query, qty, itemID)
	return err
}

// AddItemReceived increments a line's received total.
func (r *TransferRepository) AddItemReceived(ctx context.Context, tx *sqlx.Tx, itemID string, qty int) error {
	query := `
		UPDATE transfer_items
		SET qty_received_total = qty_received_total + $1, updated_at = NOW()
		WHERE id = $2 AND deleted_at IS NULL
	`
	_, err := tx.ExecContext(ctx, query, qty, itemID)
	return err
}
