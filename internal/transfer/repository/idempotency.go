package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/retailops/retailops-backend/pkg/database"
	"github.com/retailops/retailops-backend/pkg/errors"
)

// IdempotencyRecord maps a caller-stable key to the canonical response of
// the call that first carried it. Each key is written once (reserved
// pending, then completed) and read many times.
type IdempotencyRecord struct {
	Key          string    `db:"key" json:"key"`
	Status       string    `db:"status" json:"status"` // pending, completed
	StatusCode   int       `db:"status_code" json:"status_code"`
	ResponseBody []byte    `db:"response_body" json:"response_body"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// IdempotencyKey derives the ledger key from the action, transfer and the
// caller-supplied nonce. The nonce is mandatory: minting a random one here
// would defeat dedupe for exactly the retries the ledger exists to absorb.
func IdempotencyKey(action, transferID, nonce string) string {
	return fmt.Sprintf("%s:%s:%s", action, transferID, nonce)
}

// ErrInFlight is returned by Begin when the key is reserved but its call has
// not finished yet.
var ErrInFlight = errors.New("IDEMPOTENCY_IN_FLIGHT",
	"a request with this key is still in flight", 409)

// IdempotencyRepository is the dedupe ledger behind the submission handlers.
type IdempotencyRepository struct {
	db *database.DB
}

// NewIdempotencyRepository creates a new idempotency repository
func NewIdempotencyRepository(db *database.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

// Begin reserves the key. Returns (nil, nil) when the key is fresh and the
// caller should run the operation; returns the stored record when a previous
// call completed under this key; returns ErrInFlight when a concurrent call
// holds the reservation.
func (r *IdempotencyRepository) Begin(ctx context.Context, key string) (*IdempotencyRecord, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO idempotency_records (key, status)
		VALUES ($1, 'pending')
		ON CONFLICT (key) DO NOTHING
	`, key)
	if err != nil {
		return nil, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 1 {
		// Fresh reservation, caller proceeds with side effects.
		return nil, nil
	}

	var rec IdempotencyRecord
	err = r.db.GetContext(ctx, &rec, `
		SELECT key, status, status_code, response_body, created_at
		FROM idempotency_records
		WHERE key = $1
	`, key)
	if err == sql.ErrNoRows {
		// Reservation raced with a cleanup; treat as in flight and let the
		// caller retry.
		return nil, ErrInFlight
	}
	if err != nil {
		return nil, err
	}

	if rec.Status == "pending" {
		return nil, ErrInFlight
	}
	return &rec, nil
}

// Finish completes the reservation with the canonical response, success or
// failure. The status guard keeps the record write-once.
func (r *IdempotencyRepository) Finish(ctx context.Context, key string, statusCode int, body []byte) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE idempotency_records
		SET status = 'completed', status_code = $1, response_body = $2
		WHERE key = $3 AND status = 'pending'
	`, statusCode, body, key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Conflict("idempotency record already completed")
	}
	return nil
}
