package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/retailops/retailops-backend/pkg/database"
	"github.com/retailops/retailops-backend/pkg/errors"
)

// PackLock is the advisory editing lock on a transfer's packing screen.
// One row per transfer; the holder refreshes it by heartbeat and it lapses
// at expires_at. It is a UI signal only; submission correctness comes from
// the optimistic version check in the engines.
type PackLock struct {
	TransferID  string    `db:"transfer_id" json:"transfer_id"`
	Holder      string    `db:"holder" json:"holder"`
	Fingerprint string    `db:"fingerprint" json:"fingerprint"` // browser/session fingerprint, display only
	AcquiredAt  time.Time `db:"acquired_at" json:"acquired_at"`
	HeartbeatAt time.Time `db:"heartbeat_at" json:"heartbeat_at"`
	ExpiresAt   time.Time `db:"expires_at" json:"expires_at"`
}

// PackLockRepository handles advisory pack-lock persistence.
type PackLockRepository struct {
	db *database.DB
}

// NewPackLockRepository creates a new pack lock repository
func NewPackLockRepository(db *database.DB) *PackLockRepository {
	return &PackLockRepository{db: db}
}

// Acquire takes or refreshes the lock in a single atomic upsert. The update
// arm only fires when the caller already holds the lock or the previous
// hold has expired; an unexpired foreign hold is reported as a conflict
// instead of being silently stolen.
func (r *PackLockRepository) Acquire(ctx context.Context, lock *PackLock) error {
	query := `
		INSERT INTO pack_locks (transfer_id, holder, fingerprint, acquired_at, heartbeat_at, expires_at)
		VALUES ($1, $2, $3, NOW(), NOW(), $4)
		ON CONFLICT (transfer_id) DO UPDATE
		SET holder = EXCLUDED.holder,
		    fingerprint = EXCLUDED.fingerprint,
		    acquired_at = NOW(),
		    heartbeat_at = NOW(),
		    expires_at = EXCLUDED.expires_at
		WHERE pack_locks.holder = EXCLUDED.holder
		   OR pack_locks.expires_at < NOW()
		RETURNING acquired_at, heartbeat_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		lock.TransferID, lock.Holder, lock.Fingerprint, lock.ExpiresAt,
	).Scan(&lock.AcquiredAt, &lock.HeartbeatAt)
	if err == sql.ErrNoRows {
		return errors.Conflict("another editor holds the pack lock")
	}
	return err
}

// Heartbeat extends the expiry of an unexpired lock held by holder.
func (r *PackLockRepository) Heartbeat(ctx context.Context, transferID, holder string, expiresAt time.Time) error {
	query := `
		UPDATE pack_locks
		SET heartbeat_at = NOW(), expires_at = $1
		WHERE transfer_id = $2 AND holder = $3 AND expires_at >= NOW()
	`
	res, err := r.db.ExecContext(ctx, query, expiresAt, transferID, holder)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Conflict("lock is not held by this editor")
	}
	return nil
}

// Release deletes the holder's own lock row. Releasing a lock that is not
// held is a no-op.
func (r *PackLockRepository) Release(ctx context.Context, transferID, holder string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM pack_locks WHERE transfer_id = $1 AND holder = $2`,
		transferID, holder)
	return err
}

// Get returns the current lock row for a transfer, or nil if none exists.
func (r *PackLockRepository) Get(ctx context.Context, transferID string) (*PackLock, error) {
	query := `
		SELECT transfer_id, holder, fingerprint, acquired_at, heartbeat_at, expires_at
		FROM pack_locks
		WHERE transfer_id = $1
	`
	var lock PackLock
	err := r.db.GetContext(ctx, &lock, query, transferID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lock, nil
}
