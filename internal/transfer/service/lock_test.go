package service_test

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailops/retailops-backend/internal/transfer/repository"
	"github.com/retailops/retailops-backend/internal/transfer/service"
	"github.com/retailops/retailops-backend/pkg/config"
	"github.com/retailops/retailops-backend/pkg/errors"
)

var lockCols = []string{"transfer_id", "holder", "fingerprint", "acquired_at", "heartbeat_at", "expires_at"}

func newLockService(d *engineDeps) *service.LockService {
	return service.NewLockService(
		repository.NewPackLockRepository(d.db),
		config.LockConfig{DefaultTTL: 10 * time.Minute, MaxTTL: 2 * time.Hour},
		d.log,
	)
}

// expiresBetween matches a time argument inside [min, max]
type expiresBetween struct {
	min, max time.Time
}

func (m expiresBetween) Match(v driver.Value) bool {
	ts, ok := v.(time.Time)
	if !ok {
		return false
	}
	return !ts.Before(m.min) && !ts.After(m.max)
}

func TestLockService_Acquire_Success(t *testing.T) {
	d := newEngineDeps(t)
	defer d.cleanup(t)
	svc := newLockService(d)

	transferID := uuid.New().String()
	holderID := uuid.New().String()
	now := time.Now().UTC()

	d.mock.ExpectQuery("INSERT INTO pack_locks").
		WillReturnRows(sqlmock.NewRows([]string{"acquired_at", "heartbeat_at"}).AddRow(now, now))

	lock, err := svc.Acquire(actorContext(holderID, "Packer"), transferID, "fp-1", 0)
	require.NoError(t, err)

	assert.Equal(t, transferID, lock.TransferID)
	assert.Equal(t, holderID, lock.Holder)
	assert.Equal(t, "fp-1", lock.Fingerprint)
	// Default TTL applies when the caller asks for none
	assert.WithinDuration(t, now.Add(10*time.Minute), lock.ExpiresAt, 5*time.Second)
}

func TestLockService_Acquire_ClampsTTL(t *testing.T) {
	d := newEngineDeps(t)
	defer d.cleanup(t)
	svc := newLockService(d)

	transferID := uuid.New().String()
	now := time.Now().UTC()

	// 600 minutes requested, clamped to the 2 hour maximum
	d.mock.Mock.ExpectQuery("INSERT INTO pack_locks").
		WithArgs(transferID, sqlmock.AnyArg(), "fp-1",
			expiresBetween{min: now.Add(2*time.Hour - 5*time.Second), max: now.Add(2*time.Hour + 5*time.Second)}).
		WillReturnRows(sqlmock.NewRows([]string{"acquired_at", "heartbeat_at"}).AddRow(now, now))

	_, err := svc.Acquire(actorContext(uuid.New().String(), "Packer"), transferID, "fp-1", 600)
	require.NoError(t, err)
}

func TestLockService_Acquire_HeldByAnotherEditor(t *testing.T) {
	d := newEngineDeps(t)
	defer d.cleanup(t)
	svc := newLockService(d)

	// Guarded upsert matches no row: foreign unexpired hold
	d.mock.ExpectQuery("INSERT INTO pack_locks").
		WillReturnRows(sqlmock.NewRows([]string{"acquired_at", "heartbeat_at"}))

	_, err := svc.Acquire(actorContext(uuid.New().String(), "Packer"), uuid.New().String(), "fp-2", 0)
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "CONFLICT", appErr.Code)
	assert.Equal(t, 409, appErr.StatusCode)
}

func TestLockService_Acquire_NoActor(t *testing.T) {
	d := newEngineDeps(t)
	defer d.cleanup(t)
	svc := newLockService(d)

	_, err := svc.Acquire(context.Background(), uuid.New().String(), "fp", 0)
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "FORBIDDEN", appErr.Code)
}

func TestLockService_Heartbeat_NotHeld(t *testing.T) {
	d := newEngineDeps(t)
	defer d.cleanup(t)
	svc := newLockService(d)

	d.mock.ExpectExec("UPDATE pack_locks").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := svc.Heartbeat(actorContext(uuid.New().String(), "Packer"), uuid.New().String(), 0)
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "CONFLICT", appErr.Code)
}

func TestLockService_Status(t *testing.T) {
	holderID := uuid.New().String()
	transferID := uuid.New().String()
	now := time.Now().UTC()

	t.Run("no lock row reads unlocked", func(t *testing.T) {
		d := newEngineDeps(t)
		defer d.cleanup(t)
		svc := newLockService(d)

		d.mock.ExpectQuery("FROM pack_locks").
			WillReturnRows(sqlmock.NewRows(lockCols))

		status, err := svc.Status(context.Background(), transferID)
		require.NoError(t, err)
		assert.False(t, status.Locked)
	})

	t.Run("expired lock reads unlocked", func(t *testing.T) {
		d := newEngineDeps(t)
		defer d.cleanup(t)
		svc := newLockService(d)

		d.mock.ExpectQuery("FROM pack_locks").
			WillReturnRows(sqlmock.NewRows(lockCols).
				AddRow(transferID, holderID, "fp", now.Add(-time.Hour), now.Add(-30*time.Minute), now.Add(-time.Minute)))

		status, err := svc.Status(context.Background(), transferID)
		require.NoError(t, err)
		assert.False(t, status.Locked)
	})

	t.Run("own live lock reads mine", func(t *testing.T) {
		d := newEngineDeps(t)
		defer d.cleanup(t)
		svc := newLockService(d)

		d.mock.ExpectQuery("FROM pack_locks").
			WillReturnRows(sqlmock.NewRows(lockCols).
				AddRow(transferID, holderID, "fp", now, now, now.Add(10*time.Minute)))

		status, err := svc.Status(actorContext(holderID, "Packer"), transferID)
		require.NoError(t, err)
		assert.True(t, status.Locked)
		assert.True(t, status.Mine)
		assert.Equal(t, holderID, status.Holder)
	})

	t.Run("foreign live lock reads locked", func(t *testing.T) {
		d := newEngineDeps(t)
		defer d.cleanup(t)
		svc := newLockService(d)

		d.mock.ExpectQuery("FROM pack_locks").
			WillReturnRows(sqlmock.NewRows(lockCols).
				AddRow(transferID, holderID, "fp", now, now, now.Add(10*time.Minute)))

		status, err := svc.Status(actorContext(uuid.New().String(), "Other"), transferID)
		require.NoError(t, err)
		assert.True(t, status.Locked)
		assert.False(t, status.Mine)
	})
}
