package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailops/retailops-backend/internal/transfer/repository"
	"github.com/retailops/retailops-backend/pkg/errors"
)

func seedLockTransfer(t *testing.T, ctx context.Context) string {
	t.Helper()
	transfer := suite.Fixtures.Transfer("open")
	suite.SeedTransfer(t, ctx, transfer)
	return transfer.ID
}

func TestPackLockRepository_AcquireAndGet(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewPackLockRepository(suite.DB)
	transferID := seedLockTransfer(t, ctx)

	lock := &repository.PackLock{
		TransferID:  transferID,
		Holder:      uuid.New().String(),
		Fingerprint: "session-abc",
		ExpiresAt:   time.Now().UTC().Add(10 * time.Minute),
	}
	require.NoError(t, repo.Acquire(ctx, lock))
	assert.False(t, lock.AcquiredAt.IsZero())
	assert.False(t, lock.HeartbeatAt.IsZero())

	got, err := repo.Get(ctx, transferID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, lock.Holder, got.Holder)
	assert.Equal(t, "session-abc", got.Fingerprint)
}

func TestPackLockRepository_Acquire_RefusesLiveForeignHold(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewPackLockRepository(suite.DB)
	transferID := seedLockTransfer(t, ctx)

	first := &repository.PackLock{
		TransferID: transferID,
		Holder:     uuid.New().String(),
		ExpiresAt:  time.Now().UTC().Add(10 * time.Minute),
	}
	require.NoError(t, repo.Acquire(ctx, first))

	second := &repository.PackLock{
		TransferID: transferID,
		Holder:     uuid.New().String(),
		ExpiresAt:  time.Now().UTC().Add(10 * time.Minute),
	}
	err := repo.Acquire(ctx, second)
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "CONFLICT", appErr.Code)

	// The original hold is untouched.
	got, err := repo.Get(ctx, transferID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.Holder, got.Holder)
}

func TestPackLockRepository_Acquire_TakesOverExpiredHold(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewPackLockRepository(suite.DB)
	transferID := seedLockTransfer(t, ctx)

	expired := &repository.PackLock{
		TransferID: transferID,
		Holder:     uuid.New().String(),
		ExpiresAt:  time.Now().UTC().Add(-1 * time.Minute),
	}
	require.NoError(t, repo.Acquire(ctx, expired))

	taker := &repository.PackLock{
		TransferID: transferID,
		Holder:     uuid.New().String(),
		ExpiresAt:  time.Now().UTC().Add(10 * time.Minute),
	}
	require.NoError(t, repo.Acquire(ctx, taker))

	got, err := repo.Get(ctx, transferID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, taker.Holder, got.Holder)
}

func TestPackLockRepository_Acquire_RefreshesOwnHold(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewPackLockRepository(suite.DB)
	transferID := seedLockTransfer(t, ctx)
	holder := uuid.New().String()

	lock := &repository.PackLock{
		TransferID: transferID,
		Holder:     holder,
		ExpiresAt:  time.Now().UTC().Add(5 * time.Minute),
	}
	require.NoError(t, repo.Acquire(ctx, lock))

	refreshed := &repository.PackLock{
		TransferID: transferID,
		Holder:     holder,
		ExpiresAt:  time.Now().UTC().Add(30 * time.Minute),
	}
	require.NoError(t, repo.Acquire(ctx, refreshed))

	got, err := repo.Get(ctx, transferID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.WithinDuration(t, refreshed.ExpiresAt, got.ExpiresAt, time.Second)
}

func TestPackLockRepository_Heartbeat(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewPackLockRepository(suite.DB)
	transferID := seedLockTransfer(t, ctx)
	holder := uuid.New().String()

	lock := &repository.PackLock{
		TransferID: transferID,
		Holder:     holder,
		ExpiresAt:  time.Now().UTC().Add(5 * time.Minute),
	}
	require.NoError(t, repo.Acquire(ctx, lock))

	newExpiry := time.Now().UTC().Add(15 * time.Minute)
	require.NoError(t, repo.Heartbeat(ctx, transferID, holder, newExpiry))

	got, err := repo.Get(ctx, transferID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.WithinDuration(t, newExpiry, got.ExpiresAt, time.Second)

	// A stranger cannot extend the hold.
	err = repo.Heartbeat(ctx, transferID, uuid.New().String(), newExpiry)
	require.Error(t, err)

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "CONFLICT", appErr.Code)
}

func TestPackLockRepository_Release(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewPackLockRepository(suite.DB)
	transferID := seedLockTransfer(t, ctx)
	holder := uuid.New().String()

	lock := &repository.PackLock{
		TransferID: transferID,
		Holder:     holder,
		ExpiresAt:  time.Now().UTC().Add(5 * time.Minute),
	}
	require.NoError(t, repo.Acquire(ctx, lock))

	// Someone else's release is a no-op.
	require.NoError(t, repo.Release(ctx, transferID, uuid.New().String()))
	got, err := repo.Get(ctx, transferID)
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NoError(t, repo.Release(ctx, transferID, holder))
	got, err = repo.Get(ctx, transferID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
