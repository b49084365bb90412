package service

import (
	"context"
	"time"

	"github.com/retailops/retailops-backend/internal/transfer/repository"
	"github.com/retailops/retailops-backend/pkg/actor"
	"github.com/retailops/retailops-backend/pkg/config"
	"github.com/retailops/retailops-backend/pkg/errors"
	"github.com/retailops/retailops-backend/pkg/logger"
)

// LockService manages the advisory pack lock. It never blocks a submission;
// the engines rely on the version check for correctness and the lock exists
// only to warn a second editor before they do throwaway work.
type LockService struct {
	locks  *repository.PackLockRepository
	cfg    config.LockConfig
	logger *logger.Logger
}

// NewLockService creates a new lock service
func NewLockService(locks *repository.PackLockRepository, cfg config.LockConfig, log *logger.Logger) *LockService {
	return &LockService{locks: locks, cfg: cfg, logger: log}
}

// LockStatus is the lock state reported to the packing screen
type LockStatus struct {
	Locked      bool       `json:"locked"`
	Mine        bool       `json:"mine,omitempty"`
	Holder      string     `json:"holder,omitempty"`
	Fingerprint string     `json:"fingerprint,omitempty"`
	AcquiredAt  *time.Time `json:"acquired_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// ttl clamps a caller-requested TTL in minutes to the configured bounds.
// Zero means the default.
func (s *LockService) ttl(minutes int) time.Duration {
	if minutes <= 0 {
		return s.cfg.DefaultTTL
	}
	d := time.Duration(minutes) * time.Minute
	if d > s.cfg.MaxTTL {
		return s.cfg.MaxTTL
	}
	return d
}

// Acquire takes or refreshes the lock for the calling actor.
func (s *LockService) Acquire(ctx context.Context, transferID, fingerprint string, ttlMinutes int) (*repository.PackLock, error) {
	a := actor.FromContext(ctx)
	if a == nil {
		return nil, errors.Forbidden("no authenticated actor")
	}

	lock := &repository.PackLock{
		TransferID:  transferID,
		Holder:      a.ID,
		Fingerprint: fingerprint,
		ExpiresAt:   time.Now().UTC().Add(s.ttl(ttlMinutes)),
	}
	if err := s.locks.Acquire(ctx, lock); err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("transfer_id", transferID).
		Str("holder", a.ID).
		Time("expires_at", lock.ExpiresAt).
		Msg("pack lock acquired")
	return lock, nil
}

// Heartbeat extends the calling actor's hold.
func (s *LockService) Heartbeat(ctx context.Context, transferID string, ttlMinutes int) error {
	a := actor.FromContext(ctx)
	if a == nil {
		return errors.Forbidden("no authenticated actor")
	}
	return s.locks.Heartbeat(ctx, transferID, a.ID, time.Now().UTC().Add(s.ttl(ttlMinutes)))
}

// Release drops the calling actor's hold. Releasing a lock held by someone
// else, or no lock at all, succeeds silently.
func (s *LockService) Release(ctx context.Context, transferID string) error {
	a := actor.FromContext(ctx)
	if a == nil {
		return errors.Forbidden("no authenticated actor")
	}
	return s.locks.Release(ctx, transferID, a.ID)
}

// Status reports the current hold. An expired row reads as unlocked.
func (s *LockService) Status(ctx context.Context, transferID string) (*LockStatus, error) {
	lock, err := s.locks.Get(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if lock == nil || lock.ExpiresAt.Before(time.Now().UTC()) {
		return &LockStatus{Locked: false}, nil
	}

	status := &LockStatus{
		Locked:      true,
		Holder:      lock.Holder,
		Fingerprint: lock.Fingerprint,
		AcquiredAt:  &lock.AcquiredAt,
		ExpiresAt:   &lock.ExpiresAt,
	}
	if a := actor.FromContext(ctx); a != nil && a.ID == lock.Holder {
		status.Mine = true
	}
	return status, nil
}
