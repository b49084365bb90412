package service

import (
	"context"
	"encoding/json"

	"github.com/retailops/retailops-backend/internal/transfer/repository"
	"github.com/retailops/retailops-backend/pkg/errors"
	"github.com/retailops/retailops-backend/pkg/logger"
)

// CachedResponse is a previously computed response replayed verbatim for a
// retried key.
type CachedResponse struct {
	StatusCode int
	Body       json.RawMessage
}

// Ledger wraps the idempotency repository for the submission handlers.
// For a fixed (action, transfer, nonce) key every caller observes one
// canonical response, however often the call is retried.
type Ledger struct {
	repo   *repository.IdempotencyRepository
	logger *logger.Logger
}

// NewLedger creates a new idempotency ledger
func NewLedger(repo *repository.IdempotencyRepository, log *logger.Logger) *Ledger {
	return &Ledger{
		repo:   repo,
		logger: log,
	}
}

// Begin reserves the key for this call. A nil cached response means the
// caller must run the operation and Finish the key; a non-nil response is
// replayed and the caller skips all side effects.
func (l *Ledger) Begin(ctx context.Context, action, transferID, nonce string) (string, *CachedResponse, error) {
	if nonce == "" {
		return "", nil, errors.Validation(map[string]string{
			"nonce": "this field is required",
		})
	}

	key := repository.IdempotencyKey(action, transferID, nonce)

	rec, err := l.repo.Begin(ctx, key)
	if err != nil {
		return "", nil, err
	}
	if rec == nil {
		return key, nil, nil
	}

	l.logger.Debug().
		Str("key", key).
		Int("status_code", rec.StatusCode).
		Msg("idempotent replay")

	return key, &CachedResponse{
		StatusCode: rec.StatusCode,
		Body:       rec.ResponseBody,
	}, nil
}

// Finish stores the canonical response under the key, success or failure.
// A failed store is logged, not surfaced: the submission itself already
// completed and the client gets its response either way.
func (l *Ledger) Finish(ctx context.Context, key string, statusCode int, body []byte) {
	if key == "" {
		return
	}
	if err := l.repo.Finish(ctx, key, statusCode, body); err != nil {
		l.logger.Error().Err(err).Str("key", key).Msg("failed to finish idempotency record")
	}
}
