package errors_test

import (
	"net/http"
	"testing"

	"github.com/retailops/retailops-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors_StatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    *errors.AppError
		code   string
		status int
	}{
		{"not found", errors.NotFound("transfer"), "NOT_FOUND", http.StatusNotFound},
		{"bad request", errors.BadRequest("missing nonce"), "BAD_REQUEST", http.StatusBadRequest},
		{"conflict", errors.Conflict("version changed"), "CONFLICT", http.StatusConflict},
		{"state", errors.State("transfer is received"), "STATE_ERROR", http.StatusConflict},
		{"invariant", errors.Invariant("INVARIANT_OVERPACK", "packed exceeds requested"), "INVARIANT_OVERPACK", http.StatusUnprocessableEntity},
		{"internal", errors.Internal("tx failed"), "INTERNAL_ERROR", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.StatusCode)
		})
	}
}

func TestValidation_CarriesDetails(t *testing.T) {
	err := errors.Validation(map[string]string{"box_count": "must be at least 1"})
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Equal(t, "must be at least 1", err.Details["box_count"])
}

func TestIs_MatchesSentinels(t *testing.T) {
	assert.True(t, errors.Is(errors.State("no"), errors.ErrState))
	assert.True(t, errors.Is(errors.Invariant("INVARIANT_OVERPACK", "no"), errors.ErrInvariant))
	assert.False(t, errors.Is(errors.State("no"), errors.ErrInvariant))
}

func TestAs_UnwrapsAppError(t *testing.T) {
	var appErr *errors.AppError
	wrapped := errors.Wrap(errors.ErrInternal, "STORE_ERROR", "commit failed", http.StatusInternalServerError)
	require.True(t, errors.As(wrapped, &appErr))
	assert.Equal(t, "STORE_ERROR", appErr.Code)
	assert.Equal(t, "commit failed: internal server error", appErr.Error())
}
