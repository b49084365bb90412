package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailops/retailops-backend/internal/transfer/handler"
	"github.com/retailops/retailops-backend/internal/transfer/repository"
	"github.com/retailops/retailops-backend/internal/transfer/service"
	"github.com/retailops/retailops-backend/pkg/config"
	"github.com/retailops/retailops-backend/pkg/httputil"
)

func newLockRouter(d *handlerDeps) *chi.Mux {
	svc := service.NewLockService(
		repository.NewPackLockRepository(d.db),
		config.LockConfig{DefaultTTL: 10 * time.Minute, MaxTTL: 2 * time.Hour},
		d.log,
	)
	h := handler.NewLockHandler(svc, d.log)

	r := chi.NewRouter()
	r.Use(withActor)
	r.Get("/api/v1/transfers/{id}/lock", h.Status)
	r.Post("/api/v1/transfers/{id}/lock", h.Mutate)
	return r
}

func TestLockMutate_UnknownOp(t *testing.T) {
	d := newHandlerDeps(t)
	r := newLockRouter(d)
	transferID := uuid.New().String()

	rr := postJSON(t, r, "/api/v1/transfers/"+transferID+"/lock", map[string]any{
		"op": "steal",
	})

	assert.Equal(t, http.StatusBadRequest, rr.Code, "Body: %s", rr.Body.String())

	var resp httputil.Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	d.mock.ExpectationsWereMet(t)
}

func TestLockMutate_Release(t *testing.T) {
	d := newHandlerDeps(t)
	r := newLockRouter(d)
	transferID := uuid.New().String()

	d.mock.Mock.ExpectExec("DELETE FROM pack_locks").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rr := postJSON(t, r, "/api/v1/transfers/"+transferID+"/lock", map[string]any{
		"op": "release",
	})

	assert.Equal(t, http.StatusNoContent, rr.Code, "Body: %s", rr.Body.String())
	d.mock.ExpectationsWereMet(t)
}

func TestLockStatus_Unlocked(t *testing.T) {
	d := newHandlerDeps(t)
	r := newLockRouter(d)
	transferID := uuid.New().String()

	d.mock.Mock.ExpectQuery("FROM pack_locks").
		WillReturnRows(sqlmock.NewRows(
			[]string{"transfer_id", "holder", "fingerprint", "acquired_at", "heartbeat_at", "expires_at"},
		))

	req := httptest.NewRequest("GET", "/api/v1/transfers/"+transferID+"/lock", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code, "Body: %s", rr.Body.String())

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Locked bool `json:"locked"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.False(t, resp.Data.Locked)
	d.mock.ExpectationsWereMet(t)
}
