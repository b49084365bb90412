package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/retailops/retailops-backend/internal/transfer/service"
	"github.com/retailops/retailops-backend/pkg/errors"
	"github.com/retailops/retailops-backend/pkg/httputil"
	"github.com/retailops/retailops-backend/pkg/logger"
)

// LockHandler handles the pack-lock endpoint. The packing screen drives all
// three mutations through one POST with an op discriminator, plus a GET for
// the current state.
type LockHandler struct {
	service *service.LockService
	logger  *logger.Logger
}

// NewLockHandler creates a new lock handler
func NewLockHandler(svc *service.LockService, log *logger.Logger) *LockHandler {
	return &LockHandler{
		service: svc,
		logger:  log,
	}
}

type lockRequest struct {
	Op          string `json:"op" validate:"required,oneof=acquire heartbeat release"`
	Fingerprint string `json:"fingerprint,omitempty"`
	TTLMinutes  int    `json:"ttl_min,omitempty" validate:"omitempty,gte=0"`
}

// Mutate acquires, heartbeats or releases the lock
func (h *LockHandler) Mutate(w http.ResponseWriter, r *http.Request) {
	transferID := chi.URLParam(r, "id")

	var req lockRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	switch req.Op {
	case "acquire":
		lock, err := h.service.Acquire(r.Context(), transferID, req.Fingerprint, req.TTLMinutes)
		if err != nil {
			httputil.Error(w, err)
			return
		}
		httputil.JSON(w, http.StatusOK, lock)
	case "heartbeat":
		if err := h.service.Heartbeat(r.Context(), transferID, req.TTLMinutes); err != nil {
			httputil.Error(w, err)
			return
		}
		httputil.NoContent(w)
	case "release":
		if err := h.service.Release(r.Context(), transferID); err != nil {
			httputil.Error(w, err)
			return
		}
		httputil.NoContent(w)
	default:
		httputil.Error(w, errors.BadRequest("unknown lock op"))
	}
}

// Status reports the current lock state
func (h *LockHandler) Status(w http.ResponseWriter, r *http.Request) {
	transferID := chi.URLParam(r, "id")

	status, err := h.service.Status(r.Context(), transferID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, status)
}
