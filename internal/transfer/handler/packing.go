package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/retailops/retailops-backend/internal/transfer/service"
	"github.com/retailops/retailops-backend/pkg/httputil"
	"github.com/retailops/retailops-backend/pkg/logger"
)

// PackingHandler handles the packing submission endpoint. Every submission
// carries a client nonce; a replayed nonce returns the stored first response
// byte for byte without touching the engine.
type PackingHandler struct {
	service *service.PackingService
	ledger  *service.Ledger
	logger  *logger.Logger
}

// NewPackingHandler creates a new packing handler
func NewPackingHandler(svc *service.PackingService, ledger *service.Ledger, log *logger.Logger) *PackingHandler {
	return &PackingHandler{
		service: svc,
		ledger:  ledger,
		logger:  log,
	}
}

type packRequest struct {
	Nonce string `json:"nonce" validate:"required"`
	service.PackingRequest
}

// Submit runs a packing submission
func (h *PackingHandler) Submit(w http.ResponseWriter, r *http.Request) {
	transferID := chi.URLParam(r, "id")

	var req packRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	key, cached, err := h.ledger.Begin(r.Context(), "pack", transferID, req.Nonce)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if cached != nil {
		h.logger.Info().
			Str("transfer_id", transferID).
			Str("nonce", req.Nonce).
			Msg("replaying stored packing response")
		httputil.WriteRaw(w, cached.StatusCode, cached.Body)
		return
	}

	result, err := h.service.Submit(r.Context(), transferID, req.PackingRequest)
	if err != nil {
		status, body := httputil.ErrorEnvelope(err)
		h.ledger.Finish(r.Context(), key, status, body)
		httputil.WriteRaw(w, status, body)
		return
	}

	body, err := httputil.Envelope(http.StatusOK, result)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	h.ledger.Finish(r.Context(), key, http.StatusOK, body)
	httputil.WriteRaw(w, http.StatusOK, body)
}
