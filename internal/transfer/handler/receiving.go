package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/retailops/retailops-backend/internal/transfer/service"
	"github.com/retailops/retailops-backend/pkg/httputil"
	"github.com/retailops/retailops-backend/pkg/logger"
)

// ReceivingHandler handles the receiving submission endpoint, with the same
// nonce replay contract as packing.
type ReceivingHandler struct {
	service *service.ReceivingService
	ledger  *service.Ledger
	logger  *logger.Logger
}

// NewReceivingHandler creates a new receiving handler
func NewReceivingHandler(svc *service.ReceivingService, ledger *service.Ledger, log *logger.Logger) *ReceivingHandler {
	return &ReceivingHandler{
		service: svc,
		ledger:  ledger,
		logger:  log,
	}
}

type receiveRequest struct {
	Nonce string `json:"nonce" validate:"required"`
	service.ReceivingRequest
}

// Submit runs a receiving submission
func (h *ReceivingHandler) Submit(w http.ResponseWriter, r *http.Request) {
	transferID := chi.URLParam(r, "id")

	var req receiveRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	key, cached, err := h.ledger.Begin(r.Context(), "receive", transferID, req.Nonce)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if cached != nil {
		h.logger.Info().
			Str("transfer_id", transferID).
			Str("nonce", req.Nonce).
			Msg("replaying stored receiving response")
		httputil.WriteRaw(w, cached.StatusCode, cached.Body)
		return
	}

	result, err := h.service.Submit(r.Context(), transferID, req.ReceivingRequest)
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
