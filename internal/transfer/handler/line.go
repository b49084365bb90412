package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/retailops/retailops-backend/internal/transfer/service"
	"github.com/retailops/retailops-backend/pkg/httputil"
	"github.com/retailops/retailops-backend/pkg/logger"
)

// LineHandler handles line item endpoints. Adding a line is idempotent per
// nonce; the upsert-by-product merge additionally absorbs double-clicks that
// arrive under distinct nonces.
type LineHandler struct {
	service *service.LineService
	ledger  *service.Ledger
	logger  *logger.Logger
}

// NewLineHandler creates a new line handler
func NewLineHandler(svc *service.LineService, ledger *service.Ledger, log *logger.Logger) *LineHandler {
	return &LineHandler{
		service: svc,
		ledger:  ledger,
		logger:  log,
	}
}

type addLineRequest struct {
	Nonce string `json:"nonce" validate:"required"`
	service.AddLineRequest
}

// Add adds or merges a requested line
func (h *LineHandler) Add(w http.ResponseWriter, r *http.Request) {
	transferID := chi.URLParam(r, "id")

	var req addLineRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	key, cached, err := h.ledger.Begin(r.Context(), "add_line", transferID, req.Nonce)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	if cached != nil {
		httputil.WriteRaw(w, cached.StatusCode, cached.Body)
		return
	}

	item, err := h.service.AddLine(r.Context(), transferID, req.AddLineRequest)
	if err != nil {
		status, body := httputil.ErrorEnvelope(err)
		h.ledger.Finish(r.Context(), key, status, body)
		httputil.WriteRaw(w, status, body)
		return
	}

	body, err := httputil.Envelope(http.StatusCreated, item)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	h.ledger.Finish(r.Context(), key, http.StatusCreated, body)
	httputil.WriteRaw(w, http.StatusCreated, body)
}

// UpdateQty overwrites a line's requested quantity
func (h *LineHandler) UpdateQty(w http.ResponseWriter, r *http.Request) {
	transferID := chi.URLParam(r, "id")
	itemID := chi.URLParam(r, "itemId")

	var req service.UpdateLineQtyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	item, err := h.service.UpdateLineQty(r.Context(), transferID, itemID, req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, item)
}

// Remove soft-deletes a line that has no packed or received quantity
func (h *LineHandler) Remove(w http.ResponseWriter, r *http.Request) {
	transferID := chi.URLParam(r, "id")
	itemID := chi.URLParam(r, "itemId")

	if err := h.service.RemoveLine(r.Context(), transferID, itemID); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}
