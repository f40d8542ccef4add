package handler

import (
	"net/http"
	"time"

	"github.com/cafeflow/cafeflow-backend/internal/stock/domain"
	"github.com/cafeflow/cafeflow-backend/internal/stock/service"
	"github.com/cafeflow/cafeflow-backend/pkg/actor"
	"github.com/cafeflow/cafeflow-backend/pkg/httputil"
	"github.com/cafeflow/cafeflow-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// BatchHandler handles batch receiving endpoints
type BatchHandler struct {
	service *service.AdjustmentService
	logger  *logger.Logger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(svc *service.AdjustmentService, log *logger.Logger) *BatchHandler {
	return &BatchHandler{
		service: svc,
		logger:  log,
	}
}

// Receive books a delivery as a new batch for an ingredient
func (h *BatchHandler) Receive(w http.ResponseWriter, r *http.Request) {
	ingredientID := chi.URLParam(r, "id")

	var req struct {
		Quantity     decimal.Decimal `json:"quantity"`
		CostPerUnit  decimal.Decimal `json:"cost_per_unit"`
		ExpiryDate   *time.Time      `json:"expiry_date,omitempty"`
		ReceivedDate *time.Time      `json:"received_date,omitempty"`
		Reference    string          `json:"reference,omitempty"`
		Notes        string          `json:"notes,omitempty"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	addReq := service.AddStockRequest{
		IngredientID:  ingredientID,
		Quantity:      req.Quantity,
		CostPerUnit:   req.CostPerUnit,
		ExpiryDate:    req.ExpiryDate,
		Reference:     req.Reference,
		ReferenceType: domain.ReferenceManual,
		Notes:         req.Notes,
		PerformedBy:   actor.PerformedBy(r.Context()),
	}
	if req.ReceivedDate != nil {
		addReq.ReceivedDate = *req.ReceivedDate
	}

	result, err := h.service.AddStock(r.Context(), addReq)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, result)
}
