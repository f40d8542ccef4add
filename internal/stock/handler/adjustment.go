package handler

import (
	"net/http"

	"github.com/cafeflow/cafeflow-backend/internal/stock/domain"
	"github.com/cafeflow/cafeflow-backend/internal/stock/service"
	"github.com/cafeflow/cafeflow-backend/pkg/actor"
	"github.com/cafeflow/cafeflow-backend/pkg/httputil"
	"github.com/cafeflow/cafeflow-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// AdjustmentHandler handles manual stock correction endpoints
type AdjustmentHandler struct {
	service *service.AdjustmentService
	logger  *logger.Logger
}

// NewAdjustmentHandler creates a new adjustment handler
func NewAdjustmentHandler(svc *service.AdjustmentService, log *logger.Logger) *AdjustmentHandler {
	return &AdjustmentHandler{
		service: svc,
		logger:  log,
	}
}

// Adjust applies a manual stock correction. Upward corrections create a new
// batch; downward corrections run through the deduction engine.
func (h *AdjustmentHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IngredientID string          `json:"ingredient_id" validate:"required"`
		Direction    string          `json:"direction" validate:"required,oneof=add deduct"`
		Quantity     decimal.Decimal `json:"quantity"`
		CostPerUnit  decimal.Decimal `json:"cost_per_unit,omitempty"`
		Policy       string          `json:"policy,omitempty" validate:"omitempty,oneof=fifo lifo specific_batch"`
		BatchIDs     []string        `json:"batch_ids,omitempty"`
		Reference    string          `json:"reference,omitempty"`
		Notes        string          `json:"notes,omitempty"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	performedBy := actor.PerformedBy(r.Context())

	if req.Direction == "add" {
		result, err := h.service.AddStock(r.Context(), service.AddStockRequest{
			IngredientID:  req.IngredientID,
			Quantity:      req.Quantity,
			CostPerUnit:   req.CostPerUnit,
			Reference:     req.Reference,
			ReferenceType: domain.ReferenceManual,
			Notes:         req.Notes,
			PerformedBy:   performedBy,
		})
		if err != nil {
			httputil.Error(w, err)
			return
		}
		httputil.JSON(w, http.StatusOK, result)
		return
	}

	result, err := h.service.DeductStock(r.Context(), service.DeductStockRequest{
		IngredientID: req.IngredientID,
		Quantity:     req.Quantity,
		Policy:       domain.AllocationPolicy(req.Policy),
		BatchIDs:     req.BatchIDs,
		Reference:    req.Reference,
		Notes:        req.Notes,
		PerformedBy:  performedBy,
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// RecordWaste writes off spoiled or discarded stock
func (h *AdjustmentHandler) RecordWaste(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IngredientID string          `json:"ingredient_id" validate:"required"`
		Quantity     decimal.Decimal `json:"quantity"`
		Reason       string          `json:"reason" validate:"required"`
		Reference    string          `json:"reference,omitempty"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.RecordWaste(r.Context(), service.WasteRequest{
		IngredientID: req.IngredientID,
		Quantity:     req.Quantity,
		Reason:       req.Reason,
		Reference:    req.Reference,
		PerformedBy:  actor.PerformedBy(r.Context()),
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}
