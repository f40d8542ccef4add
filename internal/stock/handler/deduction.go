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

// DeductionHandler handles stock deduction endpoints
type DeductionHandler struct {
	engine *service.DeductionEngine
	logger *logger.Logger
}

// NewDeductionHandler creates a new deduction handler
func NewDeductionHandler(engine *service.DeductionEngine, log *logger.Logger) *DeductionHandler {
	return &DeductionHandler{
		engine: engine,
		logger: log,
	}
}

// Deduct deducts stock for an order. Lines for the same ingredient are
// aggregated into one deduction; per-ingredient failures are reported in the
// response body without aborting the other ingredients.
func (h *DeductionHandler) Deduct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reference string              `json:"reference" validate:"required"`
		Lines     []service.OrderLine `json:"lines" validate:"required,min=1"`
		Force     bool                `json:"force,omitempty"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.engine.DeductForOrder(r.Context(), service.OrderDeductionRequest{
		Reference:   req.Reference,
		Lines:       req.Lines,
		Force:       req.Force,
		PerformedBy: actor.PerformedBy(r.Context()),
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Preview computes a deduction plan without touching stock
func (h *DeductionHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IngredientID string          `json:"ingredient_id" validate:"required"`
		Quantity     decimal.Decimal `json:"quantity"`
		Policy       string          `json:"policy,omitempty" validate:"omitempty,oneof=fifo lifo specific_batch"`
		BatchIDs     []string        `json:"batch_ids,omitempty"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	preview, err := h.engine.Preview(r.Context(), req.IngredientID, req.Quantity, domain.AllocationPolicy(req.Policy), req.BatchIDs)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, preview)
}
