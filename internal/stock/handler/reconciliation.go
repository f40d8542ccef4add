package handler

import (
	"net/http"

	"github.com/cafeflow/cafeflow-backend/internal/stock/service"
	"github.com/cafeflow/cafeflow-backend/pkg/actor"
	"github.com/cafeflow/cafeflow-backend/pkg/httputil"
	"github.com/cafeflow/cafeflow-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// ReconciliationHandler handles physical count reconciliation endpoints
type ReconciliationHandler struct {
	service *service.ReconciliationProcessor
	logger  *logger.Logger
}

// NewReconciliationHandler creates a new reconciliation handler
func NewReconciliationHandler(svc *service.ReconciliationProcessor, log *logger.Logger) *ReconciliationHandler {
	return &ReconciliationHandler{
		service: svc,
		logger:  log,
	}
}

// Reconcile reconciles physical counts against the ledger. Per-item failures
// are reported in the response body without aborting the other items.
func (h *ReconciliationHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []struct {
			IngredientID  string          `json:"ingredient_id" validate:"required"`
			PhysicalCount decimal.Decimal `json:"physical_count"`
			Reason        string          `json:"reason,omitempty"`
		} `json:"items" validate:"required,min=1,dive"`
		Notes string `json:"notes,omitempty"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	items := make([]service.ReconciliationItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, service.ReconciliationItem{
			IngredientID:  item.IngredientID,
			PhysicalCount: item.PhysicalCount,
			Reason:        item.Reason,
		})
	}

	result, err := h.service.Reconcile(r.Context(), service.ReconciliationRequest{
		Items:       items,
		Notes:       req.Notes,
		PerformedBy: actor.PerformedBy(r.Context()),
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}
