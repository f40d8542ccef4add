package handler

import (
	"net/http"

	"github.com/cafeflow/cafeflow-backend/internal/stock/domain"
	"github.com/cafeflow/cafeflow-backend/internal/stock/service"
	"github.com/cafeflow/cafeflow-backend/pkg/httputil"
	"github.com/cafeflow/cafeflow-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// IngredientHandler handles ingredient registry endpoints
type IngredientHandler struct {
	service *service.IngredientService
	logger  *logger.Logger
}

// NewIngredientHandler creates a new ingredient handler
func NewIngredientHandler(svc *service.IngredientService, log *logger.Logger) *IngredientHandler {
	return &IngredientHandler{
		service: svc,
		logger:  log,
	}
}

// List lists ingredients
func (h *IngredientHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("include_inactive") != "true"

	ingredients, err := h.service.List(r.Context(), activeOnly)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, ingredients)
}

// Create registers a new ingredient
func (h *IngredientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateIngredientRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	ing, err := h.service.Create(r.Context(), req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, ing)
}

// Get gets an ingredient with its active batches and computed stock status
func (h *IngredientHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, detail)
}

// Update applies a partial update to an ingredient
func (h *IngredientHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req service.UpdateIngredientRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	ing, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, ing)
}

// Movements lists the movement ledger for an ingredient
func (h *IngredientHandler) Movements(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	filter := service.MovementFilter{
		MovementType:  domain.MovementType(r.URL.Query().Get("movement_type")),
		ReferenceType: domain.ReferenceType(r.URL.Query().Get("reference_type")),
		Reference:     r.URL.Query().Get("reference"),
	}
	filter.Limit = queryInt(r, "limit")
	filter.Offset = queryInt(r, "offset")

	movements, err := h.service.Movements(r.Context(), id, filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, movements)
}

// ListBatches lists all batches for an ingredient, consumed included
func (h *IngredientHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	batches, err := h.service.Batches(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batches)
}
