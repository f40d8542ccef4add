package handler

import (
	"net/http"

	"github.com/cafeflow/cafeflow-backend/internal/stock/domain"
	"github.com/cafeflow/cafeflow-backend/internal/stock/service"
	"github.com/cafeflow/cafeflow-backend/pkg/httputil"
	"github.com/cafeflow/cafeflow-backend/pkg/logger"
)

// AlertHandler handles stock alert endpoints
type AlertHandler struct {
	generator *service.AlertGenerator
	logger    *logger.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(gen *service.AlertGenerator, log *logger.Logger) *AlertHandler {
	return &AlertHandler{
		generator: gen,
		logger:    log,
	}
}

// List evaluates current stock levels and expiry windows and returns the
// active alerts. Optional ?severity= narrows the result.
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.generator.GenerateAll(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	if severity := r.URL.Query().Get("severity"); severity != "" {
		filtered := make([]domain.Alert, 0, len(alerts))
		for _, a := range alerts {
			if a.Severity == domain.AlertSeverity(severity) {
				filtered = append(filtered, a)
			}
		}
		alerts = filtered
	}

	httputil.JSON(w, http.StatusOK, alerts)
}
