package service

import (
	"context"
	"time"

	"github.com/cafeflow/cafeflow-backend/internal/stock/domain"
	"github.com/cafeflow/cafeflow-backend/pkg/config"
)

// AlertGenerator derives stock alerts from ledger state. Alerts are transient:
// nothing is stored, every evaluation starts from the current ledger, so an
// alert disappears the moment restocking resolves it.
type AlertGenerator struct {
	ledger Ledger
	cfg    config.StockConfig
}

// NewAlertGenerator creates a new alert generator
func NewAlertGenerator(ledger Ledger, cfg config.StockConfig) *AlertGenerator {
	return &AlertGenerator{ledger: ledger, cfg: cfg}
}

// Evaluate derives alerts for one ingredient from a post-commit snapshot.
// depletedBatchIDs marks batches the committing operation drained to zero;
// those get an informational batch_depleted alert on top of the level and
// expiry checks.
func (g *AlertGenerator) Evaluate(ing *domain.Ingredient, batches []domain.StockBatch, depletedBatchIDs []string, now time.Time) []domain.Alert {
	alerts := domain.BuildIngredientAlerts(ing, now)

	for i := range batches {
		if a := domain.BuildBatchExpiryAlert(ing, &batches[i], g.cfg.ExpiryWarningDays, g.cfg.ExpiryUrgentDays, now); a != nil {
			alerts = append(alerts, *a)
		}
	}

	depleted := make(map[string]bool, len(depletedBatchIDs))
	for _, id := range depletedBatchIDs {
		depleted[id] = true
	}
	for i := range batches {
		if depleted[batches[i].ID] {
			alerts = append(alerts, domain.BuildBatchDepletedAlert(ing, &batches[i], now))
		}
	}

	return alerts
}

// GenerateAll recomputes alerts for every active ingredient. Reads are
// unlocked: a slightly stale snapshot only delays an alert until the next
// evaluation.
func (g *AlertGenerator) GenerateAll(ctx context.Context) ([]domain.Alert, error) {
	ingredients, err := g.ledger.ListIngredients(ctx, true)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var alerts []domain.Alert
	for i := range ingredients {
		batches, err := g.ledger.ListActiveBatches(ctx, ingredients[i].ID)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, g.Evaluate(&ingredients[i], batches, nil, now)...)
	}

	return alerts, nil
}
