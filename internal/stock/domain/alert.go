package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// AlertType classifies a stock alert.
type AlertType string

const (
	AlertOutOfStock    AlertType = "out_of_stock"
	AlertLowStock      AlertType = "low_stock"
	AlertExpiringSoon  AlertType = "expiring_soon"
	AlertExpired       AlertType = "expired"
	AlertBatchDepleted AlertType = "batch_depleted"
)

// AlertSeverity orders alerts by urgency.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is a derived notification about stock state. Alerts are computed from
// current ledger state on demand and published as events; they are never
// persisted, so stale alerts cannot accumulate.
type Alert struct {
	Type           AlertType     `json:"type"`
	Severity       AlertSeverity `json:"severity"`
	IngredientID   string        `json:"ingredient_id"`
	IngredientName string        `json:"ingredient_name"`
	BatchID        string        `json:"batch_id,omitempty"`
	BatchNumber    string        `json:"batch_number,omitempty"`
	Message        string        `json:"message"`
	GeneratedAt    time.Time     `json:"generated_at"`
}

// BuildIngredientAlerts derives level alerts for one ingredient.
// Out-of-stock suppresses low-stock for the same ingredient. Low stock
// escalates to high severity once the level falls to half the minimum.
func BuildIngredientAlerts(ing *Ingredient, now time.Time) []Alert {
	if !ing.CurrentStock.IsPositive() {
		return []Alert{{
			Type:           AlertOutOfStock,
			Severity:       SeverityCritical,
			IngredientID:   ing.ID,
			IngredientName: ing.Name,
			Message:        fmt.Sprintf("%s is out of stock", ing.Name),
			GeneratedAt:    now,
		}}
	}
	if ing.CurrentStock.LessThanOrEqual(ing.MinStock) {
		severity := SeverityMedium
		if ing.MinStock.IsPositive() && ing.CurrentStock.LessThanOrEqual(ing.MinStock.Div(two)) {
			severity = SeverityHigh
		}
		return []Alert{{
			Type:           AlertLowStock,
			Severity:       severity,
			IngredientID:   ing.ID,
			IngredientName: ing.Name,
			Message:        fmt.Sprintf("%s is low: %s %s remaining (minimum %s)", ing.Name, ing.CurrentStock, ing.Unit, ing.MinStock),
			GeneratedAt:    now,
		}}
	}
	return nil
}

// BuildBatchExpiryAlert derives an expiry alert for a single batch, or nil if
// the batch has no expiry concern. warningDays and urgentDays configure the
// expiring-soon window; already expired batches escalate to critical. An
// expired batch stays consumable — whether to use or waste it is a floor
// decision, the alert only surfaces it.
func BuildBatchExpiryAlert(ing *Ingredient, batch *StockBatch, warningDays, urgentDays int, now time.Time) *Alert {
	if batch.ExpiryDate == nil || !batch.RemainingQuantity.IsPositive() {
		return nil
	}

	if batch.IsExpired(now) {
		return &Alert{
			Type:           AlertExpired,
			Severity:       SeverityCritical,
			IngredientID:   ing.ID,
			IngredientName: ing.Name,
			BatchID:        batch.ID,
			BatchNumber:    batch.BatchNumber,
			Message:        fmt.Sprintf("batch %s of %s expired on %s with %s %s remaining", batch.BatchNumber, ing.Name, batch.ExpiryDate.Format("2006-01-02"), batch.RemainingQuantity, ing.Unit),
			GeneratedAt:    now,
		}
	}

	days := batch.DaysUntilExpiry(now)
	if days > warningDays {
		return nil
	}

	severity := SeverityMedium
	if days <= urgentDays {
		severity = SeverityHigh
	}

	return &Alert{
		Type:           AlertExpiringSoon,
		Severity:       severity,
		IngredientID:   ing.ID,
		IngredientName: ing.Name,
		BatchID:        batch.ID,
		BatchNumber:    batch.BatchNumber,
		Message:        fmt.Sprintf("batch %s of %s expires in %d days (%s %s remaining)", batch.BatchNumber, ing.Name, days, batch.RemainingQuantity, ing.Unit),
		GeneratedAt:    now,
	}
}

// BuildBatchDepletedAlert marks a batch that a deduction just drained.
func BuildBatchDepletedAlert(ing *Ingredient, batch *StockBatch, now time.Time) Alert {
	return Alert{
		Type:           AlertBatchDepleted,
		Severity:       SeverityInfo,
		IngredientID:   ing.ID,
		IngredientName: ing.Name,
		BatchID:        batch.ID,
		BatchNumber:    batch.BatchNumber,
		Message:        fmt.Sprintf("batch %s of %s has been fully consumed", batch.BatchNumber, ing.Name),
		GeneratedAt:    now,
	}
}
