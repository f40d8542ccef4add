package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ingredient is the master record for one perishable ingredient.
//
// CurrentStock is a live aggregate: it must always equal the sum of
// remaining_quantity over the ingredient's active batches. It is mutated only
// inside ledger transactions (deduction, receiving, reconciliation), never
// written directly.
type Ingredient struct {
	ID           string          `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	Unit         string          `db:"unit" json:"unit"`
	CurrentStock decimal.Decimal `db:"current_stock" json:"current_stock"`
	MinStock     decimal.Decimal `db:"min_stock" json:"min_stock"`
	MaxStock     decimal.Decimal `db:"max_stock" json:"max_stock"`
	CostPerUnit  decimal.Decimal `db:"cost_per_unit" json:"cost_per_unit"`
	IsActive     bool            `db:"is_active" json:"is_active"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// StockStatus summarizes the ingredient's stock level against its thresholds.
func (i *Ingredient) StockStatus() string {
	switch {
	case !i.CurrentStock.IsPositive():
		return "out_of_stock"
	case i.CurrentStock.LessThanOrEqual(i.MinStock):
		return "low_stock"
	default:
		return "in_stock"
	}
}
