package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementType classifies a ledger movement.
type MovementType string

const (
	MovementStockIn    MovementType = "stock_in"
	MovementStockOut   MovementType = "stock_out"
	MovementWaste      MovementType = "waste"
	MovementAdjustment MovementType = "adjustment"
)

// IsValid checks if the movement type is a known value
func (t MovementType) IsValid() bool {
	switch t {
	case MovementStockIn, MovementStockOut, MovementWaste, MovementAdjustment:
		return true
	}
	return false
}

// ReferenceType identifies the kind of document a movement refers to.
type ReferenceType string

const (
	ReferenceOrder          ReferenceType = "order"
	ReferenceReconciliation ReferenceType = "reconciliation"
	ReferenceWaste          ReferenceType = "waste"
	ReferenceManual         ReferenceType = "manual"
)

// IsValid checks if the reference type is a known value
func (t ReferenceType) IsValid() bool {
	switch t {
	case ReferenceOrder, ReferenceReconciliation, ReferenceWaste, ReferenceManual:
		return true
	}
	return false
}

// StockMovement is one append-only ledger entry. Movements are never updated
// or deleted: a mistaken movement is corrected by a compensating one.
//
// Quantity is always positive; direction is carried by MovementType.
type StockMovement struct {
	ID            string          `db:"id" json:"id"`
	IngredientID  string          `db:"ingredient_id" json:"ingredient_id"`
	BatchID       *string         `db:"batch_id" json:"batch_id,omitempty"`
	MovementType  MovementType    `db:"movement_type" json:"movement_type"`
	Quantity      decimal.Decimal `db:"quantity" json:"quantity"`
	UnitCost      decimal.Decimal `db:"unit_cost" json:"unit_cost"`
	TotalCost     decimal.Decimal `db:"total_cost" json:"total_cost"`
	Reference     string          `db:"reference" json:"reference"`
	ReferenceType ReferenceType   `db:"reference_type" json:"reference_type"`
	Notes         string          `db:"notes" json:"notes"`
	PerformedBy   string          `db:"performed_by" json:"performed_by"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// SignedQuantity applies direction to the stored quantity for reporting:
// stock_in counts up, every other movement type draws stock down.
func (m *StockMovement) SignedQuantity() decimal.Decimal {
	if m.MovementType == MovementStockIn {
		return m.Quantity
	}
	return m.Quantity.Neg()
}
