package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BatchStatus is the lifecycle state of a stock batch.
type BatchStatus string

const (
	BatchStatusActive   BatchStatus = "active"
	BatchStatusConsumed BatchStatus = "consumed"
	// BatchStatusExpired is set by operator write-off tooling, never
	// automatically: past-expiry stock stays consumable (FIFO drains it
	// first), and an automatic flip would pull it out of allocation.
	BatchStatusExpired BatchStatus = "expired"
)

// IsValid checks if the status is a known value
func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusActive, BatchStatusConsumed, BatchStatusExpired:
		return true
	}
	return false
}

// StockBatch is one received quantity of an ingredient at a given cost and
// optional expiry. Batches are permanent cost/audit history: only
// RemainingQuantity and Status ever change, and a batch is never deleted.
//
// Invariant: Status == consumed iff RemainingQuantity == 0.
// FIFO order key: ReceivedDate, ties broken by CreatedAt.
type StockBatch struct {
	ID                string          `db:"id" json:"id"`
	IngredientID      string          `db:"ingredient_id" json:"ingredient_id"`
	BatchNumber       string          `db:"batch_number" json:"batch_number"`
	InitialQuantity   decimal.Decimal `db:"initial_quantity" json:"initial_quantity"`
	RemainingQuantity decimal.Decimal `db:"remaining_quantity" json:"remaining_quantity"`
	CostPerUnit       decimal.Decimal `db:"cost_per_unit" json:"cost_per_unit"`
	ReceivedDate      time.Time       `db:"received_date" json:"received_date"`
	ExpiryDate        *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
	Status            BatchStatus     `db:"status" json:"status"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// IsExpired reports whether the batch's expiry date has passed at now.
// Batches without an expiry date never expire.
func (b *StockBatch) IsExpired(now time.Time) bool {
	return b.ExpiryDate != nil && b.ExpiryDate.Before(now)
}

// DaysUntilExpiry returns the whole days until expiry at now.
// Negative values mean the batch is already expired.
func (b *StockBatch) DaysUntilExpiry(now time.Time) int {
	if b.ExpiryDate == nil {
		return 0
	}
	return int(b.ExpiryDate.Sub(now).Hours() / 24)
}
