package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// AllocationPolicy selects how batches are chosen to satisfy a deduction.
type AllocationPolicy string

const (
	PolicyFIFO          AllocationPolicy = "fifo"
	PolicyLIFO          AllocationPolicy = "lifo"
	PolicySpecificBatch AllocationPolicy = "specific_batch"
)

// IsValid checks if the policy is a known value
func (p AllocationPolicy) IsValid() bool {
	switch p {
	case PolicyFIFO, PolicyLIFO, PolicySpecificBatch:
		return true
	}
	return false
}

// BatchAllocation is one batch-level slice of a planned deduction.
type BatchAllocation struct {
	BatchID     string          `json:"batch_id"`
	BatchNumber string          `json:"batch_number"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	Depleted    bool            `json:"depleted"`
}

// AllocationPlan is the outcome of planning a deduction against a batch set.
// Shortage is zero when the request was fully covered; a non-zero shortage
// only commits on forced deductions, otherwise planning callers fail outright.
type AllocationPlan struct {
	Allocations     []BatchAllocation `json:"allocations"`
	AllocatedQty    decimal.Decimal   `json:"allocated_quantity"`
	TotalCost       decimal.Decimal   `json:"total_cost"`
	AverageUnitCost decimal.Decimal   `json:"average_unit_cost"`
	Shortage        decimal.Decimal   `json:"shortage"`
}

// DepletedBatchIDs lists the batches this plan drains to zero.
func (p *AllocationPlan) DepletedBatchIDs() []string {
	var ids []string
	for _, a := range p.Allocations {
		if a.Depleted {
			ids = append(ids, a.BatchID)
		}
	}
	return ids
}

// PlanAllocation walks active batches in policy order and plans how to take
// quantity from them. It is pure: batches are not mutated, callers apply the
// plan inside a ledger transaction.
//
// FIFO consumes oldest received first (ties broken by creation time), LIFO
// newest first. specific_batch walks batchIDs in the caller's order and never
// touches batches outside the list; each batch is planned at most once, so a
// repeated ID cannot allocate the same remainder twice. Batches with nothing
// remaining are skipped.
func PlanAllocation(batches []StockBatch, quantity decimal.Decimal, policy AllocationPolicy, batchIDs []string) AllocationPlan {
	available := make([]StockBatch, 0, len(batches))
	for _, b := range batches {
		if b.Status != BatchStatusActive || !b.RemainingQuantity.IsPositive() {
			continue
		}
		available = append(available, b)
	}

	var ordered []StockBatch
	if policy == PolicySpecificBatch {
		byID := make(map[string]StockBatch, len(available))
		for _, b := range available {
			byID[b.ID] = b
		}
		seen := make(map[string]bool, len(batchIDs))
		for _, id := range batchIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			if b, ok := byID[id]; ok {
				ordered = append(ordered, b)
			}
		}
	} else {
		ordered = available
		sort.SliceStable(ordered, func(i, j int) bool {
			if policy == PolicyLIFO {
				if !ordered[i].ReceivedDate.Equal(ordered[j].ReceivedDate) {
					return ordered[i].ReceivedDate.After(ordered[j].ReceivedDate)
				}
				return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
			}
			if !ordered[i].ReceivedDate.Equal(ordered[j].ReceivedDate) {
				return ordered[i].ReceivedDate.Before(ordered[j].ReceivedDate)
			}
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		})
	}

	plan := AllocationPlan{
		AllocatedQty: decimal.Zero,
		TotalCost:    decimal.Zero,
	}

	remaining := quantity
	for _, b := range ordered {
		if !remaining.IsPositive() {
			break
		}

		take := decimal.Min(remaining, b.RemainingQuantity)
		cost := take.Mul(b.CostPerUnit)

		plan.Allocations = append(plan.Allocations, BatchAllocation{
			BatchID:     b.ID,
			BatchNumber: b.BatchNumber,
			Quantity:    take,
			UnitCost:    b.CostPerUnit,
			TotalCost:   cost,
			Depleted:    take.Equal(b.RemainingQuantity),
		})

		plan.AllocatedQty = plan.AllocatedQty.Add(take)
		plan.TotalCost = plan.TotalCost.Add(cost)
		remaining = remaining.Sub(take)
	}

	plan.Shortage = remaining
	if plan.AllocatedQty.IsPositive() {
		plan.AverageUnitCost = plan.TotalCost.DivRound(plan.AllocatedQty, 6)
	}

	return plan
}
