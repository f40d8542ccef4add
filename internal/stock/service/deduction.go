package service

import (
	"context"
	"sort"
	"time"

	"github.com/cafeflow/cafeflow-backend/internal/stock/domain"
	"github.com/cafeflow/cafeflow-backend/internal/stock/events"
	"github.com/cafeflow/cafeflow-backend/pkg/errors"
	"github.com/cafeflow/cafeflow-backend/pkg/logger"
	"github.com/cafeflow/cafeflow-backend/pkg/messaging"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DeductionEngine turns consumption requests into batch-level ledger writes.
// All mutations happen under the ingredient's row lock; a request either
// commits completely or leaves the ledger untouched.
type DeductionEngine struct {
	ledger    Ledger
	alerts    *AlertGenerator
	publisher *events.StockEventPublisher
	logger    *logger.Logger
}

// NewDeductionEngine creates a new deduction engine
func NewDeductionEngine(ledger Ledger, alerts *AlertGenerator, publisher *events.StockEventPublisher, log *logger.Logger) *DeductionEngine {
	return &DeductionEngine{
		ledger:    ledger,
		alerts:    alerts,
		publisher: publisher,
		logger:    log,
	}
}

// DeductionRequest describes one single-ingredient deduction.
type DeductionRequest struct {
	IngredientID  string
	Quantity      decimal.Decimal
	Policy        domain.AllocationPolicy
	BatchIDs      []string
	Reference     string
	ReferenceType domain.ReferenceType
	MovementType  domain.MovementType
	Force         bool
	Notes         string
	PerformedBy   string
}

func (r *DeductionRequest) applyDefaults() {
	if r.Policy == "" {
		r.Policy = domain.PolicyFIFO
	}
	if r.ReferenceType == "" {
		r.ReferenceType = domain.ReferenceOrder
	}
	if r.MovementType == "" {
		r.MovementType = domain.MovementStockOut
	}
}

func (r *DeductionRequest) validate() error {
	details := map[string]string{}
	if r.IngredientID == "" {
		details["ingredient_id"] = "this field is required"
	}
	if !r.Quantity.IsPositive() {
		details["quantity"] = "must be greater than 0"
	}
	if !r.Policy.IsValid() {
		details["policy"] = "must be one of: fifo lifo specific_batch"
	}
	if r.Policy == domain.PolicySpecificBatch {
		if len(r.BatchIDs) == 0 {
			details["batch_ids"] = "required for specific_batch policy"
		}
		seen := make(map[string]bool, len(r.BatchIDs))
		for _, id := range r.BatchIDs {
			if seen[id] {
				details["batch_ids"] = "duplicate batch id: " + id
				break
			}
			seen[id] = true
		}
	}
	if r.Reference == "" {
		details["reference"] = "this field is required"
	}
	if !r.ReferenceType.IsValid() {
		details["reference_type"] = "must be one of: order reconciliation waste manual"
	}
	if !r.MovementType.IsValid() {
		details["movement_type"] = "unknown movement type"
	}
	if len(details) > 0 {
		return errors.Validation(details)
	}
	return nil
}

// DeductionResult is the committed outcome of one deduction.
type DeductionResult struct {
	IngredientID    string                   `json:"ingredient_id"`
	IngredientName  string                   `json:"ingredient_name"`
	RequestedQty    decimal.Decimal          `json:"requested_quantity"`
	DeductedQty     decimal.Decimal          `json:"deducted_quantity"`
	Shortage        decimal.Decimal          `json:"shortage"`
	TotalCost       decimal.Decimal          `json:"total_cost"`
	AverageUnitCost decimal.Decimal          `json:"average_unit_cost"`
	NewStock        decimal.Decimal          `json:"new_stock"`
	Allocations     []domain.BatchAllocation `json:"allocations"`
	Alerts          []domain.Alert           `json:"alerts,omitempty"`
}

// PreviewResult is a dry-run allocation against current batch state.
type PreviewResult struct {
	IngredientID   string                `json:"ingredient_id"`
	IngredientName string                `json:"ingredient_name"`
	RequestedQty   decimal.Decimal       `json:"requested_quantity"`
	Sufficient     bool                  `json:"sufficient"`
	Plan           domain.AllocationPlan `json:"plan"`
}

// Preview plans a deduction without persisting anything. It reads without
// locks, so the answer can be stale by the time a real deduction runs.
func (e *DeductionEngine) Preview(ctx context.Context, ingredientID string, quantity decimal.Decimal, policy domain.AllocationPolicy, batchIDs []string) (*PreviewResult, error) {
	req := DeductionRequest{
		IngredientID:  ingredientID,
		Quantity:      quantity,
		Policy:        policy,
		BatchIDs:      batchIDs,
		Reference:     "preview",
		ReferenceType: domain.ReferenceOrder,
	}
	req.applyDefaults()
	if err := req.validate(); err != nil {
		return nil, err
	}

	ing, err := e.ledger.GetIngredient(ctx, ingredientID)
	if err != nil {
		return nil, err
	}

	batches, err := e.ledger.ListActiveBatches(ctx, ingredientID)
	if err != nil {
		return nil, err
	}

	plan := domain.PlanAllocation(batches, quantity, req.Policy, batchIDs)

	return &PreviewResult{
		IngredientID:   ing.ID,
		IngredientName: ing.Name,
		RequestedQty:   quantity,
		Sufficient:     plan.Shortage.IsZero(),
		Plan:           plan,
	}, nil
}

// Deduct runs one transactional single-ingredient deduction.
//
// Without force, a request the batches cannot cover fails with
// InsufficientStock and commits nothing. With force, everything available is
// taken and the unmet shortage is reported on the result. A reference already
// recorded for this ingredient is rejected as a conflict so order retries
// cannot deduct twice.
func (e *DeductionEngine) Deduct(ctx context.Context, req DeductionRequest) (*DeductionResult, error) {
	req.applyDefaults()
	if err := req.validate(); err != nil {
		return nil, err
	}

	var (
		result     *DeductionResult
		ingAfter   domain.Ingredient
		batchAfter []domain.StockBatch
	)

	err := e.ledger.WithinTx(ctx, func(tx LedgerTx) error {
		ing, err := tx.LockIngredient(ctx, req.IngredientID)
		if err != nil {
			return err
		}

		exists, err := tx.MovementExists(ctx, req.IngredientID, req.Reference, req.ReferenceType)
		if err != nil {
			return err
		}
		if exists {
			return errors.Conflict("reference " + req.Reference + " already processed for this ingredient")
		}

		batches, err := tx.ActiveBatches(ctx, req.IngredientID)
		if err != nil {
			return err
		}

		plan := domain.PlanAllocation(batches, req.Quantity, req.Policy, req.BatchIDs)

		if !plan.Shortage.IsZero() && !req.Force {
			return errors.InsufficientStock(ing.Name, req.Quantity, plan.AllocatedQty)
		}

		newStock, remaining, err := applyPlan(ctx, tx, ing, batches, plan, deductionWrite{
			MovementType:  req.MovementType,
			ReferenceType: req.ReferenceType,
			Reference:     req.Reference,
			Notes:         req.Notes,
			PerformedBy:   req.PerformedBy,
		})
		if err != nil {
			return err
		}

		ingAfter = *ing
		ingAfter.CurrentStock = newStock
		batchAfter = batchAfter[:0]
		for _, b := range batches {
			b.RemainingQuantity = remaining[b.ID]
			if b.RemainingQuantity.IsZero() {
				b.Status = domain.BatchStatusConsumed
			}
			batchAfter = append(batchAfter, b)
		}

		result = &DeductionResult{
			IngredientID:    ing.ID,
			IngredientName:  ing.Name,
			RequestedQty:    req.Quantity,
			DeductedQty:     plan.AllocatedQty,
			Shortage:        plan.Shortage,
			TotalCost:       plan.TotalCost,
			AverageUnitCost: plan.AverageUnitCost,
			NewStock:        newStock,
			Allocations:     plan.Allocations,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Alerts = e.alerts.Evaluate(&ingAfter, batchAfter, depletedIDs(result.Allocations), time.Now().UTC())
	e.publishDeduction(ctx, req, result)

	return result, nil
}

// OrderLine is one resolved ingredient requirement of an order.
type OrderLine struct {
	IngredientID string          `json:"ingredient_id"`
	Quantity     decimal.Decimal `json:"quantity"`
}

// OrderDeductionRequest deducts stock for one confirmed order.
type OrderDeductionRequest struct {
	Reference   string
	Lines       []OrderLine
	Force       bool
	PerformedBy string
}

// OrderDeductionResult reports per-ingredient outcomes of an order deduction.
type OrderDeductionResult struct {
	Reference string                      `json:"reference"`
	Results   map[string]*DeductionResult `json:"results"`
	Failures  map[string]*errors.AppError `json:"failures,omitempty"`
}

// Succeeded reports whether every ingredient deducted in full.
func (r *OrderDeductionResult) Succeeded() bool {
	if len(r.Failures) > 0 {
		return false
	}
	for _, res := range r.Results {
		if !res.Shortage.IsZero() {
			return false
		}
	}
	return true
}

// DeductForOrder deducts stock for a multi-line order. Quantities are first
// aggregated per ingredient across all lines, then deducted once per
// ingredient — deducting line by line would race against itself when two menu
// items share an ingredient. Ingredients are processed in sorted ID order so
// concurrent orders acquire row locks in the same sequence.
//
// One ingredient failing (unknown ID, insufficient stock) does not abort the
// others; failures are reported per ingredient.
func (e *DeductionEngine) DeductForOrder(ctx context.Context, req OrderDeductionRequest) (*OrderDeductionResult, error) {
	if req.Reference == "" {
		return nil, errors.Validation(map[string]string{"reference": "this field is required"})
	}
	if len(req.Lines) == 0 {
		return nil, errors.Validation(map[string]string{"lines": "at least one line is required"})
	}

	totals := make(map[string]decimal.Decimal)
	for _, line := range req.Lines {
		if line.IngredientID == "" || !line.Quantity.IsPositive() {
			return nil, errors.Validation(map[string]string{"lines": "every line needs an ingredient_id and a positive quantity"})
		}
		totals[line.IngredientID] = totals[line.IngredientID].Add(line.Quantity)
	}

	ids := make([]string, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := &OrderDeductionResult{
		Reference: req.Reference,
		Results:   make(map[string]*DeductionResult, len(ids)),
		Failures:  make(map[string]*errors.AppError),
	}

	for _, id := range ids {
		res, err := e.Deduct(ctx, DeductionRequest{
			IngredientID:  id,
			Quantity:      totals[id],
			Policy:        domain.PolicyFIFO,
			Reference:     req.Reference,
			ReferenceType: domain.ReferenceOrder,
			MovementType:  domain.MovementStockOut,
			Force:         req.Force,
			PerformedBy:   req.PerformedBy,
		})
		if err != nil {
			var appErr *errors.AppError
			if !errors.As(err, &appErr) {
				appErr = errors.Internal(err.Error())
			}
			out.Failures[id] = appErr
			e.logger.Warn().
				Str("ingredient_id", id).
				Str("reference", req.Reference).
				Err(err).
				Msg("order line deduction failed")
			continue
		}
		out.Results[id] = res
	}

	if len(out.Failures) == 0 {
		out.Failures = nil
	}

	return out, nil
}

func (e *DeductionEngine) publishDeduction(ctx context.Context, req DeductionRequest, res *DeductionResult) {
	consumptions := make([]messaging.BatchConsumption, 0, len(res.Allocations))
	for _, a := range res.Allocations {
		consumptions = append(consumptions, messaging.BatchConsumption{
			BatchID:   a.BatchID,
			Quantity:  a.Quantity,
			UnitCost:  a.UnitCost,
			TotalCost: a.TotalCost,
			Depleted:  a.Depleted,
		})
	}

	e.publisher.PublishStockDeducted(ctx, messaging.StockDeductedEvent{
		IngredientID:  res.IngredientID,
		Reference:     req.Reference,
		ReferenceType: string(req.ReferenceType),
		Quantity:      res.DeductedQty,
		TotalCost:     res.TotalCost,
		Shortage:      res.Shortage,
		NewStock:      res.NewStock,
		Batches:       consumptions,
		PerformedBy:   req.PerformedBy,
	})

	for _, alert := range res.Alerts {
		e.publisher.PublishAlertRaised(ctx, alert)
	}
}

// deductionWrite is the movement shape shared by everything that consumes
// stock through an allocation plan (orders, waste, manual corrections,
// reconciliation shortfalls).
type deductionWrite struct {
	MovementType  domain.MovementType
	ReferenceType domain.ReferenceType
	Reference     string
	Notes         string
	PerformedBy   string
}

// applyPlan writes a planned allocation into the ledger under the caller's
// transaction: batch decrements, one movement per touched batch at that
// batch's cost, the new aggregate, and the aggregate-vs-remainders check.
// It returns the new stock level and the post-write remainder per batch.
func applyPlan(ctx context.Context, tx LedgerTx, ing *domain.Ingredient, batches []domain.StockBatch, plan domain.AllocationPlan, w deductionWrite) (decimal.Decimal, map[string]decimal.Decimal, error) {
	now := time.Now().UTC()

	remaining := make(map[string]decimal.Decimal, len(batches))
	for _, b := range batches {
		remaining[b.ID] = b.RemainingQuantity
	}

	for _, alloc := range plan.Allocations {
		newRemaining := remaining[alloc.BatchID].Sub(alloc.Quantity)
		remaining[alloc.BatchID] = newRemaining

		status := domain.BatchStatusActive
		if newRemaining.IsZero() {
			status = domain.BatchStatusConsumed
		}
		if err := tx.UpdateBatchRemaining(ctx, alloc.BatchID, newRemaining, status); err != nil {
			return decimal.Zero, nil, err
		}

		batchID := alloc.BatchID
		movement := &domain.StockMovement{
			ID:            uuid.New().String(),
			IngredientID:  ing.ID,
			BatchID:       &batchID,
			MovementType:  w.MovementType,
			Quantity:      alloc.Quantity,
			UnitCost:      alloc.UnitCost,
			TotalCost:     alloc.TotalCost,
			Reference:     w.Reference,
			ReferenceType: w.ReferenceType,
			Notes:         w.Notes,
			PerformedBy:   w.PerformedBy,
			CreatedAt:     now,
		}
		if err := tx.InsertMovement(ctx, movement); err != nil {
			return decimal.Zero, nil, err
		}
	}

	newStock := ing.CurrentStock.Sub(plan.AllocatedQty)
	if err := tx.SetIngredientStock(ctx, ing.ID, newStock); err != nil {
		return decimal.Zero, nil, err
	}

	// The aggregate must track the batch remainders exactly. A divergence
	// means a write slipped past the row lock, so abort the transaction.
	sum, err := tx.SumBatchRemainders(ctx, ing.ID)
	if err != nil {
		return decimal.Zero, nil, err
	}
	if !sum.Equal(newStock) {
		return decimal.Zero, nil, errors.Internal("stock aggregate diverged from batch remainders for ingredient " + ing.ID)
	}

	return newStock, remaining, nil
}

func depletedIDs(allocations []domain.BatchAllocation) []string {
	var ids []string
	for _, a := range allocations {
		if a.Depleted {
			ids = append(ids, a.BatchID)
		}
	}
	return ids
}
