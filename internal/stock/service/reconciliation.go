package service

import (
	"context"
	"sort"
	"time"

	"github.com/cafeflow/cafeflow-backend/internal/stock/domain"
	"github.com/cafeflow/cafeflow-backend/internal/stock/events"
	"github.com/cafeflow/cafeflow-backend/pkg/config"
	"github.com/cafeflow/cafeflow-backend/pkg/errors"
	"github.com/cafeflow/cafeflow-backend/pkg/logger"
	"github.com/cafeflow/cafeflow-backend/pkg/messaging"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReconciliationProcessor aligns the ledger with physical counts taken on the
// floor. Differences within tolerance are ignored; surpluses come in as a new
// batch at the ingredient's baseline cost, shortfalls go out through the FIFO
// allocation used by every other deduction.
type ReconciliationProcessor struct {
	ledger    Ledger
	publisher *events.StockEventPublisher
	tolerance decimal.Decimal
	logger    *logger.Logger
}

// NewReconciliationProcessor creates a new reconciliation processor
func NewReconciliationProcessor(ledger Ledger, publisher *events.StockEventPublisher, cfg config.StockConfig, log *logger.Logger) *ReconciliationProcessor {
	return &ReconciliationProcessor{
		ledger:    ledger,
		publisher: publisher,
		tolerance: decimal.NewFromFloat(cfg.ReconcileTolerance),
		logger:    log,
	}
}

// ReconciliationItem is one counted ingredient.
type ReconciliationItem struct {
	IngredientID  string
	PhysicalCount decimal.Decimal
	Reason        string
}

// ReconciliationRequest submits a physical count session.
type ReconciliationRequest struct {
	Items       []ReconciliationItem
	Notes       string
	PerformedBy string
}

// ReconciliationItemResult reports the outcome for one counted ingredient.
type ReconciliationItemResult struct {
	IngredientID      string           `json:"ingredient_id"`
	IngredientName    string           `json:"ingredient_name,omitempty"`
	SystemCount       decimal.Decimal  `json:"system_count"`
	PhysicalCount     decimal.Decimal  `json:"physical_count"`
	Difference        decimal.Decimal  `json:"difference"`
	AdjustmentApplied bool             `json:"adjustment_applied"`
	BatchID           string           `json:"batch_id,omitempty"`
	Error             *errors.AppError `json:"error,omitempty"`
}

// ReconciliationResult is the outcome of one count session.
type ReconciliationResult struct {
	ReconciliationID string                     `json:"reconciliation_id"`
	PerformedAt      time.Time                  `json:"performed_at"`
	Items            []ReconciliationItemResult `json:"items"`
}

// Reconcile processes a count session item by item, each ingredient in its
// own atomic transaction. The difference is computed under the ingredient's
// row lock, so a sale that lands between count entry and processing cannot
// be double-corrected. One failing ingredient does not abort the rest.
func (p *ReconciliationProcessor) Reconcile(ctx context.Context, req ReconciliationRequest) (*ReconciliationResult, error) {
	if len(req.Items) == 0 {
		return nil, errors.Validation(map[string]string{"items": "at least one item is required"})
	}
	for _, item := range req.Items {
		if item.IngredientID == "" {
			return nil, errors.Validation(map[string]string{"items": "every item needs an ingredient_id"})
		}
		if item.PhysicalCount.IsNegative() {
			return nil, errors.Validation(map[string]string{"physical_count": "must not be negative"})
		}
	}

	items := make([]ReconciliationItem, len(req.Items))
	copy(items, req.Items)
	sort.Slice(items, func(i, j int) bool { return items[i].IngredientID < items[j].IngredientID })

	result := &ReconciliationResult{
		ReconciliationID: "recon-" + uuid.New().String(),
		PerformedAt:      time.Now().UTC(),
	}

	for _, item := range items {
		itemResult := p.reconcileItem(ctx, result.ReconciliationID, item, req.PerformedBy)
		result.Items = append(result.Items, itemResult)

		if itemResult.Error == nil && itemResult.AdjustmentApplied {
			p.publisher.PublishReconciled(ctx, messaging.ReconciledEvent{
				ReconciliationID: result.ReconciliationID,
				IngredientID:     itemResult.IngredientID,
				SystemCount:      itemResult.SystemCount,
				PhysicalCount:    itemResult.PhysicalCount,
				Difference:       itemResult.Difference,
				PerformedBy:      req.PerformedBy,
			})
		}
	}

	return result, nil
}

func (p *ReconciliationProcessor) reconcileItem(ctx context.Context, reconciliationID string, item ReconciliationItem, performedBy string) ReconciliationItemResult {
	result := ReconciliationItemResult{
		IngredientID:  item.IngredientID,
		PhysicalCount: item.PhysicalCount,
	}

	err := p.ledger.WithinTx(ctx, func(tx LedgerTx) error {
		ing, err := tx.LockIngredient(ctx, item.IngredientID)
		if err != nil {
			return err
		}

		result.IngredientName = ing.Name
		result.SystemCount = ing.CurrentStock
		result.Difference = item.PhysicalCount.Sub(ing.CurrentStock)

		if result.Difference.Abs().LessThan(p.tolerance) {
			return nil
		}

		if result.Difference.IsPositive() {
			batchID, err := p.applySurplus(ctx, tx, ing, item, reconciliationID, performedBy)
			if err != nil {
				return err
			}
			result.BatchID = batchID
		} else {
			if err := p.applyShortfall(ctx, tx, ing, item, reconciliationID, performedBy); err != nil {
				return err
			}
		}

		result.AdjustmentApplied = true
		return nil
	})
	if err != nil {
		var appErr *errors.AppError
		if !errors.As(err, &appErr) {
			appErr = errors.Internal(err.Error())
		}
		result.Error = appErr
		p.logger.Warn().
			Str("ingredient_id", item.IngredientID).
			Str("reconciliation_id", reconciliationID).
			Err(err).
			Msg("reconciliation item failed")
	}

	return result
}

// applySurplus books found stock as a fresh batch at the ingredient's
// baseline cost. The true provenance of surplus stock is unknown, so the
// baseline is the only defensible cost to book it at.
func (p *ReconciliationProcessor) applySurplus(ctx context.Context, tx LedgerTx, ing *domain.Ingredient, item ReconciliationItem, reconciliationID, performedBy string) (string, error) {
	now := time.Now().UTC()

	seq, err := tx.NextBatchSequence(ctx, ing.ID, now)
	if err != nil {
		return "", err
	}

	surplus := item.PhysicalCount.Sub(ing.CurrentStock)
	batch := &domain.StockBatch{
		ID:                uuid.New().String(),
		IngredientID:      ing.ID,
		BatchNumber:       BatchNumber(ing.Name, now, seq),
		InitialQuantity:   surplus,
		RemainingQuantity: surplus,
		CostPerUnit:       ing.CostPerUnit,
		ReceivedDate:      now,
		Status:            domain.BatchStatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := tx.InsertBatch(ctx, batch); err != nil {
		return "", err
	}

	batchID := batch.ID
	movement := &domain.StockMovement{
		ID:            uuid.New().String(),
		IngredientID:  ing.ID,
		BatchID:       &batchID,
		MovementType:  domain.MovementStockIn,
		Quantity:      surplus,
		UnitCost:      ing.CostPerUnit,
		TotalCost:     surplus.Mul(ing.CostPerUnit),
		Reference:     reconciliationID,
		ReferenceType: domain.ReferenceReconciliation,
		Notes:         item.Reason,
		PerformedBy:   performedBy,
		CreatedAt:     now,
	}
	if err := tx.InsertMovement(ctx, movement); err != nil {
		return "", err
	}

	if err := tx.SetIngredientStock(ctx, ing.ID, item.PhysicalCount); err != nil {
		return "", err
	}

	sum, err := tx.SumBatchRemainders(ctx, ing.ID)
	if err != nil {
		return "", err
	}
	if !sum.Equal(item.PhysicalCount) {
		return "", errors.Internal("stock aggregate diverged from batch remainders for ingredient " + ing.ID)
	}

	return batch.ID, nil
}

// applyShortfall deducts missing stock through the standard FIFO allocation,
// forced: the count is authoritative, so whatever the batches can still cover
// is taken even if the remainders disagree with the aggregate.
func (p *ReconciliationProcessor) applyShortfall(ctx context.Context, tx LedgerTx, ing *domain.Ingredient, item ReconciliationItem, reconciliationID, performedBy string) error {
	shortfall := ing.CurrentStock.Sub(item.PhysicalCount)

	batches, err := tx.ActiveBatches(ctx, ing.ID)
	if err != nil {
		return err
	}

	plan := domain.PlanAllocation(batches, shortfall, domain.PolicyFIFO, nil)

	_, _, err = applyPlan(ctx, tx, ing, batches, plan, deductionWrite{
		MovementType:  domain.MovementStockOut,
		ReferenceType: domain.ReferenceReconciliation,
		Reference:     reconciliationID,
		Notes:         item.Reason,
		PerformedBy:   performedBy,
	})
	return err
}
