package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/cafeflow/cafeflow-backend/internal/stock/domain"
	"github.com/cafeflow/cafeflow-backend/internal/stock/events"
	"github.com/cafeflow/cafeflow-backend/pkg/errors"
	"github.com/cafeflow/cafeflow-backend/pkg/logger"
	"github.com/cafeflow/cafeflow-backend/pkg/messaging"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AdjustmentService covers the manual paths into the ledger: receiving stock,
// writing off waste and correcting levels outside of order flow. Waste and
// downward corrections run through the same deduction engine as orders, so
// COGS and waste reporting read from one ledger.
type AdjustmentService struct {
	ledger    Ledger
	engine    *DeductionEngine
	publisher *events.StockEventPublisher
	logger    *logger.Logger
}

// NewAdjustmentService creates a new adjustment service
func NewAdjustmentService(ledger Ledger, engine *DeductionEngine, publisher *events.StockEventPublisher, log *logger.Logger) *AdjustmentService {
	return &AdjustmentService{
		ledger:    ledger,
		engine:    engine,
		publisher: publisher,
		logger:    log,
	}
}

// AddStockRequest receives new stock as a batch.
type AddStockRequest struct {
	IngredientID  string
	Quantity      decimal.Decimal
	CostPerUnit   decimal.Decimal
	ExpiryDate    *time.Time
	ReceivedDate  time.Time
	Reference     string
	ReferenceType domain.ReferenceType
	Notes         string
	PerformedBy   string
}

// AddStockResult reports the created batch and the new aggregate level.
type AddStockResult struct {
	Batch    *domain.StockBatch `json:"batch"`
	NewStock decimal.Decimal    `json:"new_stock"`
}

// AddStock creates a new batch plus its stock_in movement. Every receipt is a
// distinct batch even when cost and expiry match an existing one: the batch
// is the audit record of that delivery. The batch number is generated from a
// per-ingredient per-day sequence, so retrying a failed receipt cannot
// silently reuse a number.
func (s *AdjustmentService) AddStock(ctx context.Context, req AddStockRequest) (*AddStockResult, error) {
	details := map[string]string{}
	if req.IngredientID == "" {
		details["ingredient_id"] = "this field is required"
	}
	if !req.Quantity.IsPositive() {
		details["quantity"] = "must be greater than 0"
	}
	if req.CostPerUnit.IsNegative() {
		details["cost_per_unit"] = "must not be negative"
	}
	if len(details) > 0 {
		return nil, errors.Validation(details)
	}

	if req.ReceivedDate.IsZero() {
		req.ReceivedDate = time.Now().UTC()
	}
	if req.ReferenceType == "" {
		req.ReferenceType = domain.ReferenceManual
	}
	if req.ExpiryDate != nil && req.ExpiryDate.Before(req.ReceivedDate) {
		return nil, errors.Validation(map[string]string{"expiry_date": "must not be before the received date"})
	}

	var result *AddStockResult
	err := s.ledger.WithinTx(ctx, func(tx LedgerTx) error {
		ing, err := tx.LockIngredient(ctx, req.IngredientID)
		if err != nil {
			return err
		}

		cost := req.CostPerUnit
		if cost.IsZero() {
			cost = ing.CostPerUnit
		}

		seq, err := tx.NextBatchSequence(ctx, req.IngredientID, req.ReceivedDate)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		batch := &domain.StockBatch{
			ID:                uuid.New().String(),
			IngredientID:      req.IngredientID,
			BatchNumber:       BatchNumber(ing.Name, req.ReceivedDate, seq),
			InitialQuantity:   req.Quantity,
			RemainingQuantity: req.Quantity,
			CostPerUnit:       cost,
			ReceivedDate:      req.ReceivedDate,
			ExpiryDate:        req.ExpiryDate,
			Status:            domain.BatchStatusActive,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := tx.InsertBatch(ctx, batch); err != nil {
			return err
		}

		reference := req.Reference
		if reference == "" {
			reference = batch.BatchNumber
		}

		batchID := batch.ID
		movement := &domain.StockMovement{
			ID:            uuid.New().String(),
			IngredientID:  req.IngredientID,
			BatchID:       &batchID,
			MovementType:  domain.MovementStockIn,
			Quantity:      req.Quantity,
			UnitCost:      cost,
			TotalCost:     req.Quantity.Mul(cost),
			Reference:     reference,
			ReferenceType: req.ReferenceType,
			Notes:         req.Notes,
			PerformedBy:   req.PerformedBy,
			CreatedAt:     now,
		}
		if err := tx.InsertMovement(ctx, movement); err != nil {
			return err
		}

		newStock := ing.CurrentStock.Add(req.Quantity)
		if err := tx.SetIngredientStock(ctx, req.IngredientID, newStock); err != nil {
			return err
		}

		sum, err := tx.SumBatchRemainders(ctx, req.IngredientID)
		if err != nil {
			return err
		}
		if !sum.Equal(newStock) {
			return errors.Internal("stock aggregate diverged from batch remainders for ingredient " + req.IngredientID)
		}

		result = &AddStockResult{Batch: batch, NewStock: newStock}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishBatchReceived(ctx, result.Batch)
	return result, nil
}

// WasteRequest writes off stock that cannot be sold.
type WasteRequest struct {
	IngredientID string
	Quantity     decimal.Decimal
	Reason       string
	Reference    string
	PerformedBy  string
}

// RecordWaste deducts spoiled or discarded stock through the FIFO engine so
// the write-off carries real batch costs.
func (s *AdjustmentService) RecordWaste(ctx context.Context, req WasteRequest) (*DeductionResult, error) {
	if req.Reason == "" {
		return nil, errors.Validation(map[string]string{"reason": "this field is required"})
	}

	reference := req.Reference
	if reference == "" {
		reference = "waste-" + uuid.New().String()
	}

	result, err := s.engine.Deduct(ctx, DeductionRequest{
		IngredientID:  req.IngredientID,
		Quantity:      req.Quantity,
		Policy:        domain.PolicyFIFO,
		Reference:     reference,
		ReferenceType: domain.ReferenceWaste,
		MovementType:  domain.MovementWaste,
		Notes:         req.Reason,
		PerformedBy:   req.PerformedBy,
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishWasteRecorded(ctx, messaging.WasteRecordedEvent{
		IngredientID: req.IngredientID,
		Quantity:     result.DeductedQty,
		TotalCost:    result.TotalCost,
		Reason:       req.Reason,
		PerformedBy:  req.PerformedBy,
	})

	return result, nil
}

// DeductStockRequest corrects a level downward outside of order flow.
type DeductStockRequest struct {
	IngredientID string
	Quantity     decimal.Decimal
	Policy       domain.AllocationPolicy
	BatchIDs     []string
	Reference    string
	Notes        string
	PerformedBy  string
}

// DeductStock runs a manual downward adjustment through the deduction engine.
func (s *AdjustmentService) DeductStock(ctx context.Context, req DeductStockRequest) (*DeductionResult, error) {
	reference := req.Reference
	if reference == "" {
		reference = "adj-" + uuid.New().String()
	}

	return s.engine.Deduct(ctx, DeductionRequest{
		IngredientID:  req.IngredientID,
		Quantity:      req.Quantity,
		Policy:        req.Policy,
		BatchIDs:      req.BatchIDs,
		Reference:     reference,
		ReferenceType: domain.ReferenceManual,
		MovementType:  domain.MovementAdjustment,
		Notes:         req.Notes,
		PerformedBy:   req.PerformedBy,
	})
}

// BatchNumber builds the deterministic batch number
// <INGREDIENT-CODE>-<YYYYMMDD>-<seq> for a receipt.
func BatchNumber(ingredientName string, day time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%03d", ingredientCode(ingredientName), day.Format("20060102"), seq)
}

// ingredientCode condenses an ingredient name into a short uppercase prefix.
func ingredientCode(name string) string {
	var code []rune
	for _, r := range strings.ToUpper(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			code = append(code, r)
		}
		if len(code) >= 4 {
			break
		}
	}
	if len(code) == 0 {
		return "ING"
	}
	return string(code)
}
