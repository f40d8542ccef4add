package service

import (
	"context"
	"time"

	"github.com/cafeflow/cafeflow-backend/internal/stock/domain"
	"github.com/cafeflow/cafeflow-backend/pkg/errors"
	"github.com/cafeflow/cafeflow-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// IngredientService manages the ingredient registry. Stock levels are owned
// by the ledger transactions; this service only touches master data.
type IngredientService struct {
	ledger Ledger
	logger *logger.Logger
}

// NewIngredientService creates a new ingredient service
func NewIngredientService(ledger Ledger, log *logger.Logger) *IngredientService {
	return &IngredientService{ledger: ledger, logger: log}
}

// CreateIngredientRequest registers a new ingredient.
type CreateIngredientRequest struct {
	Name        string          `json:"name" validate:"required,min=2,max=120"`
	Unit        string          `json:"unit" validate:"required,min=1,max=20"`
	MinStock    decimal.Decimal `json:"min_stock"`
	MaxStock    decimal.Decimal `json:"max_stock"`
	CostPerUnit decimal.Decimal `json:"cost_per_unit"`
}

// Create registers a new ingredient with zero stock.
func (s *IngredientService) Create(ctx context.Context, req CreateIngredientRequest) (*domain.Ingredient, error) {
	details := map[string]string{}
	if req.MinStock.IsNegative() {
		details["min_stock"] = "must not be negative"
	}
	if req.MaxStock.IsNegative() {
		details["max_stock"] = "must not be negative"
	}
	if req.MaxStock.IsPositive() && req.MaxStock.LessThan(req.MinStock) {
		details["max_stock"] = "must not be below min_stock"
	}
	if req.CostPerUnit.IsNegative() {
		details["cost_per_unit"] = "must not be negative"
	}
	if len(details) > 0 {
		return nil, errors.Validation(details)
	}

	now := time.Now().UTC()
	ing := &domain.Ingredient{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Unit:         req.Unit,
		CurrentStock: decimal.Zero,
		MinStock:     req.MinStock,
		MaxStock:     req.MaxStock,
		CostPerUnit:  req.CostPerUnit,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.ledger.CreateIngredient(ctx, ing); err != nil {
		return nil, err
	}

	s.logger.Info().Str("ingredient_id", ing.ID).Str("name", ing.Name).Msg("ingredient created")
	return ing, nil
}

// IngredientDetail is an ingredient with its batches and computed status.
type IngredientDetail struct {
	domain.Ingredient
	Status  string              `json:"status"`
	Batches []domain.StockBatch `json:"batches"`
}

// Get returns one ingredient with its active batches.
func (s *IngredientService) Get(ctx context.Context, id string) (*IngredientDetail, error) {
	ing, err := s.ledger.GetIngredient(ctx, id)
	if err != nil {
		return nil, err
	}

	batches, err := s.ledger.ListActiveBatches(ctx, id)
	if err != nil {
		return nil, err
	}

	return &IngredientDetail{
		Ingredient: *ing,
		Status:     ing.StockStatus(),
		Batches:    batches,
	}, nil
}

// List returns all ingredients.
func (s *IngredientService) List(ctx context.Context, activeOnly bool) ([]domain.Ingredient, error) {
	return s.ledger.ListIngredients(ctx, activeOnly)
}

// UpdateIngredientRequest changes thresholds and master data. Nil fields are
// left untouched; current_stock is deliberately not updatable here, levels
// only change through ledger operations.
type UpdateIngredientRequest struct {
	Name        *string          `json:"name,omitempty"`
	Unit        *string          `json:"unit,omitempty"`
	MinStock    *decimal.Decimal `json:"min_stock,omitempty"`
	MaxStock    *decimal.Decimal `json:"max_stock,omitempty"`
	CostPerUnit *decimal.Decimal `json:"cost_per_unit,omitempty"`
	IsActive    *bool            `json:"is_active,omitempty"`
}

// Update applies a partial update to an ingredient.
func (s *IngredientService) Update(ctx context.Context, id string, req UpdateIngredientRequest) (*domain.Ingredient, error) {
	ing, err := s.ledger.GetIngredient(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		ing.Name = *req.Name
	}
	if req.Unit != nil {
		ing.Unit = *req.Unit
	}
	if req.MinStock != nil {
		if req.MinStock.IsNegative() {
			return nil, errors.Validation(map[string]string{"min_stock": "must not be negative"})
		}
		ing.MinStock = *req.MinStock
	}
	if req.MaxStock != nil {
		if req.MaxStock.IsNegative() {
			return nil, errors.Validation(map[string]string{"max_stock": "must not be negative"})
		}
		ing.MaxStock = *req.MaxStock
	}
	if req.CostPerUnit != nil {
		if req.CostPerUnit.IsNegative() {
			return nil, errors.Validation(map[string]string{"cost_per_unit": "must not be negative"})
		}
		ing.CostPerUnit = *req.CostPerUnit
	}
	if req.IsActive != nil {
		ing.IsActive = *req.IsActive
	}
	ing.UpdatedAt = time.Now().UTC()

	if err := s.ledger.UpdateIngredient(ctx, ing); err != nil {
		return nil, err
	}

	return ing, nil
}

// Movements returns the audit ledger for one ingredient, newest first.
func (s *IngredientService) Movements(ctx context.Context, id string, filter MovementFilter) ([]domain.StockMovement, error) {
	if _, err := s.ledger.GetIngredient(ctx, id); err != nil {
		return nil, err
	}

	filter.IngredientID = id
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 500 {
		filter.Limit = 500
	}

	return s.ledger.ListMovements(ctx, filter)
}

// Batches returns all batches of one ingredient, consumed ones included.
func (s *IngredientService) Batches(ctx context.Context, id string) ([]domain.StockBatch, error) {
	if _, err := s.ledger.GetIngredient(ctx, id); err != nil {
		return nil, err
	}
	return s.ledger.ListBatches(ctx, id)
}
