package repository

import (
	"context"

	"github.com/cafeflow/cafeflow-backend/internal/stock/domain"
	"github.com/cafeflow/cafeflow-backend/pkg/database"
)

// GetBatch implements service.Ledger.
func (s *Store) GetBatch(ctx context.Context, id string) (*domain.StockBatch, error) {
	var batch domain.StockBatch
	query := `SELECT * FROM stock_batches WHERE id = $1`
	if err := s.db.GetContext(ctx, &batch, query, id); err != nil {
		return nil, mapGetError(err, "batch")
	}
	return &batch, nil
}

// ListBatches implements service.Ledger. Consumed batches are included: they
// are the permanent cost history of the ingredient.
func (s *Store) ListBatches(ctx context.Context, ingredientID string) ([]domain.StockBatch, error) {
	var batches []domain.StockBatch
	query := `
		SELECT * FROM stock_batches
		WHERE ingredient_id = $1
		ORDER BY received_date, created_at
	`
	if err := s.db.SelectContext(ctx, &batches, query, ingredientID); err != nil {
		return nil, database.MapError(err)
	}
	return batches, nil
}

// ListActiveBatches implements service.Ledger.
func (s *Store) ListActiveBatches(ctx context.Context, ingredientID string) ([]domain.StockBatch, error) {
	var batches []domain.StockBatch
	query := `
		SELECT * FROM stock_batches
		WHERE ingredient_id = $1 AND status = 'active' AND remaining_quantity > 0
		ORDER BY received_date, created_at
	`
	if err := s.db.SelectContext(ctx, &batches, query, ingredientID); err != nil {
		return nil, database.MapError(err)
	}
	return batches, nil
}
