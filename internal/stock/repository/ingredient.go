package repository

import (
	"context"
	"database/sql"

	"github.com/cafeflow/cafeflow-backend/internal/stock/domain"
	"github.com/cafeflow/cafeflow-backend/pkg/database"
	"github.com/cafeflow/cafeflow-backend/pkg/errors"
)

func mapGetError(err error, resource string) error {
	if err == sql.ErrNoRows {
		return errors.NotFound(resource)
	}
	return database.MapError(err)
}

// GetIngredient implements service.Ledger.
func (s *Store) GetIngredient(ctx context.Context, id string) (*domain.Ingredient, error) {
	var ing domain.Ingredient
	query := `SELECT * FROM ingredients WHERE id = $1`
	if err := s.db.GetContext(ctx, &ing, query, id); err != nil {
		return nil, mapGetError(err, "ingredient")
	}
	return &ing, nil
}

// ListIngredients implements service.Ledger.
func (s *Store) ListIngredients(ctx context.Context, activeOnly bool) ([]domain.Ingredient, error) {
	var ingredients []domain.Ingredient
	query := `SELECT * FROM ingredients`
	if activeOnly {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY name`

	if err := s.db.SelectContext(ctx, &ingredients, query); err != nil {
		return nil, database.MapError(err)
	}
	return ingredients, nil
}

// CreateIngredient implements service.Ledger.
func (s *Store) CreateIngredient(ctx context.Context, ing *domain.Ingredient) error {
	query := `
		INSERT INTO ingredients (
			id, name, unit, current_stock, min_stock, max_stock, cost_per_unit, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowxContext(ctx, query,
		ing.ID, ing.Name, ing.Unit, ing.CurrentStock, ing.MinStock,
		ing.MaxStock, ing.CostPerUnit, ing.IsActive,
	).Scan(&ing.CreatedAt, &ing.UpdatedAt)
	if err != nil {
		return database.MapError(err)
	}
	return nil
}

// UpdateIngredient implements service.Ledger. current_stock is deliberately
// excluded: the aggregate only moves inside ledger transactions.
func (s *Store) UpdateIngredient(ctx context.Context, ing *domain.Ingredient) error {
	query := `
		UPDATE ingredients SET
			name = $2, unit = $3, min_stock = $4, max_stock = $5,
			cost_per_unit = $6, is_active = $7, updated_at = NOW()
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		ing.ID, ing.Name, ing.Unit, ing.MinStock, ing.MaxStock,
		ing.CostPerUnit, ing.IsActive,
	)
	if err != nil {
		return database.MapError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.NotFound("ingredient")
	}
	return nil
}
