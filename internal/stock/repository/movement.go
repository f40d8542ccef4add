package repository

import (
	"context"
	"fmt"

	"github.com/cafeflow/cafeflow-backend/internal/stock/domain"
	"github.com/cafeflow/cafeflow-backend/internal/stock/service"
	"github.com/cafeflow/cafeflow-backend/pkg/database"
)

// ListMovements implements service.Ledger. Results are newest first.
func (s *Store) ListMovements(ctx context.Context, filter service.MovementFilter) ([]domain.StockMovement, error) {
	query := `SELECT * FROM stock_movements WHERE 1=1`
	var args []interface{}

	add := func(clause string, value interface{}) {
		args = append(args, value)
		query += fmt.Sprintf(" AND %s $%d", clause, len(args))
	}

	if filter.IngredientID != "" {
		add("ingredient_id =", filter.IngredientID)
	}
	if filter.MovementType != "" {
		add("movement_type =", filter.MovementType)
	}
	if filter.ReferenceType != "" {
		add("reference_type =", filter.ReferenceType)
	}
	if filter.Reference != "" {
		add("reference =", filter.Reference)
	}
	if filter.From != nil {
		add("created_at >=", *filter.From)
	}
	if filter.To != nil {
		add("created_at <=", *filter.To)
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var movements []domain.StockMovement
	if err := s.db.SelectContext(ctx, &movements, query, args...); err != nil {
		return nil, database.MapError(err)
	}
	return movements, nil
}
