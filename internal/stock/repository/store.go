// Package repository persists the stock ledger in Postgres. The Store
// implements the service.Ledger port; all mutating operations run inside
// transactions opened through WithinTx, with the ingredient row lock as the
// concurrency boundary.
package repository

import (
	"context"
	"time"

	"github.com/cafeflow/cafeflow-backend/internal/stock/domain"
	"github.com/cafeflow/cafeflow-backend/internal/stock/service"
	"github.com/cafeflow/cafeflow-backend/pkg/config"
	"github.com/cafeflow/cafeflow-backend/pkg/database"
	"github.com/cafeflow/cafeflow-backend/pkg/errors"
	"github.com/cafeflow/cafeflow-backend/pkg/logger"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// Store is the Postgres stock ledger.
type Store struct {
	db     *database.DB
	cfg    config.StockConfig
	logger *logger.Logger
}

// NewStore creates a new store
func NewStore(db *database.DB, cfg config.StockConfig, log *logger.Logger) *Store {
	return &Store{db: db, cfg: cfg, logger: log}
}

// WithinTx implements service.Ledger. Serialization failures and deadlocks
// are retried with backoff; when the budget is exhausted the caller sees a
// concurrency conflict instead of a raw driver error.
func (s *Store) WithinTx(ctx context.Context, fn func(tx service.LedgerTx) error) error {
	err := s.db.TransactionWithRetry(ctx, s.cfg.TxMaxRetries, func(tx *sqlx.Tx) error {
		return fn(&ledgerTx{tx: tx})
	})
	if err != nil && database.IsRetryable(err) {
		return errors.ConcurrencyConflict()
	}
	return err
}

// ledgerTx implements service.LedgerTx over one open transaction.
type ledgerTx struct {
	tx *sqlx.Tx
}

func (t *ledgerTx) LockIngredient(ctx context.Context, id string) (*domain.Ingredient, error) {
	var ing domain.Ingredient
	query := `SELECT * FROM ingredients WHERE id = $1 FOR UPDATE`
	if err := t.tx.GetContext(ctx, &ing, query, id); err != nil {
		return nil, mapGetError(err, "ingredient")
	}
	return &ing, nil
}

func (t *ledgerTx) ActiveBatches(ctx context.Context, ingredientID string) ([]domain.StockBatch, error) {
	var batches []domain.StockBatch
	query := `
		SELECT * FROM stock_batches
		WHERE ingredient_id = $1 AND status = 'active' AND remaining_quantity > 0
		ORDER BY received_date, created_at
	`
	if err := t.tx.SelectContext(ctx, &batches, query, ingredientID); err != nil {
		return nil, database.MapError(err)
	}
	return batches, nil
}

func (t *ledgerTx) InsertBatch(ctx context.Context, b *domain.StockBatch) error {
	query := `
		INSERT INTO stock_batches (
			id, ingredient_id, batch_number, initial_quantity, remaining_quantity,
			cost_per_unit, received_date, expiry_date, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	err := t.tx.QueryRowxContext(ctx, query,
		b.ID, b.IngredientID, b.BatchNumber, b.InitialQuantity, b.RemainingQuantity,
		b.CostPerUnit, b.ReceivedDate, b.ExpiryDate, b.Status,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return database.MapError(err)
	}
	return nil
}

func (t *ledgerTx) UpdateBatchRemaining(ctx context.Context, batchID string, remaining decimal.Decimal, status domain.BatchStatus) error {
	query := `
		UPDATE stock_batches
		SET remaining_quantity = $2, status = $3, updated_at = NOW()
		WHERE id = $1
	`
	result, err := t.tx.ExecContext(ctx, query, batchID, remaining, status)
	if err != nil {
		return database.MapError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.NotFound("batch")
	}
	return nil
}

func (t *ledgerTx) SetIngredientStock(ctx context.Context, ingredientID string, stock decimal.Decimal) error {
	query := `UPDATE ingredients SET current_stock = $2, updated_at = NOW() WHERE id = $1`
	result, err := t.tx.ExecContext(ctx, query, ingredientID, stock)
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

func (t *ledgerTx) InsertMovement(ctx context.Context, m *domain.StockMovement) error {
	query := `
		INSERT INTO stock_movements (
			id, ingredient_id, batch_id, movement_type, quantity, unit_cost,
			total_cost, reference, reference_type, notes, performed_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`
	err := t.tx.QueryRowxContext(ctx, query,
		m.ID, m.IngredientID, m.BatchID, m.MovementType, m.Quantity, m.UnitCost,
		m.TotalCost, m.Reference, m.ReferenceType, m.Notes, m.PerformedBy,
	).Scan(&m.CreatedAt)
	if err != nil {
		return database.MapError(err)
	}
	return nil
}

func (t *ledgerTx) MovementExists(ctx context.Context, ingredientID, reference string, refType domain.ReferenceType) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM stock_movements
			WHERE ingredient_id = $1 AND reference = $2 AND reference_type = $3
		)
	`
	if err := t.tx.GetContext(ctx, &exists, query, ingredientID, reference, refType); err != nil {
		return false, database.MapError(err)
	}
	return exists, nil
}

func (t *ledgerTx) NextBatchSequence(ctx context.Context, ingredientID string, day time.Time) (int, error) {
	var seq int
	query := `
		SELECT COUNT(*) + 1 FROM stock_batches
		WHERE ingredient_id = $1 AND received_date::date = $2::date
	`
	if err := t.tx.GetContext(ctx, &seq, query, ingredientID, day.UTC()); err != nil {
		return 0, database.MapError(err)
	}
	return seq, nil
}

func (t *ledgerTx) SumBatchRemainders(ctx context.Context, ingredientID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	query := `SELECT COALESCE(SUM(remaining_quantity), 0) FROM stock_batches WHERE ingredient_id = $1`
	if err := t.tx.GetContext(ctx, &sum, query, ingredientID); err != nil {
		return decimal.Zero, database.MapError(err)
	}
	return sum, nil
}
