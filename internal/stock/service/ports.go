package service

import (
	"context"
	"time"

	"github.com/cafeflow/cafeflow-backend/internal/stock/domain"
	"github.com/shopspring/decimal"
)

// MovementFilter narrows movement ledger queries.
type MovementFilter struct {
	IngredientID  string
	MovementType  domain.MovementType
	ReferenceType domain.ReferenceType
	Reference     string
	From          *time.Time
	To            *time.Time
	Limit         int
	Offset        int
}

// Ledger is the persistence boundary of the stock services. The Postgres
// implementation lives in the repository package; tests use an in-memory one.
type Ledger interface {
	GetIngredient(ctx context.Context, id string) (*domain.Ingredient, error)
	ListIngredients(ctx context.Context, activeOnly bool) ([]domain.Ingredient, error)
	CreateIngredient(ctx context.Context, ing *domain.Ingredient) error
	UpdateIngredient(ctx context.Context, ing *domain.Ingredient) error

	GetBatch(ctx context.Context, id string) (*domain.StockBatch, error)
	ListBatches(ctx context.Context, ingredientID string) ([]domain.StockBatch, error)
	ListActiveBatches(ctx context.Context, ingredientID string) ([]domain.StockBatch, error)

	ListMovements(ctx context.Context, filter MovementFilter) ([]domain.StockMovement, error)

	// WithinTx runs fn in one atomic ledger transaction. Serialization and
	// deadlock failures are retried a bounded number of times; when retries
	// are exhausted the error surfaces as a concurrency conflict.
	WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error
}

// LedgerTx is the mutating surface available inside a ledger transaction.
// LockIngredient is the concurrency boundary: every mutation of an
// ingredient's batches or aggregate must happen under its row lock.
type LedgerTx interface {
	LockIngredient(ctx context.Context, id string) (*domain.Ingredient, error)
	ActiveBatches(ctx context.Context, ingredientID string) ([]domain.StockBatch, error)
	InsertBatch(ctx context.Context, b *domain.StockBatch) error
	UpdateBatchRemaining(ctx context.Context, batchID string, remaining decimal.Decimal, status domain.BatchStatus) error
	SetIngredientStock(ctx context.Context, ingredientID string, stock decimal.Decimal) error
	InsertMovement(ctx context.Context, m *domain.StockMovement) error
	MovementExists(ctx context.Context, ingredientID, reference string, refType domain.ReferenceType) (bool, error)
	NextBatchSequence(ctx context.Context, ingredientID string, day time.Time) (int, error)
	SumBatchRemainders(ctx context.Context, ingredientID string) (decimal.Decimal, error)
}
