// Package memstore is an in-memory implementation of the service.Ledger
// port. It backs unit tests and local experiments; transactions are
// serialized by a mutex and rolled back by discarding a cloned state, which
// gives the same commit-or-nothing semantics as the Postgres store without a
// database.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cafeflow/cafeflow-backend/internal/stock/domain"
	"github.com/cafeflow/cafeflow-backend/internal/stock/service"
	"github.com/cafeflow/cafeflow-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// Store is an in-memory Ledger.
type Store struct {
	mu    sync.Mutex
	state *state
}

type state struct {
	ingredients map[string]*domain.Ingredient
	batches     map[string]*domain.StockBatch
	movements   []domain.StockMovement
}

// New creates an empty store.
func New() *Store {
	return &Store{
		state: &state{
			ingredients: make(map[string]*domain.Ingredient),
			batches:     make(map[string]*domain.StockBatch),
		},
	}
}

func (s *state) clone() *state {
	c := &state{
		ingredients: make(map[string]*domain.Ingredient, len(s.ingredients)),
		batches:     make(map[string]*domain.StockBatch, len(s.batches)),
		movements:   make([]domain.StockMovement, len(s.movements)),
	}
	for id, ing := range s.ingredients {
		cp := *ing
		c.ingredients[id] = &cp
	}
	for id, b := range s.batches {
		cp := *b
		c.batches[id] = &cp
	}
	copy(c.movements, s.movements)
	return c
}

// SeedIngredient inserts an ingredient directly, bypassing validation.
func (s *Store) SeedIngredient(ing domain.Ingredient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ingredients[ing.ID] = &ing
}

// SeedBatch inserts a batch directly, bypassing validation.
func (s *Store) SeedBatch(b domain.StockBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.batches[b.ID] = &b
}

// GetIngredient implements service.Ledger.
func (s *Store) GetIngredient(ctx context.Context, id string) (*domain.Ingredient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ing, ok := s.state.ingredients[id]
	if !ok {
		return nil, errors.NotFound("ingredient")
	}
	cp := *ing
	return &cp, nil
}

// ListIngredients implements service.Ledger.
func (s *Store) ListIngredients(ctx context.Context, activeOnly bool) ([]domain.Ingredient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Ingredient
	for _, ing := range s.state.ingredients {
		if activeOnly && !ing.IsActive {
			continue
		}
		out = append(out, *ing)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreateIngredient implements service.Ledger.
func (s *Store) CreateIngredient(ctx context.Context, ing *domain.Ingredient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.state.ingredients {
		if strings.EqualFold(existing.Name, ing.Name) {
			return errors.Conflict("ingredient with this name already exists")
		}
	}
	cp := *ing
	s.state.ingredients[ing.ID] = &cp
	return nil
}

// UpdateIngredient implements service.Ledger.
func (s *Store) UpdateIngredient(ctx context.Context, ing *domain.Ingredient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.ingredients[ing.ID]; !ok {
		return errors.NotFound("ingredient")
	}
	cp := *ing
	s.state.ingredients[ing.ID] = &cp
	return nil
}

// GetBatch implements service.Ledger.
func (s *Store) GetBatch(ctx context.Context, id string) (*domain.StockBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.state.batches[id]
	if !ok {
		return nil, errors.NotFound("batch")
	}
	cp := *b
	return &cp, nil
}

// ListBatches implements service.Ledger.
func (s *Store) ListBatches(ctx context.Context, ingredientID string) ([]domain.StockBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.listBatches(ingredientID, false), nil
}

// ListActiveBatches implements service.Ledger.
func (s *Store) ListActiveBatches(ctx context.Context, ingredientID string) ([]domain.StockBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.listBatches(ingredientID, true), nil
}

func (s *state) listBatches(ingredientID string, activeOnly bool) []domain.StockBatch {
	var out []domain.StockBatch
	for _, b := range s.batches {
		if b.IngredientID != ingredientID {
			continue
		}
		if activeOnly && (b.Status != domain.BatchStatusActive || !b.RemainingQuantity.IsPositive()) {
			continue
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReceivedDate.Equal(out[j].ReceivedDate) {
			return out[i].ReceivedDate.Before(out[j].ReceivedDate)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ListMovements implements service.Ledger.
func (s *Store) ListMovements(ctx context.Context, filter service.MovementFilter) ([]domain.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.StockMovement
	for _, m := range s.state.movements {
		if filter.IngredientID != "" && m.IngredientID != filter.IngredientID {
			continue
		}
		if filter.MovementType != "" && m.MovementType != filter.MovementType {
			continue
		}
		if filter.ReferenceType != "" && m.ReferenceType != filter.ReferenceType {
			continue
		}
		if filter.Reference != "" && m.Reference != filter.Reference {
			continue
		}
		if filter.From != nil && m.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && m.CreatedAt.After(*filter.To) {
			continue
		}
		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// WithinTx implements service.Ledger. The mutex serializes transactions, so
// in-memory runs never see serialization conflicts; rollback works by
// mutating a clone and only swapping it in on success.
func (s *Store) WithinTx(ctx context.Context, fn func(tx service.LedgerTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(&memTx{state: working}); err != nil {
		return err
	}

	s.state = working
	return nil
}

type memTx struct {
	state *state
}

func (t *memTx) LockIngredient(ctx context.Context, id string) (*domain.Ingredient, error) {
	ing, ok := t.state.ingredients[id]
	if !ok {
		return nil, errors.NotFound("ingredient")
	}
	cp := *ing
	return &cp, nil
}

func (t *memTx) ActiveBatches(ctx context.Context, ingredientID string) ([]domain.StockBatch, error) {
	return t.state.listBatches(ingredientID, true), nil
}

func (t *memTx) InsertBatch(ctx context.Context, b *domain.StockBatch) error {
	for _, existing := range t.state.batches {
		if existing.IngredientID == b.IngredientID && existing.BatchNumber == b.BatchNumber {
			return errors.Conflict("batch number already exists for this ingredient")
		}
	}
	cp := *b
	t.state.batches[b.ID] = &cp
	return nil
}

func (t *memTx) UpdateBatchRemaining(ctx context.Context, batchID string, remaining decimal.Decimal, status domain.BatchStatus) error {
	b, ok := t.state.batches[batchID]
	if !ok {
		return errors.NotFound("batch")
	}
	if remaining.IsNegative() {
		return errors.Internal("negative batch remainder for batch " + batchID)
	}
	b.RemainingQuantity = remaining
	b.Status = status
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *memTx) SetIngredientStock(ctx context.Context, ingredientID string, stock decimal.Decimal) error {
	ing, ok := t.state.ingredients[ingredientID]
	if !ok {
		return errors.NotFound("ingredient")
	}
	ing.CurrentStock = stock
	ing.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *memTx) InsertMovement(ctx context.Context, m *domain.StockMovement) error {
	t.state.movements = append(t.state.movements, *m)
	return nil
}

func (t *memTx) MovementExists(ctx context.Context, ingredientID, reference string, refType domain.ReferenceType) (bool, error) {
	for _, m := range t.state.movements {
		if m.IngredientID == ingredientID && m.Reference == reference && m.ReferenceType == refType {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) NextBatchSequence(ctx context.Context, ingredientID string, day time.Time) (int, error) {
	count := 0
	y, m, d := day.UTC().Date()
	for _, b := range t.state.batches {
		if b.IngredientID != ingredientID {
			continue
		}
		by, bm, bd := b.ReceivedDate.UTC().Date()
		if by == y && bm == m && bd == d {
			count++
		}
	}
	return count + 1, nil
}

func (t *memTx) SumBatchRemainders(ctx context.Context, ingredientID string) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, b := range t.state.batches {
		if b.IngredientID == ingredientID {
			sum = sum.Add(b.RemainingQuantity)
		}
	}
	return sum, nil
}
