package repository_test

import (
	"context"
	"flag"
	"log"
	"os"
	"testing"
	"time"

	"github.com/cafeflow/cafeflow-backend/internal/stock/domain"
	"github.com/cafeflow/cafeflow-backend/internal/stock/repository"
	"github.com/cafeflow/cafeflow-backend/internal/stock/service"
	"github.com/cafeflow/cafeflow-backend/pkg/errors"
	"github.com/cafeflow/cafeflow-backend/pkg/logger"
	"github.com/cafeflow/cafeflow-backend/pkg/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()

	var err error
	suite, err = testutil.NewIntegrationSuite(ctx)
	if err != nil {
		log.Fatalf("failed to create integration suite: %v", err)
	}
	defer suite.Cleanup(ctx)

	os.Exit(m.Run())
}

func newIntegrationStore(t *testing.T, ctx context.Context) *repository.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	suite.Reset(t, ctx)
	return repository.NewStore(suite.DB, mockStockCfg, logger.New("repository-test", "test"))
}

func seedIngredient(t *testing.T, ctx context.Context, store *repository.Store, name string) *domain.Ingredient {
	t.Helper()
	ing := &domain.Ingredient{
		ID:          uuid.New().String(),
		Name:        name,
		Unit:        "ml",
		MinStock:    decimalFromString(t, "1000"),
		MaxStock:    decimalFromString(t, "20000"),
		CostPerUnit: decimalFromString(t, "0.002"),
		IsActive:    true,
	}
	require.NoError(t, store.CreateIngredient(ctx, ing))
	return ing
}

func TestStore_IngredientRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newIntegrationStore(t, ctx)

	ing := seedIngredient(t, ctx, store, "Whole Milk")

	got, err := store.GetIngredient(ctx, ing.ID)
	require.NoError(t, err)
	assert.Equal(t, "Whole Milk", got.Name)
	assert.True(t, got.CurrentStock.IsZero())

	got.MinStock = decimalFromString(t, "2000")
	require.NoError(t, store.UpdateIngredient(ctx, got))

	updated, err := store.GetIngredient(ctx, ing.ID)
	require.NoError(t, err)
	assert.True(t, updated.MinStock.Equal(decimalFromString(t, "2000")))
}

func TestStore_DuplicateIngredientNameRejected(t *testing.T) {
	ctx := context.Background()
	store := newIntegrationStore(t, ctx)

	seedIngredient(t, ctx, store, "Oat Milk")

	dup := &domain.Ingredient{
		ID:       uuid.New().String(),
		Name:     "Oat Milk",
		Unit:     "ml",
		IsActive: true,
	}
	err := store.CreateIngredient(ctx, dup)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestStore_TransactionalDeductionFlow(t *testing.T) {
	ctx := context.Background()
	store := newIntegrationStore(t, ctx)

	ing := seedIngredient(t, ctx, store, "Espresso Beans")

	// Receive two batches inside one transaction.
	err := store.WithinTx(ctx, func(tx service.LedgerTx) error {
		locked, err := tx.LockIngredient(ctx, ing.ID)
		if err != nil {
			return err
		}

		received := time.Now().UTC().Add(-48 * time.Hour)
		for i, qty := range []string{"5", "8"} {
			seq, err := tx.NextBatchSequence(ctx, ing.ID, received)
			if err != nil {
				return err
			}
			batch := &domain.StockBatch{
				ID:                uuid.New().String(),
				IngredientID:      ing.ID,
				BatchNumber:       service.BatchNumber(locked.Name, received, seq),
				InitialQuantity:   decimalFromString(t, qty),
				RemainingQuantity: decimalFromString(t, qty),
				CostPerUnit:       decimalFromString(t, "30"),
				ReceivedDate:      received.Add(time.Duration(i) * time.Hour),
				Status:            domain.BatchStatusActive,
			}
			if err := tx.InsertBatch(ctx, batch); err != nil {
				return err
			}
		}

		sum, err := tx.SumBatchRemainders(ctx, ing.ID)
		if err != nil {
			return err
		}
		return tx.SetIngredientStock(ctx, ing.ID, sum)
	})
	require.NoError(t, err)

	// Deduct across both batches and verify the persisted state.
	err = store.WithinTx(ctx, func(tx service.LedgerTx) error {
		locked, err := tx.LockIngredient(ctx, ing.ID)
		if err != nil {
			return err
		}

		batches, err := tx.ActiveBatches(ctx, ing.ID)
		if err != nil {
			return err
		}
		require.Len(t, batches, 2)

		plan := domain.PlanAllocation(batches, decimalFromString(t, "7"), domain.PolicyFIFO, nil)
		require.True(t, plan.Shortage.IsZero())

		for _, alloc := range plan.Allocations {
			for _, b := range batches {
				if b.ID != alloc.BatchID {
					continue
				}
				remaining := b.RemainingQuantity.Sub(alloc.Quantity)
				status := domain.BatchStatusActive
				if remaining.IsZero() {
					status = domain.BatchStatusConsumed
				}
				if err := tx.UpdateBatchRemaining(ctx, alloc.BatchID, remaining, status); err != nil {
					return err
				}
			}
			batchID := alloc.BatchID
			movement := &domain.StockMovement{
				ID:            uuid.New().String(),
				IngredientID:  ing.ID,
				BatchID:       &batchID,
				MovementType:  domain.MovementStockOut,
				Quantity:      alloc.Quantity,
				UnitCost:      alloc.UnitCost,
				TotalCost:     alloc.TotalCost,
				Reference:     "order-int-1",
				ReferenceType: domain.ReferenceOrder,
				PerformedBy:   "staff-1",
			}
			if err := tx.InsertMovement(ctx, movement); err != nil {
				return err
			}
		}

		return tx.SetIngredientStock(ctx, ing.ID, locked.CurrentStock.Sub(plan.AllocatedQty))
	})
	require.NoError(t, err)

	got, err := store.GetIngredient(ctx, ing.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentStock.Equal(decimalFromString(t, "6")))

	active, err := store.ListActiveBatches(ctx, ing.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.True(t, active[0].RemainingQuantity.Equal(decimalFromString(t, "6")))

	all, err := store.ListBatches(ctx, ing.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	movements, err := store.ListMovements(ctx, service.MovementFilter{
		IngredientID: ing.ID,
		Reference:    "order-int-1",
	})
	require.NoError(t, err)
	assert.Len(t, movements, 2)
}

func TestStore_MovementExists(t *testing.T) {
	ctx := context.Background()
	store := newIntegrationStore(t, ctx)

	ing := seedIngredient(t, ctx, store, "Vanilla Syrup")

	err := store.WithinTx(ctx, func(tx service.LedgerTx) error {
		exists, err := tx.MovementExists(ctx, ing.ID, "order-42", domain.ReferenceOrder)
		if err != nil {
			return err
		}
		assert.False(t, exists)

		movement := &domain.StockMovement{
			ID:            uuid.New().String(),
			IngredientID:  ing.ID,
			MovementType:  domain.MovementAdjustment,
			Quantity:      decimalFromString(t, "1"),
			Reference:     "order-42",
			ReferenceType: domain.ReferenceOrder,
		}
		if err := tx.InsertMovement(ctx, movement); err != nil {
			return err
		}

		exists, err = tx.MovementExists(ctx, ing.ID, "order-42", domain.ReferenceOrder)
		if err != nil {
			return err
		}
		assert.True(t, exists)

		// Same reference under a different type is a different document.
		exists, err = tx.MovementExists(ctx, ing.ID, "order-42", domain.ReferenceWaste)
		if err != nil {
			return err
		}
		assert.False(t, exists)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_NegativeRemainderRejectedByConstraint(t *testing.T) {
	ctx := context.Background()
	store := newIntegrationStore(t, ctx)

	ing := seedIngredient(t, ctx, store, "Cocoa Powder")

	var batchID string
	err := store.WithinTx(ctx, func(tx service.LedgerTx) error {
		batch := &domain.StockBatch{
			ID:                uuid.New().String(),
			IngredientID:      ing.ID,
			BatchNumber:       "COCO-20260301-001",
			InitialQuantity:   decimalFromString(t, "5"),
			RemainingQuantity: decimalFromString(t, "5"),
			CostPerUnit:       decimalFromString(t, "12"),
			ReceivedDate:      time.Now().UTC(),
			Status:            domain.BatchStatusActive,
		}
		batchID = batch.ID
		return tx.InsertBatch(ctx, batch)
	})
	require.NoError(t, err)

	err = store.WithinTx(ctx, func(tx service.LedgerTx) error {
		return tx.UpdateBatchRemaining(ctx, batchID, decimalFromString(t, "-1"), domain.BatchStatusActive)
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation), "check violation should map to a validation error")
}
