package service_test

import (
	"context"
	"testing"

	"github.com/cafeflow/cafeflow-backend/internal/stock/domain"
	"github.com/cafeflow/cafeflow-backend/internal/stock/service"
	"github.com/cafeflow/cafeflow-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile_DownwardDifference(t *testing.T) {
	s := newStack(t)
	s.seedIngredient("milk", "Milk", "50", "5", "1000")
	s.seedBatch("b1", "milk", "50", "1000", day(1))

	res, err := s.recon.Reconcile(context.Background(), service.ReconciliationRequest{
		Items: []service.ReconciliationItem{
			{IngredientID: "milk", PhysicalCount: dec("45"), Reason: "shelf count"},
		},
		PerformedBy: "staff-1",
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)

	item := res.Items[0]
	require.Nil(t, item.Error)
	assert.True(t, item.SystemCount.Equal(dec("50")))
	assert.True(t, item.Difference.Equal(dec("-5")))
	assert.True(t, item.AdjustmentApplied)

	ing, err := s.store.GetIngredient(context.Background(), "milk")
	require.NoError(t, err)
	assert.True(t, ing.CurrentStock.Equal(dec("45")))
	checkInvariant(t, s, "milk")

	movements, err := s.store.ListMovements(context.Background(), service.MovementFilter{
		IngredientID: "milk", ReferenceType: domain.ReferenceReconciliation,
	})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, domain.MovementStockOut, movements[0].MovementType)
	assert.True(t, movements[0].Quantity.Equal(dec("5")))
	assert.Equal(t, res.ReconciliationID, movements[0].Reference)
}

func TestReconcile_UpwardDifferenceCreatesBatch(t *testing.T) {
	s := newStack(t)
	s.seedIngredient("milk", "Milk", "50", "5", "1000")
	s.seedBatch("b1", "milk", "50", "1000", day(1))

	res, err := s.recon.Reconcile(context.Background(), service.ReconciliationRequest{
		Items: []service.ReconciliationItem{
			{IngredientID: "milk", PhysicalCount: dec("60"), Reason: "found a crate"},
		},
		PerformedBy: "staff-1",
	})
	require.NoError(t, err)

	item := res.Items[0]
	require.Nil(t, item.Error)
	assert.True(t, item.Difference.Equal(dec("10")))
	assert.True(t, item.AdjustmentApplied)
	require.NotEmpty(t, item.BatchID)

	// Surplus comes in as a fresh batch at the baseline cost.
	batch, err := s.store.GetBatch(context.Background(), item.BatchID)
	require.NoError(t, err)
	assert.True(t, batch.InitialQuantity.Equal(dec("10")))
	assert.True(t, batch.CostPerUnit.Equal(dec("1000")))
	assert.Nil(t, batch.ExpiryDate)

	ing, err := s.store.GetIngredient(context.Background(), "milk")
	require.NoError(t, err)
	assert.True(t, ing.CurrentStock.Equal(dec("60")))
	checkInvariant(t, s, "milk")
}

func TestReconcile_WithinToleranceSkipped(t *testing.T) {
	s := newStack(t)
	s.seedIngredient("milk", "Milk", "50", "5", "1000")
	s.seedBatch("b1", "milk", "50", "1000", day(1))

	res, err := s.recon.Reconcile(context.Background(), service.ReconciliationRequest{
		Items: []service.ReconciliationItem{
			{IngredientID: "milk", PhysicalCount: dec("50.005")},
		},
	})
	require.NoError(t, err)

	item := res.Items[0]
	require.Nil(t, item.Error)
	assert.False(t, item.AdjustmentApplied)

	ing, err := s.store.GetIngredient(context.Background(), "milk")
	require.NoError(t, err)
	assert.True(t, ing.CurrentStock.Equal(dec("50")))

	movements, err := s.store.ListMovements(context.Background(), service.MovementFilter{IngredientID: "milk"})
	require.NoError(t, err)
	assert.Empty(t, movements)
}

func TestReconcile_OneFailingItemDoesNotAbortOthers(t *testing.T) {
	s := newStack(t)
	s.seedIngredient("milk", "Milk", "50", "5", "1000")
	s.seedBatch("b1", "milk", "50", "1000", day(1))

	res, err := s.recon.Reconcile(context.Background(), service.ReconciliationRequest{
		Items: []service.ReconciliationItem{
			{IngredientID: "ghost", PhysicalCount: dec("10")},
			{IngredientID: "milk", PhysicalCount: dec("45")},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)

	byID := map[string]service.ReconciliationItemResult{}
	for _, item := range res.Items {
		byID[item.IngredientID] = item
	}

	require.NotNil(t, byID["ghost"].Error)
	assert.Equal(t, "NOT_FOUND", byID["ghost"].Error.Code)

	require.Nil(t, byID["milk"].Error)
	assert.True(t, byID["milk"].AdjustmentApplied)
}

func TestReconcile_Validation(t *testing.T) {
	s := newStack(t)

	t.Run("empty items", func(t *testing.T) {
		_, err := s.recon.Reconcile(context.Background(), service.ReconciliationRequest{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrValidation))
	})

	t.Run("negative physical count", func(t *testing.T) {
		_, err := s.recon.Reconcile(context.Background(), service.ReconciliationRequest{
			Items: []service.ReconciliationItem{{IngredientID: "milk", PhysicalCount: dec("-1")}},
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrValidation))
	})
}
