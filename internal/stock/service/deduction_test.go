package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/cafeflow/cafeflow-backend/internal/stock/domain"
	"github.com/cafeflow/cafeflow-backend/internal/stock/memstore"
	"github.com/cafeflow/cafeflow-backend/internal/stock/service"
	"github.com/cafeflow/cafeflow-backend/pkg/config"
	"github.com/cafeflow/cafeflow-backend/pkg/errors"
	"github.com/cafeflow/cafeflow-backend/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStockCfg = config.StockConfig{
	ExpiryWarningDays:  7,
	ExpiryUrgentDays:   3,
	ReconcileTolerance: 0.01,
	TxMaxRetries:       3,
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type stack struct {
	store  *memstore.Store
	engine *service.DeductionEngine
	adjust *service.AdjustmentService
	recon  *service.ReconciliationProcessor
	alerts *service.AlertGenerator
}

func newStack(t *testing.T) *stack {
	t.Helper()
	store := memstore.New()
	log := logger.New("stock-service-test", "development")
	alerts := service.NewAlertGenerator(store, testStockCfg)
	engine := service.NewDeductionEngine(store, alerts, nil, log)
	adjust := service.NewAdjustmentService(store, engine, nil, log)
	recon := service.NewReconciliationProcessor(store, nil, testStockCfg, log)
	return &stack{store: store, engine: engine, adjust: adjust, recon: recon, alerts: alerts}
}

func (s *stack) seedIngredient(id, name string, stock, minStock, cost string) {
	s.store.SeedIngredient(domain.Ingredient{
		ID:           id,
		Name:         name,
		Unit:         "ml",
		CurrentStock: dec(stock),
		MinStock:     dec(minStock),
		CostPerUnit:  dec(cost),
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	})
}

func (s *stack) seedBatch(id, ingredientID string, remaining, cost string, received time.Time) {
	s.store.SeedBatch(domain.StockBatch{
		ID:                id,
		IngredientID:      ingredientID,
		BatchNumber:       "SEED-" + id,
		InitialQuantity:   dec(remaining),
		RemainingQuantity: dec(remaining),
		CostPerUnit:       dec(cost),
		ReceivedDate:      received,
		Status:            domain.BatchStatusActive,
		CreatedAt:         received,
		UpdatedAt:         received,
	})
}

// checkInvariant asserts the ingredient aggregate equals the sum of its batch
// remainders.
func checkInvariant(t *testing.T, s *stack, ingredientID string) {
	t.Helper()
	ing, err := s.store.GetIngredient(context.Background(), ingredientID)
	require.NoError(t, err)

	batches, err := s.store.ListBatches(context.Background(), ingredientID)
	require.NoError(t, err)

	sum := decimal.Zero
	for _, b := range batches {
		sum = sum.Add(b.RemainingQuantity)
	}
	assert.True(t, ing.CurrentStock.Equal(sum),
		"aggregate %s != batch sum %s", ing.CurrentStock, sum)
}

func day(d int) time.Time {
	return time.Date(2026, 3, d, 8, 0, 0, 0, time.UTC)
}

func TestDeduct_FIFOAcrossBatches(t *testing.T) {
	s := newStack(t)
	s.seedIngredient("milk", "Milk", "13", "2", "1000")
	s.seedBatch("b1", "milk", "5", "1000", day(1))
	s.seedBatch("b2", "milk", "8", "1200", day(2))

	res, err := s.engine.Deduct(context.Background(), service.DeductionRequest{
		IngredientID: "milk",
		Quantity:     dec("7"),
		Reference:    "order-1",
		PerformedBy:  "staff-1",
	})
	require.NoError(t, err)

	assert.True(t, res.DeductedQty.Equal(dec("7")))
	assert.True(t, res.Shortage.IsZero())
	assert.True(t, res.NewStock.Equal(dec("6")))

	require.Len(t, res.Allocations, 2)
	assert.Equal(t, "b1", res.Allocations[0].BatchID)
	assert.True(t, res.Allocations[0].Depleted)
	assert.Equal(t, "b2", res.Allocations[1].BatchID)
	assert.True(t, res.Allocations[1].Quantity.Equal(dec("2")))

	// Weighted COGS: 5*1000 + 2*1200 = 7400 over 7 units.
	assert.True(t, res.TotalCost.Equal(dec("7400")))
	assert.True(t, res.AverageUnitCost.Equal(dec("7400").DivRound(dec("7"), 6)))

	b1, err := s.store.GetBatch(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusConsumed, b1.Status)
	assert.True(t, b1.RemainingQuantity.IsZero())

	checkInvariant(t, s, "milk")

	movements, err := s.store.ListMovements(context.Background(), service.MovementFilter{Reference: "order-1"})
	require.NoError(t, err)
	require.Len(t, movements, 2)
	for _, m := range movements {
		assert.Equal(t, domain.MovementStockOut, m.MovementType)
		assert.True(t, m.Quantity.IsPositive())
		assert.True(t, m.SignedQuantity().IsNegative())
		assert.Equal(t, "staff-1", m.PerformedBy)
	}
}

func TestDeduct_InsufficientWithoutForce(t *testing.T) {
	s := newStack(t)
	s.seedIngredient("milk", "Milk", "5", "2", "1000")
	s.seedBatch("b1", "milk", "5", "1000", day(1))

	_, err := s.engine.Deduct(context.Background(), service.DeductionRequest{
		IngredientID: "milk",
		Quantity:     dec("9"),
		Reference:    "order-2",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INSUFFICIENT_STOCK", appErr.Code)
	assert.Equal(t, "4", appErr.Details["shortage"])

	// Zero mutations: stock, batch and ledger untouched.
	ing, err := s.store.GetIngredient(context.Background(), "milk")
	require.NoError(t, err)
	assert.True(t, ing.CurrentStock.Equal(dec("5")))

	b1, err := s.store.GetBatch(context.Background(), "b1")
	require.NoError(t, err)
	assert.True(t, b1.RemainingQuantity.Equal(dec("5")))
	assert.Equal(t, domain.BatchStatusActive, b1.Status)

	movements, err := s.store.ListMovements(context.Background(), service.MovementFilter{IngredientID: "milk"})
	require.NoError(t, err)
	assert.Empty(t, movements)
}

func TestDeduct_ForcedPartial(t *testing.T) {
	s := newStack(t)
	s.seedIngredient("milk", "Milk", "5", "2", "1000")
	s.seedBatch("b1", "milk", "5", "1000", day(1))

	res, err := s.engine.Deduct(context.Background(), service.DeductionRequest{
		IngredientID: "milk",
		Quantity:     dec("9"),
		Reference:    "order-3",
		Force:        true,
	})
	require.NoError(t, err)

	assert.True(t, res.DeductedQty.Equal(dec("5")))
	assert.True(t, res.Shortage.Equal(dec("4")))
	assert.True(t, res.NewStock.IsZero())
	checkInvariant(t, s, "milk")
}

func TestDeduct_DuplicateReferenceRejected(t *testing.T) {
	s := newStack(t)
	s.seedIngredient("milk", "Milk", "10", "2", "1000")
	s.seedBatch("b1", "milk", "10", "1000", day(1))

	req := service.DeductionRequest{
		IngredientID: "milk",
		Quantity:     dec("3"),
		Reference:    "order-4",
	}

	_, err := s.engine.Deduct(context.Background(), req)
	require.NoError(t, err)

	_, err = s.engine.Deduct(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))

	// Deducted exactly once.
	ing, err := s.store.GetIngredient(context.Background(), "milk")
	require.NoError(t, err)
	assert.True(t, ing.CurrentStock.Equal(dec("7")))
}

func TestDeduct_SpecificBatchPolicy(t *testing.T) {
	s := newStack(t)
	s.seedIngredient("milk", "Milk", "13", "2", "1000")
	s.seedBatch("b1", "milk", "5", "1000", day(1))
	s.seedBatch("b2", "milk", "8", "1200", day(2))

	res, err := s.engine.Deduct(context.Background(), service.DeductionRequest{
		IngredientID: "milk",
		Quantity:     dec("4"),
		Policy:       domain.PolicySpecificBatch,
		BatchIDs:     []string{"b2"},
		Reference:    "order-5",
	})
	require.NoError(t, err)

	require.Len(t, res.Allocations, 1)
	assert.Equal(t, "b2", res.Allocations[0].BatchID)

	b1, err := s.store.GetBatch(context.Background(), "b1")
	require.NoError(t, err)
	assert.True(t, b1.RemainingQuantity.Equal(dec("5")))
	checkInvariant(t, s, "milk")
}

func TestDeduct_ValidationFailures(t *testing.T) {
	s := newStack(t)

	tests := []struct {
		name string
		req  service.DeductionRequest
	}{
		{"zero quantity", service.DeductionRequest{IngredientID: "milk", Quantity: decimal.Zero, Reference: "r"}},
		{"negative quantity", service.DeductionRequest{IngredientID: "milk", Quantity: dec("-1"), Reference: "r"}},
		{"missing reference", service.DeductionRequest{IngredientID: "milk", Quantity: dec("1")}},
		{"specific batch without ids", service.DeductionRequest{IngredientID: "milk", Quantity: dec("1"), Reference: "r", Policy: domain.PolicySpecificBatch}},
		{"specific batch with duplicate ids", service.DeductionRequest{IngredientID: "milk", Quantity: dec("1"), Reference: "r", Policy: domain.PolicySpecificBatch, BatchIDs: []string{"b1", "b1"}}},
		{"unknown policy", service.DeductionRequest{IngredientID: "milk", Quantity: dec("1"), Reference: "r", Policy: "random"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.engine.Deduct(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrValidation))
		})
	}
}

func TestDeduct_UnknownIngredient(t *testing.T) {
	s := newStack(t)

	_, err := s.engine.Deduct(context.Background(), service.DeductionRequest{
		IngredientID: "nope",
		Quantity:     dec("1"),
		Reference:    "order-6",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestDeduct_LowStockAlertAfterCommit(t *testing.T) {
	s := newStack(t)
	s.seedIngredient("milk", "Milk", "10", "5", "1000")
	s.seedBatch("b1", "milk", "10", "1000", day(1))

	res, err := s.engine.Deduct(context.Background(), service.DeductionRequest{
		IngredientID: "milk",
		Quantity:     dec("6"),
		Reference:    "order-7",
	})
	require.NoError(t, err)

	var types []domain.AlertType
	for _, a := range res.Alerts {
		types = append(types, a.Type)
	}
	assert.Contains(t, types, domain.AlertLowStock)
}

func TestDeduct_BatchDepletedAlert(t *testing.T) {
	s := newStack(t)
	s.seedIngredient("milk", "Milk", "13", "2", "1000")
	s.seedBatch("b1", "milk", "5", "1000", day(1))
	s.seedBatch("b2", "milk", "8", "1200", day(2))

	res, err := s.engine.Deduct(context.Background(), service.DeductionRequest{
		IngredientID: "milk",
		Quantity:     dec("5"),
		Reference:    "order-8",
	})
	require.NoError(t, err)

	found := false
	for _, a := range res.Alerts {
		if a.Type == domain.AlertBatchDepleted && a.BatchID == "b1" {
			found = true
		}
	}
	assert.True(t, found, "expected batch_depleted alert for b1")
}

func TestDeductForOrder_AggregatesLinesPerIngredient(t *testing.T) {
	s := newStack(t)
	s.seedIngredient("milk", "Milk", "10", "2", "1000")
	s.seedBatch("b1", "milk", "10", "1000", day(1))
	s.seedIngredient("beans", "Coffee Beans", "500", "100", "30")
	s.seedBatch("b2", "beans", "500", "30", day(1))

	// Latte and cappuccino both use milk: the engine must deduct 5 once,
	// not 3 and 2 in separate passes.
	res, err := s.engine.DeductForOrder(context.Background(), service.OrderDeductionRequest{
		Reference: "order-9",
		Lines: []service.OrderLine{
			{IngredientID: "milk", Quantity: dec("3")},
			{IngredientID: "beans", Quantity: dec("18")},
			{IngredientID: "milk", Quantity: dec("2")},
		},
		PerformedBy: "staff-1",
	})
	require.NoError(t, err)
	assert.True(t, res.Succeeded())

	require.Contains(t, res.Results, "milk")
	assert.True(t, res.Results["milk"].DeductedQty.Equal(dec("5")))

	// One reference, one pass per ingredient.
	movements, err := s.store.ListMovements(context.Background(), service.MovementFilter{IngredientID: "milk", Reference: "order-9"})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.True(t, movements[0].Quantity.Equal(dec("5")))
	assert.True(t, movements[0].SignedQuantity().Equal(dec("-5")))

	checkInvariant(t, s, "milk")
	checkInvariant(t, s, "beans")
}

func TestDeductForOrder_OneFailureDoesNotAbortSiblings(t *testing.T) {
	s := newStack(t)
	s.seedIngredient("milk", "Milk", "10", "2", "1000")
	s.seedBatch("b1", "milk", "10", "1000", day(1))

	res, err := s.engine.DeductForOrder(context.Background(), service.OrderDeductionRequest{
		Reference: "order-10",
		Lines: []service.OrderLine{
			{IngredientID: "milk", Quantity: dec("3")},
			{IngredientID: "ghost", Quantity: dec("1")},
		},
	})
	require.NoError(t, err)
	assert.False(t, res.Succeeded())

	require.Contains(t, res.Results, "milk")
	require.Contains(t, res.Failures, "ghost")
	assert.Equal(t, "NOT_FOUND", res.Failures["ghost"].Code)

	ing, err := s.store.GetIngredient(context.Background(), "milk")
	require.NoError(t, err)
	assert.True(t, ing.CurrentStock.Equal(dec("7")))
}

func TestDeduct_RacingRequestsNeverOverdraw(t *testing.T) {
	s := newStack(t)
	s.seedIngredient("milk", "Milk", "8", "2", "1000")
	s.seedBatch("b1", "milk", "8", "1000", day(1))

	type outcome struct {
		res *service.DeductionResult
		err error
	}
	results := make(chan outcome, 2)

	for i, ref := range []string{"order-11a", "order-11b"} {
		go func(i int, ref string) {
			res, err := s.engine.Deduct(context.Background(), service.DeductionRequest{
				IngredientID: "milk",
				Quantity:     dec("5"),
				Reference:    ref,
			})
			results <- outcome{res, err}
		}(i, ref)
	}

	deducted := decimal.Zero
	var failures int
	for i := 0; i < 2; i++ {
		o := <-results
		if o.err != nil {
			assert.True(t, errors.Is(o.err, errors.ErrInsufficientStock))
			failures++
			continue
		}
		deducted = deducted.Add(o.res.DeductedQty)
	}

	assert.Equal(t, 1, failures, "exactly one request should fail on 8 units")
	assert.True(t, deducted.Equal(dec("5")))
	checkInvariant(t, s, "milk")

	ing, err := s.store.GetIngredient(context.Background(), "milk")
	require.NoError(t, err)
	assert.True(t, ing.CurrentStock.Equal(dec("3")))
}

func TestPreview_DoesNotMutate(t *testing.T) {
	s := newStack(t)
	s.seedIngredient("milk", "Milk", "13", "2", "1000")
	s.seedBatch("b1", "milk", "5", "1000", day(1))
	s.seedBatch("b2", "milk", "8", "1200", day(2))

	res, err := s.engine.Preview(context.Background(), "milk", dec("7"), domain.PolicyFIFO, nil)
	require.NoError(t, err)

	assert.True(t, res.Sufficient)
	require.Len(t, res.Plan.Allocations, 2)
	assert.True(t, res.Plan.TotalCost.Equal(dec("7400")))

	ing, err := s.store.GetIngredient(context.Background(), "milk")
	require.NoError(t, err)
	assert.True(t, ing.CurrentStock.Equal(dec("13")))

	movements, err := s.store.ListMovements(context.Background(), service.MovementFilter{IngredientID: "milk"})
	require.NoError(t, err)
	assert.Empty(t, movements)
}

func TestPreview_ReportsShortage(t *testing.T) {
	s := newStack(t)
	s.seedIngredient("milk", "Milk", "5", "2", "1000")
	s.seedBatch("b1", "milk", "5", "1000", day(1))

	res, err := s.engine.Preview(context.Background(), "milk", dec("9"), domain.PolicyFIFO, nil)
	require.NoError(t, err)

	assert.False(t, res.Sufficient)
	assert.True(t, res.Plan.Shortage.Equal(dec("4")))
}
