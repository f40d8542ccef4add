package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cafeflow/cafeflow-backend/internal/stock/domain"
	"github.com/cafeflow/cafeflow-backend/internal/stock/events"
	"github.com/cafeflow/cafeflow-backend/pkg/messaging"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilPublisher_DropsEverything(t *testing.T) {
	// Services run without a broker in tests; a nil publisher must be a no-op.
	var p *events.StockEventPublisher
	ctx := context.Background()

	p.PublishBatchReceived(ctx, &domain.StockBatch{ID: uuid.New().String()})
	p.PublishStockDeducted(ctx, messaging.StockDeductedEvent{IngredientID: "ing-1"})
	p.PublishWasteRecorded(ctx, messaging.WasteRecordedEvent{IngredientID: "ing-1"})
	p.PublishReconciled(ctx, messaging.ReconciledEvent{IngredientID: "ing-1"})
	p.PublishAlertRaised(ctx, domain.Alert{Type: domain.AlertLowStock})
}

func TestStockDeductedEvent_JSONRoundTrip(t *testing.T) {
	event := messaging.StockDeductedEvent{
		IngredientID:  uuid.New().String(),
		Reference:     "order-1001",
		ReferenceType: "order",
		Quantity:      decimal.RequireFromString("7"),
		TotalCost:     decimal.RequireFromString("7400"),
		Shortage:      decimal.Zero,
		NewStock:      decimal.RequireFromString("3"),
		Batches: []messaging.BatchConsumption{
			{
				BatchID:   uuid.New().String(),
				Quantity:  decimal.RequireFromString("5"),
				UnitCost:  decimal.RequireFromString("1000"),
				TotalCost: decimal.RequireFromString("5000"),
				Depleted:  true,
			},
		},
		PerformedBy: "staff-1",
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var parsed messaging.StockDeductedEvent
	require.NoError(t, json.Unmarshal(data, &parsed))

	assert.Equal(t, event.IngredientID, parsed.IngredientID)
	assert.Equal(t, event.Reference, parsed.Reference)
	assert.True(t, parsed.Quantity.Equal(event.Quantity))
	assert.True(t, parsed.TotalCost.Equal(event.TotalCost))
	require.Len(t, parsed.Batches, 1)
	assert.True(t, parsed.Batches[0].Depleted)
}

func TestBatchReceivedEvent_CarriesExpiry(t *testing.T) {
	expiry := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	batch := &domain.StockBatch{
		ID:              uuid.New().String(),
		IngredientID:    uuid.New().String(),
		BatchNumber:     "MILK-20260831-001",
		InitialQuantity: decimal.RequireFromString("5000"),
		CostPerUnit:     decimal.RequireFromString("0.002"),
		ExpiryDate:      &expiry,
	}

	event := messaging.BatchReceivedEvent{
		BatchID:      batch.ID,
		IngredientID: batch.IngredientID,
		BatchNumber:  batch.BatchNumber,
		Quantity:     batch.InitialQuantity,
		CostPerUnit:  batch.CostPerUnit,
		ExpiryDate:   batch.ExpiryDate,
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var parsed messaging.BatchReceivedEvent
	require.NoError(t, json.Unmarshal(data, &parsed))

	require.NotNil(t, parsed.ExpiryDate)
	assert.True(t, parsed.ExpiryDate.Equal(expiry))
	assert.Equal(t, "MILK-20260831-001", parsed.BatchNumber)
}
