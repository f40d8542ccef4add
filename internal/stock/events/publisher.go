package events

import (
	"context"

	"github.com/cafeflow/cafeflow-backend/internal/stock/domain"
	"github.com/cafeflow/cafeflow-backend/pkg/logger"
	"github.com/cafeflow/cafeflow-backend/pkg/messaging"
)

// StockEventPublisher publishes stock ledger events. A nil publisher is valid
// and drops everything, so services can run without a broker in tests.
type StockEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewStockEventPublisher creates a new stock event publisher
func NewStockEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*StockEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeStockEvents, "stock-service", log)
	if err != nil {
		return nil, err
	}

	return &StockEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishBatchReceived publishes a batch received event
func (p *StockEventPublisher) PublishBatchReceived(ctx context.Context, b *domain.StockBatch) {
	if p == nil {
		return
	}

	data := messaging.BatchReceivedEvent{
		BatchID:      b.ID,
		IngredientID: b.IngredientID,
		BatchNumber:  b.BatchNumber,
		Quantity:     b.InitialQuantity,
		CostPerUnit:  b.CostPerUnit,
		ExpiryDate:   b.ExpiryDate,
	}

	if err := p.publisher.Publish(ctx, messaging.EventBatchReceived, data); err != nil {
		p.logger.Error().Err(err).Str("batch_id", b.ID).Msg("failed to publish batch received event")
	}
}

// PublishStockDeducted publishes a stock deducted event
func (p *StockEventPublisher) PublishStockDeducted(ctx context.Context, data messaging.StockDeductedEvent) {
	if p == nil {
		return
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockDeducted, data); err != nil {
		p.logger.Error().Err(err).Str("ingredient_id", data.IngredientID).Msg("failed to publish stock deducted event")
	}
}

// PublishWasteRecorded publishes a waste recorded event
func (p *StockEventPublisher) PublishWasteRecorded(ctx context.Context, data messaging.WasteRecordedEvent) {
	if p == nil {
		return
	}

	if err := p.publisher.Publish(ctx, messaging.EventWasteRecorded, data); err != nil {
		p.logger.Error().Err(err).Str("ingredient_id", data.IngredientID).Msg("failed to publish waste recorded event")
	}
}

// PublishReconciled publishes a reconciliation event for one adjusted ingredient
func (p *StockEventPublisher) PublishReconciled(ctx context.Context, data messaging.ReconciledEvent) {
	if p == nil {
		return
	}

	if err := p.publisher.Publish(ctx, messaging.EventReconciled, data); err != nil {
		p.logger.Error().Err(err).Str("ingredient_id", data.IngredientID).Msg("failed to publish reconciled event")
	}
}

// PublishAlertRaised publishes an alert raised event. Delivery to staff
// (telegram, push, dashboards) is owned by downstream consumers.
func (p *StockEventPublisher) PublishAlertRaised(ctx context.Context, alert domain.Alert) {
	if p == nil {
		return
	}

	data := messaging.AlertRaisedEvent{
		AlertType:    string(alert.Type),
		Severity:     string(alert.Severity),
		Message:      alert.Message,
		IngredientID: alert.IngredientID,
		BatchID:      alert.BatchID,
	}

	if err := p.publisher.Publish(ctx, messaging.EventAlertRaised, data); err != nil {
		p.logger.Error().Err(err).Str("ingredient_id", alert.IngredientID).Msg("failed to publish alert raised event")
	}
}
