// Package consumers wires POS order events into the deduction engine.
package consumers

import (
	"context"

	"github.com/cafeflow/cafeflow-backend/internal/stock/service"
	"github.com/cafeflow/cafeflow-backend/pkg/logger"
	"github.com/cafeflow/cafeflow-backend/pkg/messaging"
)

// OrderEventConsumer consumes order events and deducts stock for confirmed
// orders. Deduction is idempotent on the order ID, so redelivered messages
// are safe.
type OrderEventConsumer struct {
	consumer *messaging.Consumer
	engine   *service.DeductionEngine
	logger   *logger.Logger
}

// NewOrderEventConsumer creates a new order event consumer
func NewOrderEventConsumer(rmq *messaging.RabbitMQ, engine *service.DeductionEngine, log *logger.Logger) (*OrderEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "stock-service.order-events", log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeOrderEvents, "order.#"); err != nil {
		return nil, err
	}

	c := &OrderEventConsumer{
		consumer: consumer,
		engine:   engine,
		logger:   log,
	}

	consumer.RegisterHandler(messaging.EventOrderConfirmed, c.handleOrderConfirmed)

	return c, nil
}

// Start starts consuming messages
func (c *OrderEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *OrderEventConsumer) handleOrderConfirmed(ctx context.Context, event *messaging.Event) error {
	var data messaging.OrderConfirmedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().
		Str("order_id", data.OrderID).
		Int("lines", len(data.Lines)).
		Msg("received order confirmed event")

	lines := make([]service.OrderLine, 0, len(data.Lines))
	for _, line := range data.Lines {
		lines = append(lines, service.OrderLine{
			IngredientID: line.IngredientID,
			Quantity:     line.Quantity,
		})
	}

	performedBy := data.ConfirmedBy
	if performedBy == "" {
		performedBy = "system"
	}

	result, err := c.engine.DeductForOrder(ctx, service.OrderDeductionRequest{
		Reference:   data.OrderID,
		Lines:       lines,
		PerformedBy: performedBy,
	})
	if err != nil {
		return err
	}

	// Insufficient stock on a confirmed order is an operational problem, not
	// a message processing failure. Nacking would only redeliver it.
	for ingredientID, appErr := range result.Failures {
		c.logger.Warn().
			Str("order_id", data.OrderID).
			Str("ingredient_id", ingredientID).
			Str("code", appErr.Code).
			Msg("order line could not be deducted")
	}

	return nil
}
