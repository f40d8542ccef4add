package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	// Order events (consumed from the POS)
	EventOrderConfirmed = "order.confirmed"

	// Stock events (published by this service)
	EventBatchReceived = "stock.batch.received"
	EventStockDeducted = "stock.deducted"
	EventWasteRecorded = "stock.waste.recorded"
	EventReconciled    = "stock.reconciled"
	EventAlertRaised   = "stock.alert.raised"
)

// Exchange names
const (
	ExchangeOrderEvents = "order.events"
	ExchangeStockEvents = "stock.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Order events

// OrderLine is one resolved ingredient requirement of a confirmed order.
// The POS resolves menu items through recipes before publishing, so the
// stock service never sees menu-level data.
type OrderLine struct {
	IngredientID string          `json:"ingredient_id"`
	Quantity     decimal.Decimal `json:"quantity"`
}

// OrderConfirmedEvent is consumed when the POS confirms an order.
type OrderConfirmedEvent struct {
	OrderID     string      `json:"order_id"`
	Lines       []OrderLine `json:"lines"`
	ConfirmedBy string      `json:"confirmed_by"`
}

// Stock events

// BatchReceivedEvent is published when a new stock batch is created.
type BatchReceivedEvent struct {
	BatchID      string          `json:"batch_id"`
	IngredientID string          `json:"ingredient_id"`
	BatchNumber  string          `json:"batch_number"`
	Quantity     decimal.Decimal `json:"quantity"`
	CostPerUnit  decimal.Decimal `json:"cost_per_unit"`
	ExpiryDate   *time.Time      `json:"expiry_date,omitempty"`
}

// BatchConsumption is one batch-level slice of a deduction.
type BatchConsumption struct {
	BatchID   string          `json:"batch_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	TotalCost decimal.Decimal `json:"total_cost"`
	Depleted  bool            `json:"depleted"`
}

// StockDeductedEvent is published after a committed deduction.
type StockDeductedEvent struct {
	IngredientID  string             `json:"ingredient_id"`
	Reference     string             `json:"reference"`
	ReferenceType string             `json:"reference_type"`
	Quantity      decimal.Decimal    `json:"quantity"`
	TotalCost     decimal.Decimal    `json:"total_cost"`
	Shortage      decimal.Decimal    `json:"shortage"`
	NewStock      decimal.Decimal    `json:"new_stock"`
	Batches       []BatchConsumption `json:"batches"`
	PerformedBy   string             `json:"performed_by"`
}

// WasteRecordedEvent is published when stock is written off as waste.
type WasteRecordedEvent struct {
	IngredientID string          `json:"ingredient_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	Reason       string          `json:"reason"`
	PerformedBy  string          `json:"performed_by"`
}

// ReconciledEvent is published per adjusted ingredient after a reconciliation.
type ReconciledEvent struct {
	ReconciliationID string          `json:"reconciliation_id"`
	IngredientID     string          `json:"ingredient_id"`
	SystemCount      decimal.Decimal `json:"system_count"`
	PhysicalCount    decimal.Decimal `json:"physical_count"`
	Difference       decimal.Decimal `json:"difference"`
	PerformedBy      string          `json:"performed_by"`
}

// AlertRaisedEvent is published for each alert derived from post-commit state.
// Delivery (telegram, push, email) is owned by the notification dispatcher.
type AlertRaisedEvent struct {
	AlertType    string `json:"alert_type"`
	Severity     string `json:"severity"`
	Message      string `json:"message"`
	IngredientID string `json:"ingredient_id"`
	BatchID      string `json:"batch_id,omitempty"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), time.Now().Nanosecond()%10000)
}
