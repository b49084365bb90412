package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Transfer lifecycle events
	EventTransferPackingStarted = "transfer.packing.started"
	EventTransferPackaged       = "transfer.packaged"
	EventTransferReceived       = "transfer.received"
	EventTransferPartial        = "transfer.partial"

	// Line events
	EventLineUpserted = "transfer.line.upserted"
	EventLineRemoved  = "transfer.line.removed"

	// Discrepancy events
	EventDiscrepancyRaised = "transfer.discrepancy.raised"

	// Operational records
	EventUnified = "transfer.unified"
	EventMetrics = "transfer.metrics"

	// Downstream sync jobs
	EventSyncJob = "transfer.sync"
)

// Exchange names
const (
	ExchangeTransferEvents = "transfer.events"
	ExchangeTransferSync   = "transfer.sync"
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

// GenerateEventID returns a unique event identifier
func GenerateEventID() string {
	return uuid.New().String()
}

// Transfer Events

// PackingStartedEvent is published the first time packing begins on a transfer
type PackingStartedEvent struct {
	TransferID string `json:"transfer_id"`
	StartedBy  string `json:"started_by"`
}

// TransferPackagedEvent is published when a packing submission commits
type TransferPackagedEvent struct {
	TransferID      string   `json:"transfer_id"`
	ShipmentID      string   `json:"shipment_id"`
	DeliveryMode    string   `json:"delivery_mode"`
	BoxCount        int      `json:"box_count"`
	TrackingNumbers []string `json:"tracking_numbers"`
	PackedBy        string   `json:"packed_by"`
}

// TransferReceivedEvent is published when a receiving submission commits
type TransferReceivedEvent struct {
	TransferID string `json:"transfer_id"`
	ReceiptID  string `json:"receipt_id"`
	Complete   bool   `json:"complete"`
	ReceivedBy string `json:"received_by"`
}

// LineUpsertedEvent is published when a requested line is added or merged.
// The legacy staging consumer is driven from this event instead of the old
// best-effort dual write.
type LineUpsertedEvent struct {
	TransferID   string `json:"transfer_id"`
	ItemID       string `json:"item_id"`
	ProductID    string `json:"product_id"`
	QtyRequested int    `json:"qty_requested"`
}

// LineRemovedEvent is published when a requested line is soft-deleted.
type LineRemovedEvent struct {
	TransferID string `json:"transfer_id"`
	ItemID     string `json:"item_id"`
	ProductID  string `json:"product_id"`
}

// DiscrepancyRaisedEvent is published for each shortfall discrepancy
type DiscrepancyRaisedEvent struct {
	TransferID string `json:"transfer_id"`
	ItemID     string `json:"item_id"`
	Type       string `json:"type"`
	Qty        int    `json:"qty"`
}

// UnifiedRecord is the cross-subsystem operational event shape consumed by
// the reporting pipeline.
type UnifiedRecord struct {
	Kind       string         `json:"kind"`
	TransferID string         `json:"transfer_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// MetricsRecord carries per-submission processing metrics
type MetricsRecord struct {
	Operation  string `json:"operation"`
	TransferID string `json:"transfer_id"`
	ItemCount  int    `json:"item_count"`
	QtyTotal   int    `json:"qty_total"`
	ElapsedMS  int64  `json:"elapsed_ms"`
}

// SyncJob is the downstream synchronization job envelope. Consumers
// (legacy staging, storefront caches) are outside this service.
type SyncJob struct {
	JobID      string         `json:"job_id"`
	Kind       string         `json:"kind"` // packaged, received, line_upserted, line_removed
	TransferID string         `json:"transfer_id"`
	Status     string         `json:"status"`
	Payload    map[string]any `json:"payload,omitempty"`
}
