package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TransferFixture represents test transfer data
type TransferFixture struct {
	ID               string
	State            string
	SourceLocationID string
	DestLocationID   string
	TotalBoxes       int
	Version          int64
	CreatedAt        time.Time
}

// TransferItemFixture represents test transfer line data
type TransferItemFixture struct {
	ID           string
	TransferID   string
	ProductID    string
	QtyRequested int
	QtySent      int
	QtyReceived  int
	CreatedAt    time.Time
}

// ShipmentFixture represents test shipment data
type ShipmentFixture struct {
	ID           string
	TransferID   string
	DeliveryMode string
	PackedBy     string
	PackedAt     time.Time
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

func (f *FixtureFactory) next() int {
	f.sequence++
	return f.sequence
}

// Transfer creates a transfer fixture in the given state
func (f *FixtureFactory) Transfer(state string) *TransferFixture {
	f.next()
	return &TransferFixture{
		ID:               uuid.New().String(),
		State:            state,
		SourceLocationID: uuid.New().String(),
		DestLocationID:   uuid.New().String(),
		Version:          1,
		CreatedAt:        time.Now().UTC(),
	}
}

// Item creates a line fixture on the given transfer
func (f *FixtureFactory) Item(transferID string, qtyRequested int) *TransferItemFixture {
	f.next()
	return &TransferItemFixture{
		ID:           uuid.New().String(),
		TransferID:   transferID,
		ProductID:    uuid.New().String(),
		QtyRequested: qtyRequested,
		CreatedAt:    time.Now().UTC(),
	}
}

// Shipment creates a shipment fixture on the given transfer
func (f *FixtureFactory) Shipment(transferID string) *ShipmentFixture {
	f.next()
	return &ShipmentFixture{
		ID:           uuid.New().String(),
		TransferID:   transferID,
		DeliveryMode: "courier",
		PackedBy:     uuid.New().String(),
		PackedAt:     time.Now().UTC(),
	}
}

// TrackingNumber returns a unique tracking number
func (f *FixtureFactory) TrackingNumber() string {
	return fmt.Sprintf("TRK-%06d", f.next())
}

// Nonce returns a unique client nonce
func (f *FixtureFactory) Nonce() string {
	return fmt.Sprintf("nonce-%d-%s", f.next(), uuid.New().String()[:8])
}
