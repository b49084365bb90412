package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/retailops/retailops-backend/pkg/database"
	"github.com/retailops/retailops-backend/pkg/logger"
)

var (
	// Global test container (shared across all integration tests)
	globalContainer *PostgresContainer
	globalDB        *sqlx.DB
	containerOnce   sync.Once
	containerErr    error
)

// IntegrationSuite provides a base for integration tests with real PostgreSQL
type IntegrationSuite struct {
	Container *PostgresContainer
	RawDB     *sqlx.DB
	DB        *database.DB
	Fixtures  *FixtureFactory
	Logger    *logger.Logger
}

// NewIntegrationSuite creates a new integration test suite.
// Call this in TestMain to set up shared test infrastructure.
//
// Usage:
//
//	var suite *testutil.IntegrationSuite
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//
//	    suite, err := testutil.NewIntegrationSuite(ctx)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer testutil.TerminateContainer(ctx)
//
//	    os.Exit(m.Run())
//	}
func NewIntegrationSuite(ctx context.Context) (*IntegrationSuite, error) {
	container, db, err := getOrCreateContainer(ctx)
	if err != nil {
		return nil, err
	}

	// Create wrapped database using DSN
	log := logger.New("test", "test")
	wrappedDB, err := database.NewWithDSN(container.DSN, log)
	if err != nil {
		return nil, err
	}

	// Create transfer workflow schema
	if err := container.CreateTransferSchema(ctx, db); err != nil {
		return nil, err
	}

	return &IntegrationSuite{
		Container: container,
		RawDB:     db,
		DB:        wrappedDB,
		Fixtures:  NewFixtureFactory(),
		Logger:    log,
	}, nil
}

// getOrCreateContainer returns the shared test container
func getOrCreateContainer(ctx context.Context) (*PostgresContainer, *sqlx.DB, error) {
	containerOnce.Do(func() {
		globalContainer, containerErr = NewPostgresContainer(ctx, DefaultPostgresConfig())
		if containerErr != nil {
			return
		}
		globalDB, containerErr = globalContainer.Connect(ctx)
	})

	return globalContainer, globalDB, containerErr
}

// SeedTransfer inserts a transfer fixture plus its line fixtures and
// registers a cleanup that removes everything written against it.
func (s *IntegrationSuite) SeedTransfer(t *testing.T, ctx context.Context, transfer *TransferFixture, items ...*TransferItemFixture) {
	t.Helper()

	_, err := s.RawDB.ExecContext(ctx, `
		INSERT INTO transfers (id, state, source_location_id, dest_location_id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, transfer.ID, transfer.State, transfer.SourceLocationID, transfer.DestLocationID, transfer.Version, transfer.CreatedAt)
	if err != nil {
		t.Fatalf("failed to seed transfer: %v", err)
	}

	for _, item := range items {
		_, err := s.RawDB.ExecContext(ctx, `
			INSERT INTO transfer_items (id, transfer_id, product_id, qty_requested, qty_sent_total, qty_received_total, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		`, item.ID, item.TransferID, item.ProductID, item.QtyRequested, item.QtySent, item.QtyReceived, item.CreatedAt)
		if err != nil {
			t.Fatalf("failed to seed transfer item: %v", err)
		}
	}

	t.Cleanup(func() {
		s.cleanupTransfer(context.Background(), transfer.ID)
	})
}

func (s *IntegrationSuite) cleanupTransfer(ctx context.Context, transferID string) {
	// Child tables first
	stmts := []string{
		`DELETE FROM labels WHERE transfer_id = $1`,
		`DELETE FROM parcel_items WHERE parcel_id IN (SELECT p.id FROM parcels p JOIN shipments sh ON p.shipment_id = sh.id WHERE sh.transfer_id = $1)`,
		`DELETE FROM parcels WHERE shipment_id IN (SELECT id FROM shipments WHERE transfer_id = $1)`,
		`DELETE FROM shipment_items WHERE shipment_id IN (SELECT id FROM shipments WHERE transfer_id = $1)`,
		`DELETE FROM shipments WHERE transfer_id = $1`,
		`DELETE FROM receipt_items WHERE receipt_id IN (SELECT id FROM receipts WHERE transfer_id = $1)`,
		`DELETE FROM receipts WHERE transfer_id = $1`,
		`DELETE FROM discrepancies WHERE transfer_id = $1`,
		`DELETE FROM pack_locks WHERE transfer_id = $1`,
		`DELETE FROM audit_trail WHERE entity_id = $1`,
		`DELETE FROM idempotency_records WHERE key LIKE '%' || $1 || '%'`,
		`DELETE FROM transfer_items WHERE transfer_id = $1`,
		`DELETE FROM transfers WHERE id = $1`,
	}
	for _, stmt := range stmts {
		if _, err := s.RawDB.ExecContext(ctx, stmt, transferID); err != nil {
			fmt.Fprintf(os.Stderr, "test cleanup: %v\n", err)
		}
	}
}

// TerminateContainer terminates the shared container.
// Only call this in TestMain after all tests have completed.
func TerminateContainer(ctx context.Context) {
	if globalContainer != nil {
		globalContainer.Terminate(ctx)
	}
}

// UnitTestSuite provides a base for unit tests with mocked dependencies
type UnitTestSuite struct {
	MockDB   *MockDB
	Fixtures *FixtureFactory
	t        *testing.T
}

// NewUnitTestSuite creates a new unit test suite
func NewUnitTestSuite(t *testing.T) *UnitTestSuite {
	return &UnitTestSuite{
		MockDB:   NewMockDB(t),
		Fixtures: NewFixtureFactory(),
		t:        t,
	}
}

// Cleanup verifies expectations and cleans up
func (s *UnitTestSuite) Cleanup() {
	s.MockDB.ExpectationsWereMet(s.t)
	s.MockDB.Close()
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
