// Package testutil provides testing utilities for RetailOps backend
// services. It includes testcontainers for PostgreSQL, mock factories, and
// common test fixtures.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance
type PostgresContainer struct {
	*postgres.PostgresContainer
	DSN string
}

// PostgresContainerConfig configures the test PostgreSQL container
type PostgresContainerConfig struct {
	Database string
	Username string
	Password string
	Image    string // Optional: defaults to postgres:15-alpine
}

// DefaultPostgresConfig returns sensible defaults for test containers
func DefaultPostgresConfig() PostgresContainerConfig {
	return PostgresContainerConfig{
		Database: "retailops_test",
		Username: "test",
		Password: "test",
		Image:    "postgres:15-alpine",
	}
}

// NewPostgresContainer creates a new PostgreSQL test container.
//
// Usage:
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//	    container, err := testutil.NewPostgresContainer(ctx, testutil.DefaultPostgresConfig())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer container.Terminate(ctx)
//
//	    // Run tests
//	    code := m.Run()
//	    os.Exit(code)
//	}
func NewPostgresContainer(ctx context.Context, cfg PostgresContainerConfig) (*PostgresContainer, error) {
	if cfg.Image == "" {
		cfg.Image = "postgres:15-alpine"
	}
	if cfg.Database == "" {
		cfg.Database = "retailops_test"
	}
	if cfg.Username == "" {
		cfg.Username = "test"
	}
	if cfg.Password == "" {
		cfg.Password = "test"
	}

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(cfg.Image),
		postgres.WithDatabase(cfg.Database),
		postgres.WithUsername(cfg.Username),
		postgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		DSN:               dsn,
	}, nil
}

// Connect returns a sqlx.DB connection to the container
func (c *PostgresContainer) Connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", c.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}
	return db, nil
}

// Terminate stops and removes the container
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	return c.PostgresContainer.Terminate(ctx)
}

// CreateTransferSchema creates the transfer workflow tables. The constraint
// names match what pkg/database maps onto domain errors.
func (c *PostgresContainer) CreateTransferSchema(ctx context.Context, db *sqlx.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS transfers (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			state VARCHAR(20) NOT NULL DEFAULT 'open',
			source_location_id UUID NOT NULL,
			dest_location_id UUID NOT NULL,
			total_boxes INT NOT NULL DEFAULT 0,
			total_weight NUMERIC(10,3) NOT NULL DEFAULT 0,
			version BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			deleted_at TIMESTAMPTZ,
			CONSTRAINT transfers_state_valid CHECK (
				state IN ('open', 'packing', 'packaged', 'sent', 'receiving', 'partial', 'received')
			)
		);

		CREATE TABLE IF NOT EXISTS transfer_items (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			transfer_id UUID NOT NULL REFERENCES transfers(id),
			product_id UUID NOT NULL,
			qty_requested INT NOT NULL,
			qty_sent_total INT NOT NULL DEFAULT 0,
			qty_received_total INT NOT NULL DEFAULT 0,
			created_by UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			deleted_at TIMESTAMPTZ,
			CONSTRAINT transfer_items_qty_nonnegative CHECK (
				qty_requested >= 0 AND qty_sent_total >= 0 AND qty_received_total >= 0
			),
			CONSTRAINT transfer_items_sent_within_requested CHECK (qty_sent_total <= qty_requested),
			CONSTRAINT transfer_items_received_within_sent CHECK (qty_received_total <= qty_sent_total)
		);

		CREATE UNIQUE INDEX IF NOT EXISTS transfer_items_product_uniq
			ON transfer_items (transfer_id, product_id)
			WHERE deleted_at IS NULL;

		CREATE TABLE IF NOT EXISTS shipments (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			transfer_id UUID NOT NULL REFERENCES transfers(id),
			delivery_mode VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'packed',
			contains_nicotine BOOLEAN NOT NULL DEFAULT FALSE,
			packed_by UUID,
			packed_at TIMESTAMPTZ NOT NULL,
			received_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT shipments_delivery_mode_valid CHECK (
				delivery_mode IN ('courier', 'pickup', 'dropoff', 'internal')
			)
		);

		CREATE TABLE IF NOT EXISTS shipment_items (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			shipment_id UUID NOT NULL REFERENCES shipments(id),
			item_id UUID NOT NULL REFERENCES transfer_items(id),
			qty_sent INT NOT NULL,
			CONSTRAINT shipment_items_qty_nonnegative CHECK (qty_sent >= 0)
		);

		CREATE TABLE IF NOT EXISTS parcels (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			shipment_id UUID NOT NULL REFERENCES shipments(id),
			box_number INT NOT NULL,
			tracking_number VARCHAR(255) NOT NULL,
			carrier VARCHAR(50) NOT NULL,
			weight NUMERIC(10,3),
			dimensions VARCHAR(100),
			status VARCHAR(20) NOT NULL DEFAULT 'packed',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS parcel_items (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			parcel_id UUID NOT NULL REFERENCES parcels(id),
			item_id UUID NOT NULL REFERENCES transfer_items(id),
			qty INT NOT NULL,
			qty_received INT NOT NULL DEFAULT 0,
			CONSTRAINT parcel_items_qty_nonnegative CHECK (qty >= 0 AND qty_received >= 0)
		);

		CREATE TABLE IF NOT EXISTS labels (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tracking_number VARCHAR(255) NOT NULL,
			carrier VARCHAR(50) NOT NULL,
			transfer_id UUID NOT NULL REFERENCES transfers(id),
			shipment_id UUID NOT NULL REFERENCES shipments(id),
			parcel_id UUID NOT NULL REFERENCES parcels(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS receipts (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			transfer_id UUID NOT NULL REFERENCES transfers(id),
			received_by UUID,
			received_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS receipt_items (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			receipt_id UUID NOT NULL REFERENCES receipts(id),
			transfer_item_id UUID NOT NULL REFERENCES transfer_items(id),
			qty_received INT NOT NULL,
			condition VARCHAR(20) NOT NULL DEFAULT 'good',
			notes TEXT,
			CONSTRAINT receipt_items_qty_nonnegative CHECK (qty_received >= 0)
		);

		CREATE TABLE IF NOT EXISTS discrepancies (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			transfer_id UUID NOT NULL REFERENCES transfers(id),
			item_id UUID NOT NULL REFERENCES transfer_items(id),
			type VARCHAR(20) NOT NULL,
			qty INT NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'open',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS pack_locks (
			transfer_id UUID PRIMARY KEY REFERENCES transfers(id),
			holder UUID NOT NULL,
			fingerprint VARCHAR(255) NOT NULL DEFAULT '',
			acquired_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			heartbeat_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS idempotency_records (
			key VARCHAR(255) PRIMARY KEY,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			status_code INT,
			response_body JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS audit_trail (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			entity_type VARCHAR(50) NOT NULL,
			entity_id UUID NOT NULL,
			action VARCHAR(100) NOT NULL,
			metadata JSONB,
			performed_by UUID,
			performed_by_name VARCHAR(255),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`

	_, err := db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create transfer schema: %w", err)
	}

	return nil
}
