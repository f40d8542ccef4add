// Package testutil provides testing utilities for CafeFlow backend services:
// a testcontainers PostgreSQL instance with the stock schema, sqlmock
// wrappers for repository unit tests, and common fixtures.
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
		Database: "cafeflow_test",
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
		cfg.Database = "cafeflow_test"
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

// CreateStockSchema creates the stock ledger tables. Mirrors the production
// migrations for the stock service.
func (c *PostgresContainer) CreateStockSchema(ctx context.Context, db *sqlx.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS ingredients (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name VARCHAR(120) NOT NULL,
			unit VARCHAR(20) NOT NULL,
			current_stock NUMERIC(14,4) NOT NULL DEFAULT 0,
			min_stock NUMERIC(14,4) NOT NULL DEFAULT 0,
			max_stock NUMERIC(14,4) NOT NULL DEFAULT 0,
			cost_per_unit NUMERIC(14,4) NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT ingredients_name UNIQUE (name)
		);

		CREATE TABLE IF NOT EXISTS stock_batches (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			ingredient_id UUID NOT NULL REFERENCES ingredients(id),
			batch_number VARCHAR(60) NOT NULL,
			initial_quantity NUMERIC(14,4) NOT NULL,
			remaining_quantity NUMERIC(14,4) NOT NULL,
			cost_per_unit NUMERIC(14,4) NOT NULL,
			received_date TIMESTAMPTZ NOT NULL,
			expiry_date TIMESTAMPTZ,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT batch_number UNIQUE (ingredient_id, batch_number),
			CONSTRAINT quantity_positive CHECK (initial_quantity > 0 AND remaining_quantity >= 0),
			CONSTRAINT remaining_within_initial CHECK (remaining_quantity <= initial_quantity),
			CONSTRAINT status_valid CHECK (status IN ('active', 'consumed', 'expired'))
		);

		CREATE INDEX IF NOT EXISTS idx_stock_batches_fifo
			ON stock_batches (ingredient_id, received_date, created_at)
			WHERE status = 'active' AND remaining_quantity > 0;

		CREATE TABLE IF NOT EXISTS stock_movements (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			ingredient_id UUID NOT NULL REFERENCES ingredients(id),
			batch_id UUID REFERENCES stock_batches(id),
			movement_type VARCHAR(20) NOT NULL,
			quantity NUMERIC(14,4) NOT NULL,
			unit_cost NUMERIC(14,4) NOT NULL DEFAULT 0,
			total_cost NUMERIC(14,4) NOT NULL DEFAULT 0,
			reference VARCHAR(120) NOT NULL,
			reference_type VARCHAR(20) NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			performed_by VARCHAR(120) NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT movement_type_valid CHECK (movement_type IN ('stock_in', 'stock_out', 'waste', 'adjustment')),
			CONSTRAINT movement_quantity_positive CHECK (quantity > 0)
		);

		CREATE INDEX IF NOT EXISTS idx_stock_movements_ingredient
			ON stock_movements (ingredient_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_stock_movements_reference
			ON stock_movements (ingredient_id, reference, reference_type);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create stock schema: %w", err)
	}
	return nil
}

// TruncateStockTables empties all stock tables between tests.
func (c *PostgresContainer) TruncateStockTables(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `TRUNCATE stock_movements, stock_batches, ingredients CASCADE`)
	return err
}
