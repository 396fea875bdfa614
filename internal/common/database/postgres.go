// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"template-ingest/internal/common/config"
	"template-ingest/internal/common/errors"

	_ "github.com/lib/pq"
)

// processedColumns are owned by the ingest service. The templates and
// user_roles tables themselves belong to the admin application.
var processedColumns = []string{
	`ALTER TABLE templates ADD COLUMN IF NOT EXISTS html_content TEXT`,
	`ALTER TABLE templates ADD COLUMN IF NOT EXISTS asset_urls JSONB`,
	`ALTER TABLE templates ADD COLUMN IF NOT EXISTS preview_images TEXT[]`,
	`ALTER TABLE templates ADD COLUMN IF NOT EXISTS editable_fields JSONB`,
	`ALTER TABLE templates ADD COLUMN IF NOT EXISTS updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP`,
}

type PostgresClient struct {
	db *sql.DB
}

func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{db: db}, nil
}

// NewPostgresFromDB wraps an already opened handle, e.g. a sqlmock connection.
func NewPostgresFromDB(db *sql.DB) *PostgresClient {
	return &PostgresClient{db: db}
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return errors.NewDatabaseConnectionFailedError(err)
	}
	return nil
}

// EnsureSchema adds the processed-template columns when they are missing.
func (c *PostgresClient) EnsureSchema(ctx context.Context) error {
	for _, stmt := range processedColumns {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return errors.NewQueryExecutionFailedError("ensure_schema", err)
		}
	}
	return nil
}

func (c *PostgresClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *PostgresClient) GetDB() *sql.DB {
	return c.db
}
