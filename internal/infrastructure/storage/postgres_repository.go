package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"ListingConverter/internal/ports"
)

const (
	conversionsTable = "conversions"

	// DefaultListLimit caps history pages when the caller passes no limit.
	DefaultListLimit = 50
	maxListLimit     = 500
)

// Schema creates the history table. Applied by EnsureSchema on startup.
const Schema = `CREATE TABLE IF NOT EXISTS conversions (
    id                  BIGSERIAL PRIMARY KEY,
    actor_id            TEXT NOT NULL DEFAULT '',
    source_url          TEXT NOT NULL,
    source_marketplace  TEXT NOT NULL DEFAULT '',
    source_product_id   TEXT NOT NULL DEFAULT '',
    title               TEXT NOT NULL DEFAULT '',
    status              TEXT NOT NULL,
    step                TEXT NOT NULL,
    sell_price          NUMERIC(12,2) NOT NULL DEFAULT 0,
    net_profit          NUMERIC(12,2) NOT NULL DEFAULT 0,
    violations          TEXT[] NOT NULL DEFAULT '{}',
    marketplace_item_id TEXT NOT NULL DEFAULT '',
    error_message       TEXT NOT NULL DEFAULT '',
    started_at          TIMESTAMPTZ NOT NULL,
    completed_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS conversions_actor_completed_idx ON conversions (actor_id, completed_at DESC);`

var columns = []string{
	"actor_id", "source_url", "source_marketplace", "source_product_id", "title",
	"status", "step", "sell_price", "net_profit", "violations",
	"marketplace_item_id", "error_message", "started_at", "completed_at",
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresRepository persists conversion history into Postgres.
type PostgresRepository struct {
	db *sql.DB
}

var _ ports.ConversionRepository = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the history table when missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveConversion appends one finished item.
func (r *PostgresRepository) SaveConversion(ctx context.Context, record ports.ConversionRecord) error {
	if r.db == nil {
		return nil
	}

	query, args, err := insertQuery(record)
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert conversion: %w", err)
	}
	return nil
}

// ListConversions returns history rows newest first.
func (r *PostgresRepository) ListConversions(ctx context.Context, filter ports.ConversionFilter) ([]ports.ConversionRecord, error) {
	if r.db == nil {
		return []ports.ConversionRecord{}, nil
	}

	query, args, err := listQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query conversions: %w", err)
	}

	result := make([]ports.ConversionRecord, 0)
	for rows.Next() {
		var rec ports.ConversionRecord
		if err := rows.Scan(
			&rec.ActorID, &rec.SourceURL, &rec.Source, &rec.SourceProductID, &rec.Title,
			&rec.Status, &rec.Step, &rec.SellPrice, &rec.NetProfit, pq.Array(&rec.Violations),
			&rec.MarketplaceItemID, &rec.ErrorMessage, &rec.StartedAt, &rec.CompletedAt,
		); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan conversion: %w", err)
		}
		result = append(result, rec)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

func insertQuery(rec ports.ConversionRecord) (string, []any, error) {
	violations := rec.Violations
	if violations == nil {
		violations = []string{}
	}
	return psql.Insert(conversionsTable).
		Columns(columns...).
		Values(
			rec.ActorID, rec.SourceURL, string(rec.Source), rec.SourceProductID, rec.Title,
			rec.Status, rec.Step, rec.SellPrice, rec.NetProfit, pq.Array(violations),
			rec.MarketplaceItemID, rec.ErrorMessage, rec.StartedAt, rec.CompletedAt,
		).
		ToSql()
}

func listQuery(filter ports.ConversionFilter) (string, []any, error) {
	limit := filter.Limit
	switch {
	case limit == 0:
		limit = DefaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}

	q := psql.Select(columns...).
		From(conversionsTable).
		Where(sq.Eq{"actor_id": filter.ActorID})
	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": filter.Status})
	}
	return q.OrderBy("completed_at DESC", "id DESC").
		Limit(limit).
		Offset(filter.Offset).
		ToSql()
}
