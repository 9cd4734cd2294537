package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	klog "github.com/Klingon-tech/klingnet-market/internal/log"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	migrate "github.com/rubenv/sql-migrate"
)

// documentMigrations creates the single table every collection shares.
var documentMigrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "0001_documents",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS documents (
					collection TEXT        NOT NULL,
					id         TEXT        NOT NULL,
					body       JSONB       NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
					PRIMARY KEY (collection, id)
				)`,
				`CREATE INDEX IF NOT EXISTS documents_body_idx ON documents USING GIN (body jsonb_path_ops)`,
			},
			Down: []string{`DROP TABLE IF EXISTS documents`},
		},
	},
}

// PostgresRepository implements Repository as JSONB rows in PostgreSQL.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgres connects to PostgreSQL and applies pending migrations.
func NewPostgres(dsn string) (*PostgresRepository, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	migrate.SetTable("market_migrations")
	n, err := migrate.Exec(db.DB, "postgres", documentMigrations, migrate.Up)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	if n > 0 {
		klog.Storage.Info().Int("count", n).Msg("Applied database migrations")
	}
	return NewPostgresWithDB(db), nil
}

// NewPostgresWithDB wraps an open connection without running migrations.
func NewPostgresWithDB(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get returns the raw JSON of a document.
func (p *PostgresRepository) Get(ctx context.Context, collection, id string) ([]byte, error) {
	var body []byte
	err := p.db.GetContext(ctx, &body,
		`SELECT body FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return body, nil
}

// Set creates or replaces a document.
func (p *PostgresRepository) Set(ctx context.Context, collection, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, body) VALUES ($1, $2, $3)
		 ON CONFLICT (collection, id) DO UPDATE SET body = EXCLUDED.body, updated_at = now()`,
		collection, id, data)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

// Update merges fields into an existing document with the jsonb || operator.
func (p *PostgresRepository) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal patch: %w", err)
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE documents SET body = body || $3::jsonb, updated_at = now()
		 WHERE collection = $1 AND id = $2`,
		collection, id, patch)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Query translates q into a SELECT over the collection's rows.
// Field names are bound as parameters, never interpolated.
func (p *PostgresRepository) Query(ctx context.Context, collection string, q Query) ([][]byte, error) {
	query, args := buildSelect(collection, q)
	var rows [][]byte
	if err := p.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	if rows == nil {
		rows = [][]byte{}
	}
	return rows, nil
}

// Close closes the connection pool.
func (p *PostgresRepository) Close() error {
	return p.db.Close()
}

func buildSelect(collection string, q Query) (string, []any) {
	var sb strings.Builder
	args := []any{collection}
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	sb.WriteString("SELECT body FROM documents WHERE collection = $1")
	for _, f := range q.Where {
		field := next(f.Field)
		if f.Value == nil {
			sb.WriteString(" AND body->" + field + " IS NULL")
			continue
		}
		sb.WriteString(" AND body->>" + field + " = " + next(filterText(f.Value)))
	}
	if q.OrderBy != "" {
		sb.WriteString(" ORDER BY body->" + next(q.OrderBy))
		if q.Desc {
			sb.WriteString(" DESC")
		}
	}
	if q.Limit > 0 {
		sb.WriteString(" LIMIT " + next(q.Limit))
	}
	return sb.String(), args
}

// filterText renders a filter value the way ->> renders the stored JSON value.
func filterText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
