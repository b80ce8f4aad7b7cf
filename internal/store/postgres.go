package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the single table every collection shares. The GIN index
// serves the jsonb containment predicates Query compiles to.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT        NOT NULL,
    ref        TEXT        NOT NULL,
    version    INTEGER     NOT NULL,
    data       JSONB       NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (collection, ref)
);
CREATE INDEX IF NOT EXISTS documents_data_gin ON documents USING GIN (data jsonb_path_ops);`

// PostgresStore persists documents as jsonb rows with an explicit version
// column used for conditional updates.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgres constructs a Postgres-backed store. Callers are expected to have
// applied Schema.
func NewPostgres(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get fetches the current version of a document.
func (s *PostgresStore) Get(ctx context.Context, collection, ref string) (Document, error) {
	const query = `SELECT version, data FROM documents WHERE collection = $1 AND ref = $2`
	doc := Document{Ref: ref}
	if err := s.db.QueryRow(ctx, query, collectionName(collection), ref).Scan(&doc.Version, &doc.Data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("get %s: %w", ref, err)
	}
	return doc, nil
}

// Create inserts a document at version 1.
func (s *PostgresStore) Create(ctx context.Context, collection, ref string, data []byte) error {
	cmd, err := s.db.Exec(ctx, `INSERT INTO documents (collection, ref, version, data)
        VALUES ($1, $2, 1, $3) ON CONFLICT (collection, ref) DO NOTHING`, collectionName(collection), ref, data)
	if err != nil {
		return fmt.Errorf("create %s: %w", ref, err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrExists
	}
	return nil
}

// Update replaces a document only if its stored version is expectedVersion.
func (s *PostgresStore) Update(ctx context.Context, collection, ref string, expectedVersion int, data []byte) error {
	coll := collectionName(collection)

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("update %s: %w", ref, err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	cmd, err := tx.Exec(ctx, `UPDATE documents SET version = $4, data = $5, updated_at = now()
        WHERE collection = $1 AND ref = $2 AND version = $3`, coll, ref, expectedVersion, expectedVersion+1, data)
	if err != nil {
		return fmt.Errorf("update %s: %w", ref, err)
	}
	if cmd.RowsAffected() == 0 {
		var current int
		err := tx.QueryRow(ctx, `SELECT version FROM documents WHERE collection = $1 AND ref = $2`, coll, ref).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("update %s: %w", ref, err)
		}
		return ErrConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("update %s: %w", ref, err)
	}
	return nil
}

// Query returns up to max documents matching q, ordered by ref.
func (s *PostgresStore) Query(ctx context.Context, collection string, q Query, max int) ([]Document, error) {
	where, args, err := compileQuery(q, 2)
	if err != nil {
		return nil, err
	}
	sql := `SELECT ref, version, data FROM documents WHERE collection = $1 AND (` + where + `) ORDER BY ref`
	if max > 0 {
		sql += fmt.Sprintf(" LIMIT %d", max)
	}

	rows, err := s.db.Query(ctx, sql, append([]any{collectionName(collection)}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.Ref, &doc.Version, &doc.Data); err != nil {
			return nil, fmt.Errorf("query scan: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// compileQuery renders q as a boolean SQL expression of jsonb containment
// tests. Placeholders are numbered from first.
func compileQuery(q Query, first int) (string, []any, error) {
	if len(q.Terms) == 0 {
		return "FALSE", nil, nil
	}
	var (
		ors  []string
		args []any
	)
	for _, term := range q.Terms {
		if len(term) == 0 {
			ors = append(ors, "FALSE")
			continue
		}
		var ands []string
		for _, c := range term {
			pattern, err := containment(c)
			if err != nil {
				return "", nil, err
			}
			args = append(args, pattern)
			ands = append(ands, fmt.Sprintf("data @> $%d::jsonb", first+len(args)-1))
		}
		ors = append(ors, "("+strings.Join(ands, " AND ")+")")
	}
	return strings.Join(ors, " OR "), args, nil
}

func containment(c Cond) (string, error) {
	var pattern map[string]any
	if c.Elem == "" {
		pattern = map[string]any{c.Field: c.Value}
	} else {
		pattern = map[string]any{c.Field: []any{map[string]any{c.Elem: c.Value}}}
	}
	b, err := json.Marshal(pattern)
	if err != nil {
		return "", fmt.Errorf("encode query pattern: %w", err)
	}
	return string(b), nil
}
