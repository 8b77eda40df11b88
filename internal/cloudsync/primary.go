package cloudsync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"github.com/leapstack-labs/schemagraph/pkg/core"
)

// DefaultTable is the remote table holding one row per user.
const DefaultTable = "user_graph_data"

// Primary is the managed write/read path tried before the REST fallback.
type Primary interface {
	Upsert(ctx context.Context, rec core.CloudSyncRecord) error
	// Fetch returns nil with no error when the user has no row yet.
	Fetch(ctx context.Context, userID string) (*core.CloudSyncRecord, error)
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLPrimary talks to the backing Postgres database directly.
type SQLPrimary struct {
	db    *sql.DB
	table string
}

// OpenSQLPrimary opens a pgx connection pool for dsn.
func OpenSQLPrimary(dsn, table string) (*SQLPrimary, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cloud database: %w", err)
	}
	p, err := NewSQLPrimary(db, table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

// NewSQLPrimary wraps an existing connection. An empty table means DefaultTable.
func NewSQLPrimary(db *sql.DB, table string) (*SQLPrimary, error) {
	if table == "" {
		table = DefaultTable
	}
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid cloud table name %q", table)
	}
	return &SQLPrimary{db: db, table: table}, nil
}

// Close closes the connection pool.
func (p *SQLPrimary) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// Upsert inserts or replaces the user's row. Every column is written, so a
// nil field stores NULL.
func (p *SQLPrimary) Upsert(ctx context.Context, rec core.CloudSyncRecord) error {
	args, err := recordArgs(rec)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %[1]s (id, positions, custom_colors, filters, hidden_dbs, hide_isolated, notion_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			positions = EXCLUDED.positions,
			custom_colors = EXCLUDED.custom_colors,
			filters = EXCLUDED.filters,
			hidden_dbs = EXCLUDED.hidden_dbs,
			hide_isolated = EXCLUDED.hide_isolated,
			notion_token = EXCLUDED.notion_token
	`, p.table)

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", p.table, err)
	}
	return nil
}

// Fetch reads the user's row.
func (p *SQLPrimary) Fetch(ctx context.Context, userID string) (*core.CloudSyncRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, positions, custom_colors, filters, hidden_dbs, hide_isolated, notion_token
		FROM %s WHERE id = $1
	`, p.table)

	var (
		rec                                core.CloudSyncRecord
		positions, colors, filters, hidden []byte
		hideIsolated                       sql.NullBool
		token                              sql.NullString
	)
	err := p.db.QueryRowContext(ctx, query, userID).Scan(
		&rec.ID, &positions, &colors, &filters, &hidden, &hideIsolated, &token,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", p.table, err)
	}

	for _, col := range []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"positions", positions, &rec.Positions},
		{"custom_colors", colors, &rec.CustomColors},
		{"filters", filters, &rec.Filters},
		{"hidden_dbs", hidden, &rec.HiddenDBs},
	} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return nil, fmt.Errorf("decode %s: %w", col.name, err)
		}
	}
	if hideIsolated.Valid {
		rec.HideIsolated = &hideIsolated.Bool
	}
	if token.Valid {
		rec.NotionToken = &token.String
	}
	return &rec, nil
}

func recordArgs(rec core.CloudSyncRecord) ([]any, error) {
	args := []any{rec.ID}
	for _, v := range []any{rec.Positions, rec.CustomColors, rec.Filters, rec.HiddenDBs} {
		raw, err := jsonOrNull(v)
		if err != nil {
			return nil, err
		}
		args = append(args, raw)
	}
	if rec.HideIsolated != nil {
		args = append(args, *rec.HideIsolated)
	} else {
		args = append(args, nil)
	}
	if rec.NotionToken != nil {
		args = append(args, *rec.NotionToken)
	} else {
		args = append(args, nil)
	}
	return args, nil
}

// jsonOrNull encodes v, mapping nil maps and slices to SQL NULL.
func jsonOrNull(v any) (any, error) {
	switch x := v.(type) {
	case map[core.TableID]core.Position:
		if x == nil {
			return nil, nil
		}
	case map[core.TableID]string:
		if x == nil {
			return nil, nil
		}
	case []string:
		if x == nil {
			return nil, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode cloud record: %w", err)
	}
	return string(raw), nil
}
