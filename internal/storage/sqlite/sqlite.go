package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/FranksOps/rankwatch/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

// ErrNoRuns is returned by Load when the database holds no report.
var ErrNoRuns = errors.New("sqlite: no stored runs")

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS report_runs (
	run_id TEXT PRIMARY KEY,
	generated_at DATETIME NOT NULL,
	columns TEXT NOT NULL,
	highlight_column TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS report_rows (
	run_id TEXT NOT NULL REFERENCES report_runs(run_id),
	position INTEGER NOT NULL,
	cells TEXT NOT NULL,
	highlight TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, position)
);
`

// New creates a SQLite-backed storage.Backend. Every Save appends a run;
// Load returns the most recent one.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, table *storage.Table) error {
	if table.RunID == "" {
		return errors.New("sqlite: table has no run id")
	}
	columns, err := json.Marshal(table.Columns)
	if err != nil {
		return fmt.Errorf("sqlite: marshal columns: %w", err)
	}
	generated := table.GeneratedAt
	if generated.IsZero() {
		generated = time.Now().UTC()
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO report_runs (run_id, generated_at, columns, highlight_column) VALUES (?, ?, ?, ?)`,
		table.RunID, generated, string(columns), table.HighlightColumn,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO report_rows (run_id, position, cells, highlight) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare: %w", err)
	}
	defer stmt.Close()

	for i, r := range table.Rows {
		cells, err := json.Marshal(r.Values)
		if err != nil {
			return fmt.Errorf("sqlite: marshal row: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, table.RunID, i, string(cells), r.Highlight.String()); err != nil {
			return fmt.Errorf("sqlite: insert row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Load(ctx context.Context) (*storage.Table, error) {
	var (
		table   storage.Table
		columns string
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT run_id, generated_at, columns, highlight_column FROM report_runs
		 ORDER BY generated_at DESC, rowid DESC LIMIT 1`,
	).Scan(&table.RunID, &table.GeneratedAt, &columns, &table.HighlightColumn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: query run: %w", err)
	}
	if err := json.Unmarshal([]byte(columns), &table.Columns); err != nil {
		return nil, fmt.Errorf("sqlite: decode columns: %w", err)
	}

	rows, err := b.db.QueryContext(ctx,
		`SELECT cells, highlight FROM report_rows WHERE run_id = ? ORDER BY position`, table.RunID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query rows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cells, highlight string
		if err := rows.Scan(&cells, &highlight); err != nil {
			return nil, fmt.Errorf("sqlite: scan row: %w", err)
		}
		var r storage.Row
		if err := json.Unmarshal([]byte(cells), &r.Values); err != nil {
			return nil, fmt.Errorf("sqlite: decode row: %w", err)
		}
		r.Highlight = storage.ParseHighlight(highlight)
		table.Rows = append(table.Rows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate rows: %w", err)
	}

	table.Normalize()
	return &table, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
