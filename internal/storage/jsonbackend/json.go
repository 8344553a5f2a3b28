package jsonbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/FranksOps/rankwatch/internal/storage"
)

// ensure jsonBackend implements storage.Backend
var _ storage.Backend = (*jsonBackend)(nil)

type jsonBackend struct {
	mu   sync.Mutex
	path string
}

type document struct {
	RunID           string    `json:"run_id,omitempty"`
	GeneratedAt     time.Time `json:"generated_at,omitzero"`
	Columns         []string  `json:"columns"`
	HighlightColumn string    `json:"highlight_column,omitempty"`
	Rows            []row     `json:"rows"`
}

type row struct {
	Values    map[string]string `json:"values"`
	Highlight string            `json:"highlight,omitempty"`
}

// New creates a JSON-backed storage.Backend writing a single indented
// document. Save replaces any existing content.
func New(filePath string) (storage.Backend, error) {
	if filePath == "" {
		return nil, errors.New("jsonbackend: path is required")
	}
	return &jsonBackend{path: filePath}, nil
}

func (b *jsonBackend) Save(ctx context.Context, table *storage.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := document{
		RunID:           table.RunID,
		GeneratedAt:     table.GeneratedAt,
		Columns:         table.Columns,
		HighlightColumn: table.HighlightColumn,
		Rows:            make([]row, 0, len(table.Rows)),
	}
	for _, r := range table.Rows {
		values := make(map[string]string, len(table.Columns))
		for i, c := range table.Columns {
			values[c] = r.Value(i)
		}
		doc.Rows = append(doc.Rows, row{Values: values, Highlight: r.Highlight.String()})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("jsonbackend: marshal: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.WriteFile(b.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("jsonbackend: write %s: %w", b.path, err)
	}
	return nil
}

func (b *jsonBackend) Load(ctx context.Context) (*storage.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	data, err := os.ReadFile(b.path)
	b.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("jsonbackend: read %s: %w", b.path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("jsonbackend: decode %s: %w", b.path, err)
	}

	table := &storage.Table{
		RunID:           doc.RunID,
		GeneratedAt:     doc.GeneratedAt,
		Columns:         doc.Columns,
		HighlightColumn: doc.HighlightColumn,
		Rows:            make([]storage.Row, 0, len(doc.Rows)),
	}
	for _, r := range doc.Rows {
		values := make([]string, len(doc.Columns))
		for i, c := range doc.Columns {
			values[i] = r.Values[c]
		}
		table.Rows = append(table.Rows, storage.Row{
			Values:    values,
			Highlight: storage.ParseHighlight(r.Highlight),
		})
	}
	return table, nil
}

func (b *jsonBackend) Close() error {
	return nil
}
