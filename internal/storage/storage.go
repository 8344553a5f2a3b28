package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Highlight marks a row's highlighted cell in formats that support color.
type Highlight int

const (
	HighlightNone Highlight = iota
	HighlightGood
	HighlightBad
)

// String returns the name used by text formats.
func (h Highlight) String() string {
	switch h {
	case HighlightGood:
		return "good"
	case HighlightBad:
		return "bad"
	default:
		return ""
	}
}

// ParseHighlight is the inverse of String; unknown names map to HighlightNone.
func ParseHighlight(s string) Highlight {
	switch s {
	case "good":
		return HighlightGood
	case "bad":
		return HighlightBad
	default:
		return HighlightNone
	}
}

// Row is one table row. Values line up with Table.Columns.
type Row struct {
	Values    []string
	Highlight Highlight
}

// Table is a flattened report ready for export.
type Table struct {
	RunID       string
	GeneratedAt time.Time
	Columns     []string
	Rows        []Row
	// HighlightColumn names the column whose cell carries Row.Highlight.
	HighlightColumn string
}

// ColumnIndex returns the index of the column named name, or -1.
// Header cells are compared trimmed and case-insensitively.
func (t *Table) ColumnIndex(name string) int {
	want := strings.ToLower(strings.TrimSpace(name))
	for i, c := range t.Columns {
		if strings.ToLower(strings.TrimSpace(c)) == want {
			return i
		}
	}
	return -1
}

// Value returns row's cell for column index i, or "" when the row is short.
func (r Row) Value(i int) string {
	if i < 0 || i >= len(r.Values) {
		return ""
	}
	return r.Values[i]
}

// Normalize pads or truncates every row to the column count.
func (t *Table) Normalize() {
	for i := range t.Rows {
		v := t.Rows[i].Values
		switch {
		case len(v) < len(t.Columns):
			padded := make([]string, len(t.Columns))
			copy(padded, v)
			t.Rows[i].Values = padded
		case len(v) > len(t.Columns):
			t.Rows[i].Values = v[:len(t.Columns)]
		}
	}
}

// Backend stores and loads report tables.
type Backend interface {
	Save(ctx context.Context, table *Table) error
	Load(ctx context.Context) (*Table, error)
	Close() error
}

// SaveAll writes table to every backend concurrently and returns the first
// error. Backends are not closed.
func SaveAll(ctx context.Context, table *Table, backends ...Backend) error {
	g, gCtx := errgroup.WithContext(ctx)
	for _, b := range backends {
		g.Go(func() error {
			if err := b.Save(gCtx, table); err != nil {
				return fmt.Errorf("storage: save: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}
