package csvbackend

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/FranksOps/rankwatch/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	path string
}

// New creates a CSV-backed storage.Backend. The file is only touched by Save
// and Load; Save replaces any existing content.
func New(filePath string) (storage.Backend, error) {
	if filePath == "" {
		return nil, errors.New("csvbackend: path is required")
	}
	return &csvBackend{path: filePath}, nil
}

func (b *csvBackend) Save(ctx context.Context, table *storage.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.Create(b.path)
	if err != nil {
		return fmt.Errorf("csvbackend: create %s: %w", b.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(table.Columns); err != nil {
		return fmt.Errorf("csvbackend: write header: %w", err)
	}
	for _, row := range table.Rows {
		if err := w.Write(padded(row.Values, len(table.Columns))); err != nil {
			return fmt.Errorf("csvbackend: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csvbackend: flush: %w", err)
	}
	return f.Close()
}

func (b *csvBackend) Load(ctx context.Context) (*storage.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.Open(b.path)
	if err != nil {
		return nil, fmt.Errorf("csvbackend: open %s: %w", b.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	// rows edited by hand in a spreadsheet may lose trailing cells
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return &storage.Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csvbackend: read header: %w", err)
	}

	table := &storage.Table{Columns: trimBOM(header)}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvbackend: read row: %w", err)
		}
		table.Rows = append(table.Rows, storage.Row{Values: record})
	}
	table.Normalize()
	return table, nil
}

func (b *csvBackend) Close() error {
	return nil
}

func padded(values []string, n int) []string {
	if len(values) >= n {
		return values[:n]
	}
	out := make([]string, n)
	copy(out, values)
	return out
}

func trimBOM(header []string) []string {
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return header
}
