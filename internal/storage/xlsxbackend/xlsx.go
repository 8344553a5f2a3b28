// Package xlsxbackend stores report tables as Excel workbooks.
package xlsxbackend

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/FranksOps/rankwatch/internal/storage"
)

// ensure xlsxBackend implements storage.Backend
var _ storage.Backend = (*xlsxBackend)(nil)

// SheetName is the worksheet Save writes to.
const SheetName = "Rankings"

// Fill colors of highlighted cells.
const (
	GoodFill = "#C6EFCE"
	BadFill  = "#FFC7CE"
)

type xlsxBackend struct {
	mu   sync.Mutex
	path string
}

// New creates an xlsx-backed storage.Backend. Save replaces the workbook;
// Load reads the first worksheet.
func New(filePath string) (storage.Backend, error) {
	if filePath == "" {
		return nil, errors.New("xlsxbackend: path is required")
	}
	return &xlsxBackend{path: filePath}, nil
}

type styles struct {
	header, good, bad int
}

func newStyles(f *excelize.File) (styles, error) {
	var s styles
	var err error
	if s.header, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err != nil {
		return s, err
	}
	if s.good, err = f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{GoodFill}},
	}); err != nil {
		return s, err
	}
	s.bad, err = f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{BadFill}},
	})
	return s, err
}

func (b *xlsxBackend) Save(ctx context.Context, table *storage.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("xlsxbackend: rename sheet: %w", err)
	}
	st, err := newStyles(f)
	if err != nil {
		return fmt.Errorf("xlsxbackend: create styles: %w", err)
	}

	header := make([]any, len(table.Columns))
	for i, c := range table.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("xlsxbackend: write header: %w", err)
	}
	if len(table.Columns) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(table.Columns), 1)
		if err := f.SetCellStyle(SheetName, "A1", last, st.header); err != nil {
			return fmt.Errorf("xlsxbackend: style header: %w", err)
		}
	}

	numeric := make([]bool, len(table.Columns))
	for j, c := range table.Columns {
		numeric[j] = isRankColumn(c)
	}

	highlight := table.ColumnIndex(table.HighlightColumn)
	for i, r := range table.Rows {
		rowNum := i + 2
		cells := make([]any, len(table.Columns))
		for j := range table.Columns {
			cells[j] = cellValue(r.Value(j), numeric[j])
		}
		start, _ := excelize.CoordinatesToCellName(1, rowNum)
		if err := f.SetSheetRow(SheetName, start, &cells); err != nil {
			return fmt.Errorf("xlsxbackend: write row %d: %w", rowNum, err)
		}

		if highlight < 0 || table.HighlightColumn == "" {
			continue
		}
		var style int
		switch r.Highlight {
		case storage.HighlightGood:
			style = st.good
		case storage.HighlightBad:
			style = st.bad
		default:
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(highlight+1, rowNum)
		if err := f.SetCellStyle(SheetName, cell, cell, style); err != nil {
			return fmt.Errorf("xlsxbackend: style %s: %w", cell, err)
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("xlsxbackend: freeze header: %w", err)
	}

	props := &excelize.DocProperties{
		Creator:    "rankwatch",
		Title:      "Keyword rankings",
		Identifier: table.RunID,
	}
	if !table.GeneratedAt.IsZero() {
		props.Created = table.GeneratedAt.UTC().Format(time.RFC3339)
	}
	if err := f.SetDocProps(props); err != nil {
		return fmt.Errorf("xlsxbackend: set properties: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := f.SaveAs(b.path); err != nil {
		return fmt.Errorf("xlsxbackend: save %s: %w", b.path, err)
	}
	return nil
}

// cellValue stores whole numbers in rank columns as numbers so spreadsheets
// sort ranks numerically. Every other cell stays text; keywords like "01"
// must round-trip unchanged.
func cellValue(s string, numeric bool) any {
	if !numeric {
		return s
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return s
}

func isRankColumn(name string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(name)), "_rank")
}

func (b *xlsxBackend) Load(ctx context.Context) (*storage.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := excelize.OpenFile(b.path)
	if err != nil {
		return nil, fmt.Errorf("xlsxbackend: open %s: %w", b.path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("xlsxbackend: %s has no worksheets", b.path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("xlsxbackend: read %s: %w", sheets[0], err)
	}

	table := &storage.Table{}
	if props, err := f.GetDocProps(); err == nil && props != nil {
		table.RunID = props.Identifier
		if ts, err := time.Parse(time.RFC3339, props.Created); err == nil {
			table.GeneratedAt = ts
		}
	}
	if len(rows) == 0 {
		return table, nil
	}

	table.Columns = rows[0]
	for _, r := range rows[1:] {
		table.Rows = append(table.Rows, storage.Row{Values: r})
	}
	table.Normalize()
	return table, nil
}

func (b *xlsxBackend) Close() error {
	return nil
}
