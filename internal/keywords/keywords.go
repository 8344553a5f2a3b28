// Package keywords reads the keyword list a ranking run works through.
package keywords

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Column is the header of the keyword column.
const Column = "KW"

var (
	// ErrMissingColumn is returned when the input has no KW column.
	ErrMissingColumn = errors.New("keywords: missing KW column")
	// ErrUnsupportedFormat is returned for extensions other than xlsx, xlsm and csv.
	ErrUnsupportedFormat = errors.New("keywords: unsupported file format")
)

// Load reads keywords from the KW column of a workbook's first sheet or of a
// CSV file. Blank cells are skipped; order is preserved.
func Load(path string) ([]string, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = readWorkbook(path)
	case ".csv":
		rows, err = readCSV(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return nil, err
	}
	return extract(rows)
}

func extract(rows [][]string) ([]string, error) {
	if len(rows) == 0 {
		return nil, ErrMissingColumn
	}
	col := -1
	for i, h := range rows[0] {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), Column) {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, ErrMissingColumn
	}

	var out []string
	for _, r := range rows[1:] {
		if col >= len(r) || strings.TrimSpace(r[col]) == "" {
			continue
		}
		out = append(out, r[col])
	}
	return out, nil
}

func readWorkbook(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("keywords: open %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("keywords: %s has no worksheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("keywords: read %s: %w", sheets[0], err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("keywords: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("keywords: read %s: %w", path, err)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}
