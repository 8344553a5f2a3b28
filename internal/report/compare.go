package report

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FranksOps/rankwatch/internal/analyzer"
	"github.com/FranksOps/rankwatch/internal/storage"
)

// Columns added by Compare, in insertion order after the rank column.
const (
	ColumnPreviousRank = "previous_rank"
	ColumnRankDiff     = "rank_diff"
	ColumnRankChange   = "rank_change"
)

// ErrMissingColumn is returned when a report lacks a required column.
var ErrMissingColumn = errors.New("report: missing column")

// Change is the direction of a keyword's movement between two reports.
type Change int

const (
	// ChangeUnavailable covers a keyword missing from the previous report
	// or a not-found rank on either side.
	ChangeUnavailable Change = iota
	ChangeImproved
	ChangeWorsened
	ChangeUnchanged
)

func (c Change) String() string {
	switch c {
	case ChangeImproved:
		return "Improved"
	case ChangeWorsened:
		return "Worsened"
	case ChangeUnchanged:
		return "No Change"
	default:
		return "N/A"
	}
}

// Highlight maps the change to a cell color.
func (c Change) Highlight() storage.Highlight {
	switch c {
	case ChangeImproved:
		return storage.HighlightGood
	case ChangeWorsened:
		return storage.HighlightBad
	default:
		return storage.HighlightNone
	}
}

// Delta is the comparison outcome for one keyword.
type Delta struct {
	Keyword     string
	Current     analyzer.Rank
	Previous    analyzer.Rank
	HasPrevious bool
	// Diff is Previous - Current; positive means the keyword moved up.
	// Only meaningful when Change is not ChangeUnavailable.
	Diff   int
	Change Change
}

// ComputeDelta compares two ranks. hasPrevious is false when the keyword
// did not exist in the previous report.
func ComputeDelta(keyword string, current, previous analyzer.Rank, hasPrevious bool) Delta {
	d := Delta{
		Keyword:     keyword,
		Current:     current,
		Previous:    previous,
		HasPrevious: hasPrevious,
	}
	if !hasPrevious || !current.Found() || !previous.Found() {
		d.Change = ChangeUnavailable
		return d
	}
	d.Diff = int(previous) - int(current)
	switch {
	case d.Diff > 0:
		d.Change = ChangeImproved
	case d.Diff < 0:
		d.Change = ChangeWorsened
	default:
		d.Change = ChangeUnchanged
	}
	return d
}

// DiffLabel renders Diff with an explicit sign, or "" when unavailable.
func (d Delta) DiffLabel() string {
	if d.Change == ChangeUnavailable {
		return ""
	}
	if d.Diff > 0 {
		return "+" + strconv.Itoa(d.Diff)
	}
	return strconv.Itoa(d.Diff)
}

// ParseRank reads a rank cell. Anything that is not a positive whole number
// (including the not-found label and blanks) is NotFound.
func ParseRank(cell string) analyzer.Rank {
	cell = strings.TrimSpace(cell)
	if n, err := strconv.Atoi(cell); err == nil {
		if n > 0 {
			return analyzer.Rank(n)
		}
		return analyzer.NotFound
	}
	// spreadsheets sometimes hand back "5.0"
	if f, err := strconv.ParseFloat(cell, 64); err == nil && f > 0 && f == math.Trunc(f) {
		return analyzer.Rank(int(f))
	}
	return analyzer.NotFound
}

// DetectRankColumn returns the first "<name>_rank" column, which Builder
// always places right after the keyword column.
func DetectRankColumn(t *storage.Table) (string, error) {
	for _, c := range t.Columns {
		name := strings.ToLower(strings.TrimSpace(c))
		if name == ColumnPreviousRank || !strings.HasSuffix(name, "_rank") {
			continue
		}
		return c, nil
	}
	return "", fmt.Errorf("%w: no *_rank column", ErrMissingColumn)
}

// RequireColumns reports the first of names missing from t.
func RequireColumns(t *storage.Table, names ...string) error {
	for _, n := range names {
		if t.ColumnIndex(n) < 0 {
			return fmt.Errorf("%w %q", ErrMissingColumn, n)
		}
	}
	return nil
}

// Compare left-joins current against previous on keyword (trimmed,
// case-insensitive) and returns a copy of current with previous_rank,
// rank_diff and rank_change inserted right after rankColumn. Rows keep
// their order; each row's Highlight reflects its Change. An empty
// rankColumn is detected from current. The result is a new run with its
// own run id, so it can be appended next to current in the same store.
func Compare(current, previous *storage.Table, rankColumn string) (*storage.Table, []Delta, error) {
	if current == nil || previous == nil {
		return nil, nil, errors.New("report: compare needs two tables")
	}

	cur := withoutDeltaColumns(current)
	if rankColumn == "" {
		var err error
		if rankColumn, err = DetectRankColumn(cur); err != nil {
			return nil, nil, fmt.Errorf("current report: %w", err)
		}
	}

	curKey, curRank := cur.ColumnIndex(ColumnKeyword), cur.ColumnIndex(rankColumn)
	if curKey < 0 {
		return nil, nil, fmt.Errorf("current report: %w %q", ErrMissingColumn, ColumnKeyword)
	}
	if curRank < 0 {
		return nil, nil, fmt.Errorf("current report: %w %q", ErrMissingColumn, rankColumn)
	}

	prevKey, prevRank := previous.ColumnIndex(ColumnKeyword), previous.ColumnIndex(rankColumn)
	if prevKey < 0 {
		return nil, nil, fmt.Errorf("previous report: %w %q", ErrMissingColumn, ColumnKeyword)
	}
	if prevRank < 0 {
		return nil, nil, fmt.Errorf("previous report: %w %q", ErrMissingColumn, rankColumn)
	}

	prevCells := make(map[string]string, len(previous.Rows))
	for _, r := range previous.Rows {
		k := joinKey(r.Value(prevKey))
		if _, seen := prevCells[k]; !seen {
			prevCells[k] = strings.TrimSpace(r.Value(prevRank))
		}
	}

	out := &storage.Table{
		RunID:           uuid.New().String(),
		GeneratedAt:     time.Now().UTC(),
		Columns:         insertAfter(cur.Columns, curRank, ColumnPreviousRank, ColumnRankDiff, ColumnRankChange),
		Rows:            make([]storage.Row, 0, len(cur.Rows)),
		HighlightColumn: cur.Columns[curRank],
	}
	deltas := make([]Delta, 0, len(cur.Rows))

	for _, r := range cur.Rows {
		keyword := r.Value(curKey)
		prevCell, ok := prevCells[joinKey(keyword)]
		d := ComputeDelta(keyword, ParseRank(r.Value(curRank)), ParseRank(prevCell), ok)
		deltas = append(deltas, d)

		values := make([]string, len(cur.Columns))
		copy(values, r.Values)
		out.Rows = append(out.Rows, storage.Row{
			Values:    insertAfter(values, curRank, prevCell, d.DiffLabel(), d.Change.String()),
			Highlight: d.Change.Highlight(),
		})
	}

	return out, deltas, nil
}

func joinKey(keyword string) string {
	return strings.ToLower(strings.TrimSpace(keyword))
}

func insertAfter(s []string, i int, add ...string) []string {
	out := make([]string, 0, len(s)+len(add))
	out = append(out, s[:i+1]...)
	out = append(out, add...)
	return append(out, s[i+1:]...)
}

// withoutDeltaColumns copies t dropping columns a previous Compare added, so
// comparing an already compared report does not stack them.
func withoutDeltaColumns(t *storage.Table) *storage.Table {
	drop := map[string]bool{ColumnPreviousRank: true, ColumnRankDiff: true, ColumnRankChange: true}
	var keep []int
	for i, c := range t.Columns {
		if !drop[strings.ToLower(strings.TrimSpace(c))] {
			keep = append(keep, i)
		}
	}

	out := &storage.Table{
		RunID:       t.RunID,
		GeneratedAt: t.GeneratedAt,
		Columns:     make([]string, 0, len(keep)),
		Rows:        make([]storage.Row, 0, len(t.Rows)),
	}
	for _, i := range keep {
		out.Columns = append(out.Columns, t.Columns[i])
	}
	for _, r := range t.Rows {
		values := make([]string, 0, len(keep))
		for _, i := range keep {
			values = append(values, r.Value(i))
		}
		out.Rows = append(out.Rows, storage.Row{Values: values})
	}
	return out
}
