package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FranksOps/rankwatch/internal/analyzer"
	"github.com/FranksOps/rankwatch/internal/storage"
)

// ColumnKeyword is the join key of every report.
const ColumnKeyword = "keyword"

// Builder flattens keyword rows into a storage.Table with a fixed column
// layout derived from the configured target and competitors.
type Builder struct {
	TargetName  string
	Competitors []string
	// ResultCount is the number of results requested per query; it appears
	// in the not-found label.
	ResultCount int
	Snippets    bool
}

// ColumnName turns a site name into a column prefix.
func ColumnName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Join(strings.Fields(name), "_")
}

// RankColumn is the name of the target rank column.
func (b Builder) RankColumn() string {
	return ColumnName(b.TargetName) + "_rank"
}

// Columns returns the header in export order.
func (b Builder) Columns() []string {
	target := ColumnName(b.TargetName)
	cols := []string{ColumnKeyword, target + "_rank", target + "_url"}
	for i := 1; i <= TopN; i++ {
		cols = append(cols, fmt.Sprintf("rank_%d_name", i), fmt.Sprintf("rank_%d_url", i))
	}
	for _, c := range b.Competitors {
		c = ColumnName(c)
		cols = append(cols, c+"_rank", c+"_url")
	}
	if b.Snippets {
		cols = append(cols, "snippet_exists", "target_in_snippet", "paa_exists", "target_in_paa", "snippet_links")
	}
	return cols
}

// Build returns a table with one row per keyword, in input order, tagged
// with a fresh run id.
func (b Builder) Build(rows []KeywordRow) *storage.Table {
	t := &storage.Table{
		RunID:       uuid.New().String(),
		GeneratedAt: time.Now().UTC(),
		Columns:     b.Columns(),
		Rows:        make([]storage.Row, 0, len(rows)),
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, storage.Row{Values: b.values(r)})
	}
	return t
}

func (b Builder) values(r KeywordRow) []string {
	limit := b.ResultCount
	v := []string{r.Keyword, r.TargetRank.Label(limit), r.TargetURL}
	for _, top := range r.Top {
		v = append(v, top.Name, top.URL)
	}
	for _, name := range b.Competitors {
		c, ok := r.Competitor(name)
		if !ok {
			v = append(v, analyzer.NotFound.Label(limit), "")
			continue
		}
		v = append(v, c.Rank.Label(limit), c.URL)
	}
	if b.Snippets {
		var s analyzer.SnippetInfo
		if r.Snippet != nil {
			s = *r.Snippet
		}
		v = append(v,
			yesNo(s.SnippetExists),
			yesNo(s.TargetInSnippet),
			yesNo(s.PAAExists),
			yesNo(s.TargetInPAA),
			strings.Join(s.Links, ", "),
		)
	}
	return v
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
