package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/rankwatch/internal/analyzer"
)

func TestGenerateSummary(t *testing.T) {
	rows := []KeywordRow{
		{Keyword: "a", TargetRank: 1, Snippet: &analyzer.SnippetInfo{TargetInPAA: true}},
		{Keyword: "b", TargetRank: 5},
		{Keyword: "c", TargetRank: 30},
		{Keyword: "d", TargetRank: analyzer.NotFound},
	}
	deltas := []Delta{
		{Change: ChangeImproved},
		{Change: ChangeImproved},
		{Change: ChangeWorsened},
		{Change: ChangeUnavailable},
	}

	s := GenerateSummary(rows, []string{"e"}, deltas)

	if s.TotalKeywords != 5 || s.Processed != 4 || s.Failed != 1 {
		t.Errorf("unexpected counts %+v", s)
	}
	if s.Ranked != 3 || s.Top3 != 1 || s.Top10 != 2 {
		t.Errorf("unexpected rank buckets %+v", s)
	}
	if s.AverageRank != 12 {
		t.Errorf("expected average 12, got %v", s.AverageRank)
	}
	if s.SnippetOwned != 1 {
		t.Errorf("expected 1 snippet owned, got %d", s.SnippetOwned)
	}
	if !s.Compared || s.Improved != 2 || s.Worsened != 1 || s.Unavailable != 1 {
		t.Errorf("unexpected change counts %+v", s)
	}

	if GenerateSummary(rows, nil, nil).Compared {
		t.Errorf("summary without deltas should not be marked compared")
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, Summary{TotalKeywords: 5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), `"TotalKeywords": 5`) {
		t.Errorf("expected JSON to contain TotalKeywords: 5")
	}
}

func TestWriteText(t *testing.T) {
	s := Summary{
		Target:         "kollegeapply.com",
		TotalKeywords:  5,
		Processed:      4,
		Failed:         1,
		FailedKeywords: []string{"broken kw"},
		Ranked:         2,
		AverageRank:    3.5,
		Compared:       true,
		Improved:       2,
		StartTime:      time.Now(),
		EndTime:        time.Now(),
	}
	var buf bytes.Buffer
	if err := WriteText(&buf, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"Keywords:      5 (4 processed, 1 failed)", "Average Rank:  3.5", "Improved:  2", "broken kw"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected text to contain %q, got:\n%s", want, out)
		}
	}
}

func TestWriteHTML(t *testing.T) {
	s := Summary{
		Target:         "kollegeapply.com",
		Failed:         1,
		FailedKeywords: []string{"<script>"},
	}
	var buf bytes.Buffer
	if err := WriteHTML(&buf, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "<title>Rankwatch Report</title>") {
		t.Errorf("expected HTML title")
	}
	if strings.Contains(out, "<td><script></td>") {
		t.Errorf("keyword was not escaped")
	}
	if !strings.Contains(out, "&lt;script&gt;") {
		t.Errorf("expected escaped keyword")
	}
}
