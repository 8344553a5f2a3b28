package report

import "github.com/FranksOps/rankwatch/internal/analyzer"

// TopN is the number of leading results excerpted into every row.
const TopN = 3

// TopResult is one excerpted leading result. Empty when the candidate list
// was shorter than TopN.
type TopResult struct {
	Name string
	URL  string
}

// CompetitorRank is a competitor's position for one keyword.
type CompetitorRank struct {
	Name   string
	Domain string
	Rank   analyzer.Rank
	URL    string
}

// KeywordRow is the ranking outcome for a single keyword.
type KeywordRow struct {
	Keyword     string
	Query       string
	TargetRank  analyzer.Rank
	TargetURL   string
	Top         [TopN]TopResult
	Competitors []CompetitorRank
	// Snippet is nil when snippet detection is disabled.
	Snippet *analyzer.SnippetInfo
}

// Competitor returns the competitor entry named name.
func (r KeywordRow) Competitor(name string) (CompetitorRank, bool) {
	for _, c := range r.Competitors {
		if c.Name == name {
			return c, true
		}
	}
	return CompetitorRank{}, false
}
