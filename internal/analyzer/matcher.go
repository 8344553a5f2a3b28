package analyzer

import (
	"fmt"
	"strings"

	"github.com/FranksOps/rankwatch/internal/serp"
)

// Rank is a 1-based organic position. NotFound means the domain did not
// appear in the candidate list.
type Rank int

// NotFound is the sentinel rank for domains absent from the results.
const NotFound Rank = 0

// Found reports whether r is a concrete position.
func (r Rank) Found() bool { return r > 0 }

// Label renders r for reports; limit is the number of results requested.
func (r Rank) Label(limit int) string {
	if !r.Found() {
		return NotFoundLabel(limit)
	}
	return fmt.Sprintf("%d", int(r))
}

// NotFoundLabel is the report text for NotFound, e.g. "Not in Top 100".
func NotFoundLabel(limit int) string {
	return fmt.Sprintf("Not in Top %d", limit)
}

// MatchMode decides when a result host counts as the wanted domain.
type MatchMode string

const (
	// MatchContains accepts any host containing the domain string, so
	// "blog.example.com" and "notexample.com" both match "example.com".
	MatchContains MatchMode = "contains"
	// MatchExact accepts only hosts equal to the domain.
	MatchExact MatchMode = "exact"
)

// ParseMatchMode validates a configured mode. Empty means MatchContains.
func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", MatchContains:
		return MatchContains, nil
	case MatchExact:
		return MatchExact, nil
	default:
		return "", fmt.Errorf("analyzer: unknown match mode %q", s)
	}
}

// Matches reports whether host is the wanted domain under mode m.
// Empty hosts and empty domains never match.
func (m MatchMode) Matches(host, domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if host == "" || domain == "" {
		return false
	}
	if m == MatchExact {
		return host == domain
	}
	return strings.Contains(host, domain)
}

// MatchesURL normalizes rawURL and tests it against domain.
func (m MatchMode) MatchesURL(rawURL, domain string) bool {
	return m.Matches(Domain(rawURL), domain)
}

// ResolveRank returns the 1-based position of the first result whose link
// belongs to domain, together with that link. Later occurrences are ignored.
func ResolveRank(results []serp.Result, domain string, mode MatchMode) (Rank, string) {
	for i, r := range results {
		if mode.MatchesURL(r.Link, domain) {
			return Rank(i + 1), r.Link
		}
	}
	return NotFound, ""
}
