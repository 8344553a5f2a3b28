package analyzer

import (
	"strings"

	"github.com/FranksOps/rankwatch/internal/serp"
)

// DefaultOfficialPatterns lists reference and government sources excluded
// from competitive ranking by default.
var DefaultOfficialPatterns = []string{
	"wikipedia.org",
	"wikimedia.org",
	"britannica.com",
	".europa.eu",
	".gov.",
	".gov/",
	".nic.in",
	".un.org",
}

// Classifier flags "official" URLs by unanchored, case-insensitive
// substring match against a pattern list. A pattern may therefore also hit
// in a path, e.g. "https://blog.example/wikipedia.org-tips".
type Classifier struct {
	patterns []string
}

// NewClassifier copies and lower-cases patterns; blank ones are dropped.
func NewClassifier(patterns []string) *Classifier {
	c := &Classifier{patterns: make([]string, 0, len(patterns))}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			c.patterns = append(c.patterns, p)
		}
	}
	return c
}

// Patterns returns a copy of the active patterns.
func (c *Classifier) Patterns() []string {
	out := make([]string, len(c.patterns))
	copy(out, c.patterns)
	return out
}

// IsOfficial reports whether any pattern occurs in the lower-cased URL.
func (c *Classifier) IsOfficial(rawURL string) bool {
	if c == nil {
		return false
	}
	u := strings.ToLower(rawURL)
	for _, p := range c.patterns {
		if strings.Contains(u, p) {
			return true
		}
	}
	return false
}

// Filter returns the non-official results in their original order.
func (c *Classifier) Filter(results []serp.Result) []serp.Result {
	out := make([]serp.Result, 0, len(results))
	for _, r := range results {
		if !c.IsOfficial(r.Link) {
			out = append(out, r)
		}
	}
	return out
}
