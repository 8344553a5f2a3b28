// Package query rewrites ambiguous keywords into clearer search queries.
package query

import "strings"

// DefaultAmbiguous maps bare exam acronyms to queries that rank exam pages
// rather than unrelated meanings of the acronym.
var DefaultAmbiguous = map[string]string{
	"cat":  "CAT exam",
	"gmat": "GMAT exam",
	"gre":  "GRE exam",
}

// Disambiguator is a static keyword -> query lookup. It is safe for
// concurrent use once built.
type Disambiguator struct {
	table map[string]string
}

// NewDisambiguator builds a lookup from table. Keys are trimmed and
// lower-cased; entries with blank keys or replacements are dropped.
func NewDisambiguator(table map[string]string) *Disambiguator {
	d := &Disambiguator{table: make(map[string]string, len(table))}
	for k, v := range table {
		k = normalize(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		d.table[k] = v
	}
	return d
}

// Rewrite returns the configured replacement for keyword, or keyword itself,
// untrimmed, when there is none.
func (d *Disambiguator) Rewrite(keyword string) string {
	if d == nil {
		return keyword
	}
	if q, ok := d.table[normalize(keyword)]; ok {
		return q
	}
	return keyword
}

// Len returns the number of entries.
func (d *Disambiguator) Len() int {
	if d == nil {
		return 0
	}
	return len(d.table)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
