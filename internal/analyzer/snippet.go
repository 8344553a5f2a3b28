package analyzer

import "github.com/FranksOps/rankwatch/internal/serp"

// SnippetInfo summarizes the featured snippet and People Also Ask blocks of
// a results page with respect to one domain.
type SnippetInfo struct {
	SnippetExists   bool
	PAAExists       bool
	TargetInSnippet bool
	TargetInPAA     bool
	// Links are the snippet and PAA source links actually inspected, in
	// inspection order.
	Links []string
}

// TargetFeatured reports whether the domain appears in either block.
func (s SnippetInfo) TargetFeatured() bool {
	return s.TargetInSnippet || s.TargetInPAA
}

// DetectSnippets checks the answer box link, then each related question's
// source link, stopping at the first related question owned by domain.
func DetectSnippets(resp *serp.Response, domain string, mode MatchMode) SnippetInfo {
	var info SnippetInfo
	if resp == nil {
		return info
	}

	if resp.AnswerBox != nil && resp.AnswerBox.Link != "" {
		info.SnippetExists = true
		info.Links = append(info.Links, resp.AnswerBox.Link)
		info.TargetInSnippet = mode.MatchesURL(resp.AnswerBox.Link, domain)
	}

	info.PAAExists = len(resp.RelatedQuestions) > 0
	for _, q := range resp.RelatedQuestions {
		if q.Link == "" {
			continue
		}
		info.Links = append(info.Links, q.Link)
		if mode.MatchesURL(q.Link, domain) {
			info.TargetInPAA = true
			break
		}
	}
	return info
}
