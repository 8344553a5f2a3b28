// Package pipeline runs the per-keyword ranking workflow: disambiguate,
// search, filter, rank and excerpt.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/FranksOps/rankwatch/internal/analyzer"
	"github.com/FranksOps/rankwatch/internal/config"
	"github.com/FranksOps/rankwatch/internal/metrics"
	"github.com/FranksOps/rankwatch/internal/query"
	"github.com/FranksOps/rankwatch/internal/report"
	"github.com/FranksOps/rankwatch/internal/serp"
	"github.com/FranksOps/rankwatch/pkg/ratelimit"
)

// Config wires the components of a Pipeline.
type Config struct {
	Provider    serp.Provider
	Target      config.Site
	Competitors []config.Site

	// Classifier drops official results from the candidates when
	// ExcludeOfficial is set.
	Classifier      *analyzer.Classifier
	ExcludeOfficial bool
	// Disambiguator may be nil, in which case keywords are searched as is.
	Disambiguator  *query.Disambiguator
	DetectSnippets bool
	MatchMode      analyzer.MatchMode

	// Pacer spaces successive keyword searches. Nil means no pause.
	Pacer    *ratelimit.Pacer
	Observer Observer
	Logger   *slog.Logger
}

// Event reports the outcome of one keyword. Exactly one of Row and Err is set.
type Event struct {
	Index   int // 0-based position in the keyword list
	Total   int
	Keyword string
	Query   string
	Row     *report.KeywordRow
	Err     error
}

// Observer is notified after every keyword.
type Observer interface {
	OnKeyword(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnKeyword calls f(e).
func (f ObserverFunc) OnKeyword(e Event) { f(e) }

// KeywordError is a keyword that was skipped.
type KeywordError struct {
	Keyword string
	Err     error
}

func (e KeywordError) Error() string {
	return fmt.Sprintf("keyword %q: %v", e.Keyword, e.Err)
}

func (e KeywordError) Unwrap() error { return e.Err }

// Result holds the rows of a run in keyword order and the keywords that
// failed.
type Result struct {
	Rows     []report.KeywordRow
	Failures []KeywordError
}

// FailedKeywords lists the keywords of Failures.
func (r *Result) FailedKeywords() []string {
	out := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		out = append(out, f.Keyword)
	}
	return out
}

// Pipeline processes keywords one at a time.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// New validates cfg and returns a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Provider == nil {
		return nil, errors.New("pipeline: provider is nil")
	}
	if strings.TrimSpace(cfg.Target.Domain) == "" {
		return nil, errors.New("pipeline: target domain is empty")
	}
	if cfg.MatchMode == "" {
		cfg.MatchMode = analyzer.MatchContains
	}
	if cfg.Classifier == nil {
		cfg.Classifier = analyzer.NewClassifier(analyzer.DefaultOfficialPatterns)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, logger: logger}, nil
}

// ProcessKeyword searches keyword and builds its row. Errors are returned
// unchanged in meaning; the caller decides whether to continue.
func (p *Pipeline) ProcessKeyword(ctx context.Context, keyword string) (report.KeywordRow, error) {
	q := p.cfg.Disambiguator.Rewrite(keyword)
	row := report.KeywordRow{Keyword: keyword, Query: q}

	resp, err := p.cfg.Provider.Search(ctx, q)
	if err != nil {
		return row, err
	}
	if resp == nil {
		resp = &serp.Response{}
	}

	candidates := resp.Organic
	if p.cfg.ExcludeOfficial {
		candidates = p.cfg.Classifier.Filter(candidates)
	}

	mode := p.cfg.MatchMode
	row.TargetRank, row.TargetURL = analyzer.ResolveRank(candidates, p.cfg.Target.Domain, mode)

	for i := 0; i < report.TopN && i < len(candidates); i++ {
		row.Top[i] = report.TopResult{Name: candidates[i].Title, URL: candidates[i].Link}
	}

	row.Competitors = make([]report.CompetitorRank, 0, len(p.cfg.Competitors))
	for _, c := range p.cfg.Competitors {
		rank, link := analyzer.ResolveRank(candidates, c.Domain, mode)
		row.Competitors = append(row.Competitors, report.CompetitorRank{
			Name:   c.Name,
			Domain: c.Domain,
			Rank:   rank,
			URL:    link,
		})
	}

	if p.cfg.DetectSnippets {
		info := analyzer.DetectSnippets(resp, p.cfg.Target.Domain, mode)
		row.Snippet = &info
	}

	p.logger.Debug("keyword processed",
		"keyword", keyword, "query", q, "results", len(resp.Organic), "candidates", len(candidates), "rank", int(row.TargetRank))
	return row, nil
}

// Run processes keywords in order, pausing between searches. A failed
// keyword is logged, reported to the observer and left out of the rows; the
// run continues. Run only returns an error when ctx ends, together with the
// partial result.
func (p *Pipeline) Run(ctx context.Context, keywords []string) (*Result, error) {
	res := &Result{Rows: make([]report.KeywordRow, 0, len(keywords))}

	for i, kw := range keywords {
		if i > 0 {
			if err := p.cfg.Pacer.Wait(ctx); err != nil {
				return res, err
			}
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		row, err := p.ProcessKeyword(ctx, kw)
		ev := Event{Index: i, Total: len(keywords), Keyword: kw, Query: row.Query}
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failures = append(res.Failures, KeywordError{Keyword: kw, Err: err})
			metrics.RecordKeyword("failed", 0)
			p.logger.Error("keyword failed", "keyword", kw, "query", ev.Query, "err", err)
			ev.Err = err
			p.notify(ev)
			continue
		}

		res.Rows = append(res.Rows, row)
		outcome := "not_found"
		if row.TargetRank.Found() {
			outcome = "ranked"
		}
		metrics.RecordKeyword(outcome, int(row.TargetRank))
		ev.Row = &row
		p.notify(ev)
	}

	p.logger.Info("run finished", "keywords", len(keywords), "rows", len(res.Rows), "failed", len(res.Failures))
	return res, nil
}

func (p *Pipeline) notify(e Event) {
	if p.cfg.Observer != nil {
		p.cfg.Observer.OnKeyword(e)
	}
}
