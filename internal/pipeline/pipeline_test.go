package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/FranksOps/rankwatch/internal/analyzer"
	"github.com/FranksOps/rankwatch/internal/config"
	"github.com/FranksOps/rankwatch/internal/query"
	"github.com/FranksOps/rankwatch/internal/report"
	"github.com/FranksOps/rankwatch/internal/serp"
	"github.com/FranksOps/rankwatch/pkg/ratelimit"
)

// fakeProvider answers from a fixed table and records every query.
type fakeProvider struct {
	mu        sync.Mutex
	responses map[string]*serp.Response
	errs      map[string]error
	queries   []string
	times     []time.Time
}

func (f *fakeProvider) Search(ctx context.Context, q string) (*serp.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	f.times = append(f.times, time.Now())
	if err, ok := f.errs[q]; ok {
		return nil, err
	}
	if resp, ok := f.responses[q]; ok {
		return resp, nil
	}
	return &serp.Response{}, nil
}

func results(links ...string) []serp.Result {
	out := make([]serp.Result, 0, len(links))
	for i, l := range links {
		out = append(out, serp.Result{Position: i + 1, Title: fmt.Sprintf("title %d", i+1), Link: l})
	}
	return out
}

func newTestPipeline(t *testing.T, provider serp.Provider, mutate func(*Config)) *Pipeline {
	t.Helper()
	cfg := Config{
		Provider: provider,
		Target:   config.Site{Name: "kollegeapply", Domain: "kollegeapply.com"},
		Competitors: []config.Site{
			{Name: "shiksha", Domain: "shiksha.com"},
			{Name: "collegedunia", Domain: "collegedunia.com"},
		},
		Classifier:      analyzer.NewClassifier(analyzer.DefaultOfficialPatterns),
		ExcludeOfficial: true,
		Disambiguator:   query.NewDisambiguator(query.DefaultAmbiguous),
		MatchMode:       analyzer.MatchContains,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Target: config.Site{Domain: "a.com"}}); err == nil {
		t.Error("expected error without provider")
	}
	if _, err := New(Config{Provider: &fakeProvider{}}); err == nil {
		t.Error("expected error without target domain")
	}
}

func TestProcessKeyword(t *testing.T) {
	fp := &fakeProvider{responses: map[string]*serp.Response{
		"CAT exam": {
			Organic: results(
				"https://en.wikipedia.org/wiki/CAT",
				"https://www.shiksha.com/cat",
				"https://iimcat.ac.in/",
				"https://www.kollegeapply.com/cat",
				"https://kollegeapply.com/cat-2",
			),
			AnswerBox: &serp.AnswerBox{Link: "https://www.shiksha.com/cat"},
			RelatedQuestions: []serp.RelatedQuestion{
				{Question: "q1", Link: "https://other.com/a"},
				{Question: "q2", Link: "https://kollegeapply.com/paa"},
				{Question: "q3", Link: "https://later.com/never-inspected"},
			},
		},
	}}
	p := newTestPipeline(t, fp, func(c *Config) { c.DetectSnippets = true })

	row, err := p.ProcessKeyword(context.Background(), " CAT ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fp.queries[0] != "CAT exam" {
		t.Errorf("expected disambiguated query, got %q", fp.queries[0])
	}
	if row.Keyword != " CAT " || row.Query != "CAT exam" {
		t.Errorf("unexpected keyword/query %q/%q", row.Keyword, row.Query)
	}
	if row.TargetRank != 3 || row.TargetURL != "https://www.kollegeapply.com/cat" {
		t.Errorf("expected rank 3 on the filtered list, got %d %q", row.TargetRank, row.TargetURL)
	}
	if row.Top[0].URL != "https://www.shiksha.com/cat" || row.Top[0].Name != "title 2" || row.Top[2].URL != "https://www.kollegeapply.com/cat" {
		t.Errorf("unexpected top results %+v", row.Top)
	}

	shiksha, _ := row.Competitor("shiksha")
	if shiksha.Rank != 1 || shiksha.Domain != "shiksha.com" {
		t.Errorf("unexpected shiksha rank %+v", shiksha)
	}
	dunia, ok := row.Competitor("collegedunia")
	if !ok || dunia.Rank.Found() || dunia.URL != "" {
		t.Errorf("expected collegedunia not found, got %+v", dunia)
	}

	s := row.Snippet
	if s == nil {
		t.Fatal("expected snippet info")
	}
	if !s.SnippetExists || s.TargetInSnippet || !s.PAAExists || !s.TargetInPAA {
		t.Errorf("unexpected snippet info %+v", s)
	}
	if len(s.Links) != 3 {
		t.Errorf("expected inspection to stop at the first owned question, got %v", s.Links)
	}
}

func TestProcessKeyword_OfficialSitesKept(t *testing.T) {
	fp := &fakeProvider{responses: map[string]*serp.Response{
		"mba": {Organic: results("https://en.wikipedia.org/wiki/MBA", "https://kollegeapply.com/mba")},
	}}
	p := newTestPipeline(t, fp, func(c *Config) { c.ExcludeOfficial = false })

	row, err := p.ProcessKeyword(context.Background(), "mba")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row.TargetRank != 2 {
		t.Errorf("expected rank 2 with official results kept, got %d", row.TargetRank)
	}
	if row.Snippet != nil {
		t.Errorf("snippet detection is off, expected nil snippet")
	}
}

func TestProcessKeyword_ShortCandidateList(t *testing.T) {
	fp := &fakeProvider{responses: map[string]*serp.Response{
		"rare": {Organic: results("https://a.com/")},
	}}
	row, err := newTestPipeline(t, fp, nil).ProcessKeyword(context.Background(), "rare")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	empty := report.TopResult{}
	if row.Top[0].URL != "https://a.com/" || row.Top[1] != empty || row.Top[2] != empty {
		t.Errorf("expected one filled slot and two empty ones, got %+v", row.Top)
	}
	if row.TargetRank.Found() {
		t.Errorf("expected target not found")
	}
}

func TestRun_FailureIsIsolated(t *testing.T) {
	rateLimited := fmt.Errorf("serp: query failed after 5 attempt(s): %w",
		&serp.StatusError{StatusCode: 429})
	fp := &fakeProvider{
		responses: map[string]*serp.Response{
			"mba colleges": {Organic: results("https://kollegeapply.com/mba")},
			"GRE exam":     {Organic: results("https://x.com", "https://kollegeapply.com/gre")},
		},
		errs: map[string]error{"btech": rateLimited},
	}

	var events []Event
	p := newTestPipeline(t, fp, func(c *Config) {
		c.Observer = ObserverFunc(func(e Event) { events = append(events, e) })
	})

	res, err := p.Run(context.Background(), []string{"mba colleges", "btech", "gre"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Rows) != 2 || res.Rows[0].Keyword != "mba colleges" || res.Rows[1].Keyword != "gre" {
		t.Fatalf("unexpected rows %+v", res.Rows)
	}
	if res.Rows[1].TargetRank != 2 {
		t.Errorf("expected gre rank 2, got %d", res.Rows[1].TargetRank)
	}
	if len(res.Failures) != 1 || res.Failures[0].Keyword != "btech" {
		t.Fatalf("unexpected failures %+v", res.Failures)
	}
	if !errors.Is(res.Failures[0], serp.ErrRateLimited) {
		t.Errorf("expected failure to wrap ErrRateLimited, got %v", res.Failures[0])
	}
	if got := res.FailedKeywords(); len(got) != 1 || got[0] != "btech" {
		t.Errorf("unexpected failed keywords %v", got)
	}

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[1].Err == nil || events[1].Row != nil || events[1].Index != 1 || events[1].Total != 3 {
		t.Errorf("unexpected failure event %+v", events[1])
	}
	if events[2].Row == nil || events[2].Query != "GRE exam" {
		t.Errorf("unexpected success event %+v", events[2])
	}
}

func TestRun_PausesBetweenKeywords(t *testing.T) {
	const interval = 30 * time.Millisecond
	fp := &fakeProvider{errs: map[string]error{"b": errors.New("boom")}}
	p := newTestPipeline(t, fp, func(c *Config) { c.Pacer = ratelimit.NewPacer(interval, 0) })

	start := time.Now()
	if _, err := p.Run(context.Background(), []string{"a", "b", "c"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fp.times) != 3 {
		t.Fatalf("expected 3 searches, got %d", len(fp.times))
	}
	if fp.times[0].Sub(start) >= interval {
		t.Errorf("first keyword should not wait")
	}
	for i := 1; i < len(fp.times); i++ {
		if gap := fp.times[i].Sub(fp.times[i-1]); gap < interval {
			t.Errorf("gap %d was %v, expected at least %v", i, gap, interval)
		}
	}
}

func TestRun_ContextCanceled(t *testing.T) {
	fp := &fakeProvider{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := newTestPipeline(t, fp, func(c *Config) {
		c.Observer = ObserverFunc(func(e Event) {
			if e.Index == 0 {
				cancel()
			}
		})
	})

	res, err := p.Run(ctx, []string{"a", "b", "c"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(res.Rows) != 1 || len(fp.queries) != 1 {
		t.Errorf("expected the run to stop after the first keyword, got %d rows, %d searches", len(res.Rows), len(fp.queries))
	}
}
