package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/FranksOps/rankwatch/internal/pipeline"
	"github.com/FranksOps/rankwatch/internal/report"
	"github.com/FranksOps/rankwatch/internal/serp"
)

// console prints human-facing progress. It is safe for concurrent use.
type console struct {
	mu    sync.Mutex
	out   io.Writer
	limit int

	good *color.Color
	bad  *color.Color
	warn *color.Color
	dim  *color.Color
	head *color.Color
}

func newConsole(out io.Writer, limit int) *console {
	return &console{
		out:   out,
		limit: limit,
		good:  color.New(color.FgGreen),
		bad:   color.New(color.FgRed),
		warn:  color.New(color.FgYellow),
		dim:   color.New(color.Faint),
		head:  color.New(color.FgCyan, color.Bold),
	}
}

// OnKeyword implements pipeline.Observer.
func (c *console) OnKeyword(e pipeline.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := c.dim.Sprintf("[%d/%d]", e.Index+1, e.Total)
	if e.Err != nil {
		fmt.Fprintf(c.out, "%s %s %s\n", prefix, c.bad.Sprintf("✗ %s", e.Keyword), c.dim.Sprint(e.Err))
		return
	}

	label := e.Row.TargetRank.Label(c.limit)
	rank := c.warn.Sprint(label)
	if e.Row.TargetRank.Found() {
		rank = c.good.Sprint(label)
	}
	query := ""
	if e.Query != e.Keyword {
		query = c.dim.Sprintf(" (searched %q)", e.Query)
	}
	fmt.Fprintf(c.out, "%s %s%s: %s\n", prefix, e.Keyword, query, rank)
}

// OnRetry implements serp.RetryObserver.
func (c *console) OnRetry(e serp.RetryEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	why := "request failed"
	if e.Reason == serp.ReasonRateLimited {
		why = "rate limited"
	}
	fmt.Fprintln(c.out, c.warn.Sprintf("  %s for %q, retrying in %s (attempt %d)", why, e.Query, e.Delay.Round(time.Millisecond), e.Attempt+1))
}

// changes lists keywords whose rank moved.
func (c *console) changes(deltas []report.Delta) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var moved int
	for _, d := range deltas {
		switch d.Change {
		case report.ChangeImproved:
			fmt.Fprintf(c.out, "  %s %s: %d → %d (%s)\n", c.good.Sprint("▲"), d.Keyword, d.Previous, d.Current, d.DiffLabel())
		case report.ChangeWorsened:
			fmt.Fprintf(c.out, "  %s %s: %d → %d (%s)\n", c.bad.Sprint("▼"), d.Keyword, d.Previous, d.Current, d.DiffLabel())
		default:
			continue
		}
		moved++
	}
	if moved == 0 {
		fmt.Fprintln(c.out, c.dim.Sprint("  no rank changes"))
	}
}

func (c *console) heading(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, c.head.Sprint(s))
}

func (c *console) warning(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, c.warn.Sprintf(format, args...))
}
