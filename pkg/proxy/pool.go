// Package proxy rotates outbound requests across a list of HTTP or SOCKS
// proxies, benching proxies that keep failing.
package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrUnknownProxy is returned by Release for a URL the pool did not hand out.
var ErrUnknownProxy = errors.New("proxy: not in pool")

type entry struct {
	url       *url.URL
	failures  int
	successes int
	benchedAt time.Time
	benched   bool
}

// Stats is a snapshot of one proxy's health.
type Stats struct {
	URL       string
	Successes int
	Failures  int
	Benched   bool
}

// Config tunes the pool's health tracking.
type Config struct {
	// MaxFailures is the number of consecutive failures that benches a proxy.
	MaxFailures int
	// Cooldown is how long a benched proxy sits out.
	Cooldown time.Duration
}

// Pool hands out proxies round-robin.
type Pool struct {
	mu      sync.Mutex
	entries []*entry
	next    int
	cfg     Config
	now     func() time.Time
}

// NewPool creates an empty pool. Zero config values default to 3 failures
// and a 5 minute cooldown.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{cfg: cfg, now: time.Now}
}

// LoadFile adds the proxies listed in path, one per line. Blank lines and
// lines starting with '#' are skipped.
func (p *Pool) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("proxy: open %s: %w", path, err)
	}
	defer f.Close()

	var raws []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			raws = append(raws, line)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("proxy: read %s: %w", path, err)
	}
	return p.Add(raws...)
}

// Add parses and appends proxies. A missing scheme means http.
func (p *Pool) Add(raws ...string) error {
	parsed := make([]*entry, 0, len(raws))
	for _, raw := range raws {
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("proxy: parse %q: %w", raw, err)
		}
		if u.Host == "" {
			return fmt.Errorf("proxy: %q has no host", raw)
		}
		parsed = append(parsed, &entry{url: u})
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, parsed...)
	return nil
}

// Len returns the number of proxies, benched ones included.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Next returns the next usable proxy, or nil when every proxy is benched
// or the pool is empty.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for range p.entries {
		e := p.entries[p.next]
		p.next = (p.next + 1) % len(p.entries)

		if e.benched && now.Sub(e.benchedAt) >= p.cfg.Cooldown {
			e.benched = false
			e.failures = 0
		}
		if !e.benched {
			return e.url
		}
	}
	return nil
}

// Release records the outcome of a request made through u. A success
// clears the failure streak; MaxFailures failures in a row bench the proxy.
func (p *Pool) Release(u *url.URL, ok bool) error {
	if u == nil {
		return ErrUnknownProxy
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.find(u)
	if e == nil {
		return fmt.Errorf("%w: %s", ErrUnknownProxy, u.Redacted())
	}
	if ok {
		e.successes++
		e.failures = 0
		return nil
	}
	e.failures++
	if e.failures >= p.cfg.MaxFailures {
		e.benched = true
		e.benchedAt = p.now()
	}
	return nil
}

// Stats returns the health of every proxy in pool order. Credentials are
// redacted from the URLs.
func (p *Pool) Stats() []Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Stats, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, Stats{
			URL:       e.url.Redacted(),
			Successes: e.successes,
			Failures:  e.failures,
			Benched:   e.benched,
		})
	}
	return out
}

func (p *Pool) find(u *url.URL) *entry {
	s := u.String()
	for _, e := range p.entries {
		if e.url.String() == s {
			return e
		}
	}
	return nil
}
