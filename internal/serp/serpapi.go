package serp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/FranksOps/rankwatch/internal/metrics"
	"github.com/FranksOps/rankwatch/pkg/httpclient"
	"github.com/FranksOps/rankwatch/pkg/ratelimit"
)

// DefaultEndpoint is the public SerpApi search endpoint.
const DefaultEndpoint = "https://serpapi.com/search"

const maxBodyBytes = 16 << 20

// SerpAPIConfig configures a SerpAPI provider. Everything except the query
// is fixed for the lifetime of the provider.
type SerpAPIConfig struct {
	Endpoint     string
	APIKey       string
	Engine       string
	Num          int
	Language     string
	Region       string
	GoogleDomain string
	Device       string

	// MaxAttempts bounds the total number of requests per query, first
	// attempt included.
	MaxAttempts int
	// RateLimitBackoff spaces retries after 429 responses.
	RateLimitBackoff ratelimit.Backoff
	// ErrorDelay is the fixed pause before retrying any other failure.
	ErrorDelay time.Duration

	Client   *httpclient.Client
	Observer RetryObserver
	Logger   *slog.Logger
}

// SerpAPI queries a SerpApi-compatible JSON endpoint.
type SerpAPI struct {
	cfg    SerpAPIConfig
	client *httpclient.Client
	logger *slog.Logger
}

var _ Provider = (*SerpAPI)(nil)

// NewSerpAPI validates cfg and returns a ready provider.
func NewSerpAPI(cfg SerpAPIConfig) (*SerpAPI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("serp: api key is required")
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("serp: parse endpoint: %w", err)
	}
	if cfg.Engine == "" {
		cfg.Engine = "google"
	}
	if cfg.Num <= 0 {
		cfg.Num = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	client := cfg.Client
	if client == nil {
		var err error
		client, err = httpclient.New(httpclient.Config{})
		if err != nil {
			return nil, fmt.Errorf("serp: create http client: %w", err)
		}
	}

	return &SerpAPI{
		cfg:    cfg,
		client: client,
		logger: cfg.Logger,
	}, nil
}

// Search runs query against the provider, retrying rate-limit and transport
// failures according to the configured policy.
func (s *SerpAPI) Search(ctx context.Context, query string) (*Response, error) {
	attempts := 0
	resp, err := failsafe.With(s.retryPolicy(ctx, query)).WithContext(ctx).Get(func() (*Response, error) {
		attempts++
		return s.fetch(ctx, query)
	})
	if err != nil {
		return nil, fmt.Errorf("serp: query %q failed after %d attempt(s): %w", query, attempts, err)
	}
	return resp, nil
}

func (s *SerpAPI) retryPolicy(ctx context.Context, query string) retrypolicy.RetryPolicy[*Response] {
	return retrypolicy.NewBuilder[*Response]().
		HandleIf(func(_ *Response, err error) bool {
			return s.retryable(ctx, err)
		}).
		WithMaxAttempts(s.cfg.MaxAttempts).
		WithDelayFunc(func(exec failsafe.ExecutionAttempt[*Response]) time.Duration {
			return s.retryDelay(exec.LastError(), exec.Attempts())
		}).
		OnRetryScheduled(func(e failsafe.ExecutionScheduledEvent[*Response]) {
			ev := RetryEvent{
				Query:   query,
				Attempt: e.Attempts(),
				Reason:  reasonFor(e.LastError()),
				Delay:   e.Delay,
				Err:     e.LastError(),
			}
			metrics.RecordRetry(string(ev.Reason))
			s.logger.Warn("retrying search query",
				"query", query, "attempt", ev.Attempt, "reason", ev.Reason, "delay", ev.Delay, "err", ev.Err)
			if s.cfg.Observer != nil {
				s.cfg.Observer.OnRetry(ev)
			}
		}).
		ReturnLastFailure().
		Build()
}

func (s *SerpAPI) retryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	var perr *ProviderError
	return !errors.As(err, &perr)
}

func (s *SerpAPI) retryDelay(err error, attempts int) time.Duration {
	if errors.Is(err, ErrRateLimited) {
		return s.cfg.RateLimitBackoff.Delay(attempts)
	}
	return s.cfg.ErrorDelay
}

func reasonFor(err error) RetryReason {
	if errors.Is(err, ErrRateLimited) {
		return ReasonRateLimited
	}
	return ReasonFailure
}

func (s *SerpAPI) requestURL(query string) (string, error) {
	endpoint, err := url.Parse(s.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("serp: parse endpoint: %w", err)
	}
	q := endpoint.Query()
	q.Set("engine", s.cfg.Engine)
	q.Set("q", query)
	q.Set("api_key", s.cfg.APIKey)
	q.Set("num", strconv.Itoa(s.cfg.Num))
	setIf(q, "hl", s.cfg.Language)
	setIf(q, "gl", s.cfg.Region)
	setIf(q, "google_domain", s.cfg.GoogleDomain)
	setIf(q, "device", s.cfg.Device)
	endpoint.RawQuery = q.Encode()
	return endpoint.String(), nil
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func (s *SerpAPI) fetch(ctx context.Context, query string) (*Response, error) {
	target, err := s.requestURL(query)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("serp: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.client.Do(ctx, req)
	if err != nil {
		metrics.RecordProviderRequest("error", time.Since(start))
		return nil, redactKey(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	metrics.RecordProviderRequest(strconv.Itoa(resp.StatusCode), time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("serp: read body: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: errorSummary(body)}
	}

	return decodeResponse(body)
}

// redactKey rebuilds transport errors without the api_key query parameter.
// The wrapped message is already formatted by then, so the url.Error is
// replaced rather than edited in place.
func redactKey(err error) error {
	var uerr *url.Error
	if !errors.As(err, &uerr) {
		return err
	}
	u, perr := url.Parse(uerr.URL)
	if perr != nil {
		return fmt.Errorf("serp: request failed: %w", uerr.Err)
	}
	q := u.Query()
	if q.Has("api_key") {
		q.Set("api_key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return fmt.Errorf("serp: %w", &url.Error{Op: uerr.Op, URL: u.String(), Err: uerr.Err})
}

func errorSummary(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

type serpAPIResponse struct {
	Error            string            `json:"error"`
	OrganicResults   []Result          `json:"organic_results"`
	AnswerBox        json.RawMessage   `json:"answer_box"`
	FeaturedSnippet  json.RawMessage   `json:"featured_snippet"`
	RelatedQuestions []json.RawMessage `json:"related_questions"`
}

type serpAPIQuestion struct {
	Question string          `json:"question"`
	Link     string          `json:"link"`
	Answer   json.RawMessage `json:"answer"`
}

type linkOnly struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

func decodeResponse(body []byte) (*Response, error) {
	var raw serpAPIResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("serp: decode response: %w", err)
	}

	if raw.Error != "" && len(raw.OrganicResults) == 0 {
		if isNoResults(raw.Error) {
			return &Response{}, nil
		}
		return nil, &ProviderError{Message: raw.Error}
	}

	out := &Response{
		Organic: make([]Result, 0, len(raw.OrganicResults)),
	}
	for i, r := range raw.OrganicResults {
		if r.Position == 0 {
			r.Position = i + 1
		}
		out.Organic = append(out.Organic, r)
	}

	for _, box := range []json.RawMessage{raw.AnswerBox, raw.FeaturedSnippet} {
		if lo, ok := decodeLink(box); ok {
			out.AnswerBox = &AnswerBox{Title: lo.Title, Link: lo.Link}
			break
		}
	}

	for _, item := range raw.RelatedQuestions {
		var q serpAPIQuestion
		if err := json.Unmarshal(item, &q); err != nil {
			continue
		}
		rq := RelatedQuestion{Question: q.Question, Link: q.Link}
		if rq.Link == "" {
			if lo, ok := decodeLink(q.Answer); ok {
				rq.Link = lo.Link
			}
		}
		out.RelatedQuestions = append(out.RelatedQuestions, rq)
	}

	return out, nil
}

// decodeLink reads an object carrying a link field. Providers sometimes send
// strings or arrays in the same slot; those are ignored.
func decodeLink(raw json.RawMessage) (linkOnly, bool) {
	var lo linkOnly
	if len(raw) == 0 || raw[0] != '{' {
		return lo, false
	}
	if err := json.Unmarshal(raw, &lo); err != nil {
		return lo, false
	}
	return lo, lo.Link != ""
}

func isNoResults(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "hasn't returned any results")
}
