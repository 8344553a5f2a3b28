package serp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Result is a single organic search result. Position in the slice returned
// by a Provider is the ranking; Position mirrors what the provider reported.
type Result struct {
	Position int    `json:"position,omitempty"`
	Title    string `json:"title"`
	Link     string `json:"link"`
}

// AnswerBox is the featured snippet / direct answer block of a results page.
type AnswerBox struct {
	Title string `json:"title,omitempty"`
	Link  string `json:"link,omitempty"`
}

// RelatedQuestion is a "People Also Ask" entry with its source link, if any.
type RelatedQuestion struct {
	Question string `json:"question"`
	Link     string `json:"link,omitempty"`
}

// Response is the part of a results page rankwatch cares about.
type Response struct {
	Organic          []Result
	AnswerBox        *AnswerBox
	RelatedQuestions []RelatedQuestion
}

// Provider abstracts a search engine results provider. Implementations own
// their retry behaviour; a returned error means the query is given up.
type Provider interface {
	Search(ctx context.Context, query string) (*Response, error)
}

// ErrRateLimited marks failures caused by the provider answering
// 429 Too Many Requests.
var ErrRateLimited = errors.New("serp: rate limited")

// StatusError is a non-2xx answer from the provider.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("serp: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("serp: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Is reports 429 responses as ErrRateLimited.
func (e *StatusError) Is(target error) bool {
	return target == ErrRateLimited && e.StatusCode == http.StatusTooManyRequests
}

// ProviderError is an error message embedded in an otherwise successful
// provider response (bad key, exhausted plan, unsupported parameter).
// It is never retried.
type ProviderError struct {
	Message string
}

func (e *ProviderError) Error() string {
	return "serp: provider error: " + e.Message
}

// RetryReason classifies why a query is being retried.
type RetryReason string

const (
	ReasonRateLimited RetryReason = "rate_limited"
	ReasonFailure     RetryReason = "failure"
)

// RetryEvent describes a scheduled retry.
type RetryEvent struct {
	Query   string
	Attempt int // attempts made so far
	Reason  RetryReason
	Delay   time.Duration
	Err     error
}

// RetryObserver is notified whenever a query is about to be retried.
type RetryObserver interface {
	OnRetry(RetryEvent)
}

// RetryObserverFunc adapts a function to RetryObserver.
type RetryObserverFunc func(RetryEvent)

// OnRetry calls f(e).
func (f RetryObserverFunc) OnRetry(e RetryEvent) { f(e) }
