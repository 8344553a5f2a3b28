package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/rankwatch/pkg/proxy"
)

// DefaultUserAgent identifies rankwatch to the search provider.
const DefaultUserAgent = "rankwatch/1.0 (+https://github.com/FranksOps/rankwatch)"

// Config defines the setup for the HTTP Client.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	// UserAgent is sent on every request that does not set one itself.
	UserAgent string
	// Provide a custom Transport, e.g. for tests or corporate proxies
	Transport http.RoundTripper
	// Proxies, when set, routes every request through the pool's next
	// usable proxy. Transport must then be nil or an *http.Transport.
	Proxies *proxy.Pool
}

// ErrNoProxy is returned when a proxy pool is configured but every proxy
// in it is benched.
var ErrNoProxy = errors.New("httpclient: no usable proxy")

// Client wraps a standard http.Client to provide configurable timeouts,
// redirect policies and a default User-Agent.
type Client struct {
	*http.Client
	proxies *proxy.Pool
}

// New creates a new HTTP client based on the provided configuration.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("httpclient: negative timeout %v", cfg.Timeout)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	c := &http.Client{
		Timeout: cfg.Timeout,
	}

	if cfg.MaxRedirects >= 0 {
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("httpclient: stopped after %d redirects", cfg.MaxRedirects)
			}
			return nil
		}
	} else {
		// Don't follow any redirects if max < 0
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}
	if cfg.Proxies != nil {
		tr, ok := base.(*http.Transport)
		if !ok {
			return nil, fmt.Errorf("httpclient: proxy pool needs an *http.Transport, got %T", base)
		}
		tr = tr.Clone()
		tr.Proxy = proxyFromContext
		base = tr
	}
	c.Transport = &userAgentTransport{base: base, userAgent: cfg.UserAgent}

	return &Client{Client: c, proxies: cfg.Proxies}, nil
}

// Do executes an HTTP request. The provided context.Context should control
// the overarching request timeout/cancellation independent of the client timeout.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		return nil, errors.New("httpclient: context cannot be nil")
	}

	var via *url.URL
	if c.proxies != nil {
		if via = c.proxies.Next(); via == nil {
			return nil, ErrNoProxy
		}
		ctx = context.WithValue(ctx, proxyKey{}, via)
	}

	resp, err := c.Client.Do(req.Clone(ctx))
	if via != nil && ctx.Err() == nil {
		// a proxy is only blamed for transport failures; HTTP errors are the upstream's
		_ = c.proxies.Release(via, err == nil)
	}
	if err != nil {
		return nil, fmt.Errorf("httpclient: %w", err)
	}
	return resp, nil
}

type proxyKey struct{}

// proxyFromContext uses the proxy Do picked for this request and falls back
// to the environment's HTTP_PROXY settings.
func proxyFromContext(req *http.Request) (*url.URL, error) {
	if u, ok := req.Context().Value(proxyKey{}).(*url.URL); ok {
		return u, nil
	}
	return http.ProxyFromEnvironment(req)
}

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	// RoundTrippers must not modify the caller's request
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(r)
}
