package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/FranksOps/rankwatch/pkg/proxy"
)

func TestClient_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client, err := New(Config{Timeout: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	_, err = client.Do(context.Background(), req)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestClient_NegativeTimeout(t *testing.T) {
	if _, err := New(Config{Timeout: -time.Second}); err == nil {
		t.Fatal("expected error for negative timeout")
	}
}

func TestClient_Redirects(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/1":
			http.Redirect(w, r, "/2", http.StatusFound)
		case "/2":
			http.Redirect(w, r, "/3", http.StatusFound)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer ts.Close()

	client, err := New(Config{MaxRedirects: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/1", nil)
	if _, err := client.Do(context.Background(), req); err == nil {
		t.Fatal("expected redirect limit error")
	}

	clientNoRedir, _ := New(Config{MaxRedirects: -1})
	req2, _ := http.NewRequest(http.MethodGet, ts.URL+"/1", nil)
	resp, err := clientNoRedir.Do(context.Background(), req2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Errorf("expected 302 StatusFound, got %d", resp.StatusCode)
	}
}

func TestClient_UserAgent(t *testing.T) {
	var got []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client, err := New(Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	resp, err := client.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if req.Header.Get("User-Agent") != "" {
		t.Errorf("caller request was modified")
	}

	req2, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	req2.Header.Set("User-Agent", "custom/2.0")
	resp2, err := client.Do(context.Background(), req2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp2.Body.Close()

	if len(got) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(got))
	}
	if got[0] != DefaultUserAgent {
		t.Errorf("expected default UA %q, got %q", DefaultUserAgent, got[0])
	}
	if got[1] != "custom/2.0" {
		t.Errorf("expected explicit UA to win, got %q", got[1])
	}
}

func TestClient_Context(t *testing.T) {
	client, _ := New(Config{})

	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)

	//nolint:staticcheck // nil context is the case under test
	_, err := client.Do(nil, req)
	if err == nil || err.Error() != "httpclient: context cannot be nil" {
		t.Errorf("expected nil context error, got %v", err)
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(1 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	req2, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err = client.Do(ctx, req2); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestClient_ProxyPool(t *testing.T) {
	var hosts []string
	fwd := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hosts = append(hosts, r.Host)
		w.WriteHeader(http.StatusOK)
	}))
	defer fwd.Close()

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	pool := proxy.NewPool(proxy.Config{MaxFailures: 1, Cooldown: time.Hour})
	if err := pool.Add(fwd.URL, deadURL); err != nil {
		t.Fatal(err)
	}

	client, err := New(Config{Proxies: pool})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, "http://serp.invalid/search", nil)
	resp, err := client.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("expected request through live proxy, got %v", err)
	}
	resp.Body.Close()
	if len(hosts) != 1 || hosts[0] != "serp.invalid" {
		t.Errorf("expected proxy to see upstream host, got %v", hosts)
	}

	if _, err := client.Do(context.Background(), req); err == nil {
		t.Fatal("expected error through dead proxy")
	}

	stats := pool.Stats()
	if stats[0].Successes != 1 || stats[0].Benched {
		t.Errorf("live proxy stats %+v", stats[0])
	}
	if !stats[1].Benched {
		t.Errorf("expected dead proxy to be benched, got %+v", stats[1])
	}

	// only the live proxy remains
	resp, err = client.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("expected live proxy to be reused, got %v", err)
	}
	resp.Body.Close()

	_ = pool.Release(pool.Next(), false)
	if _, err := client.Do(context.Background(), req); !errors.Is(err, ErrNoProxy) {
		t.Errorf("expected ErrNoProxy with every proxy benched, got %v", err)
	}
}

func TestClient_ProxyPoolNeedsTransport(t *testing.T) {
	rt := roundTripFunc(func(*http.Request) (*http.Response, error) { return nil, errors.New("unused") })
	if _, err := New(Config{Transport: rt, Proxies: proxy.NewPool(proxy.Config{})}); err == nil {
		t.Fatal("expected error for non *http.Transport with proxy pool")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
