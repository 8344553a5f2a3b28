package analyzer

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNoHost is returned for URLs without a host component, including
// scheme-less strings such as "example.com/path".
var ErrNoHost = errors.New("analyzer: url has no host")

// ParseDomain returns the lower-cased host of rawURL with a single leading
// "www." label removed. Port and userinfo are dropped.
func ParseDomain(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("analyzer: parse %q: %w", rawURL, err)
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimSuffix(host, ".")
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return "", fmt.Errorf("analyzer: %q: %w", rawURL, ErrNoHost)
	}
	return host, nil
}

// Domain is ParseDomain with failures mapped to "", which never matches a
// configured domain.
func Domain(rawURL string) string {
	host, err := ParseDomain(rawURL)
	if err != nil {
		return ""
	}
	return host
}
