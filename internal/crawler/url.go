package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var errMissingHost = errors.New("missing host")

// NormalizeSeed trims a seed URL and prefixes https:// when no scheme is
// present. Hosts are left exactly as written so the anchor comparison stays
// case-sensitive.
func NormalizeSeed(raw string) string {
	seed := strings.TrimSpace(raw)
	if seed == "" {
		return seed
	}
	if !hasScheme(seed) {
		seed = "https://" + strings.TrimPrefix(seed, "//")
	}
	return seed
}

// hasScheme reports whether s starts with "<scheme>://". A "://" that appears
// after the first path, query or fragment delimiter does not count.
func hasScheme(s string) bool {
	i := strings.Index(s, "://")
	if i <= 0 {
		return false
	}
	return !strings.ContainsAny(s[:i], "/?#")
}

// Host returns the hostname component of an absolute http(s) URL.
func Host(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("parse url %q: unsupported scheme %q", raw, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("parse url %q: %w", raw, errMissingHost)
	}
	return host, nil
}

// SameHost is the navigation guard: it accepts target only when its host is
// byte-for-byte equal to anchorHost. Unparseable, relative and non-http(s)
// targets are rejected.
func SameHost(anchorHost, target string) bool {
	if anchorHost == "" {
		return false
	}
	host, err := Host(target)
	if err != nil {
		return false
	}
	return host == anchorHost
}

// ResolveURL resolves ref against base so relative links proposed by the
// oracle become absolute before the guard sees them. Absolute refs are
// returned unchanged and unparseable input is passed through for the guard
// to reject.
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	refURL, err := url.Parse(ref)
	if err != nil || refURL.IsAbs() {
		return ref
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}
