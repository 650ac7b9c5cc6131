package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidSeed is returned when a crawl seed is not an absolute http(s) URL.
var ErrInvalidSeed = errors.New("seed must be an absolute http or https URL")

// normalize standardizes a URL so equivalent spellings share one visited key.
// It lowercases the scheme and host, removes default ports, roots empty paths,
// sorts query parameters and removes fragments.
func normalize(u *url.URL) *url.URL {
	out := *u
	out.Scheme = strings.ToLower(out.Scheme)
	out.Host = strings.ToLower(out.Host)

	if out.Scheme == "http" && strings.HasSuffix(out.Host, ":80") {
		out.Host = strings.TrimSuffix(out.Host, ":80")
	}
	if out.Scheme == "https" && strings.HasSuffix(out.Host, ":443") {
		out.Host = strings.TrimSuffix(out.Host, ":443")
	}

	if out.Opaque == "" && out.Host != "" && out.Path == "" {
		out.Path = "/"
		out.RawPath = ""
	}

	out.Fragment = ""
	out.RawFragment = ""

	if out.RawQuery != "" {
		out.RawQuery = out.Query().Encode()
	}
	return &out
}

// Resolve joins ref against base and returns the normalized absolute URL.
func Resolve(base *url.URL, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}
	abs := base.ResolveReference(parsed)
	if !abs.IsAbs() {
		return "", fmt.Errorf("href %q did not resolve to an absolute url", ref)
	}
	return normalize(abs).String(), nil
}

// Authority returns scheme://host[:port] for a URL, with default ports elided.
// Two URLs are in the same crawl scope iff their authorities are equal.
func Authority(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	n := normalize(u)
	if n.Scheme == "" || n.Host == "" {
		return "", fmt.Errorf("url %q has no authority", rawURL)
	}
	return n.Scheme + "://" + n.Host, nil
}

// parseSeed validates and normalizes a crawl seed.
func parseSeed(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	n := normalize(u)
	if (n.Scheme != "http" && n.Scheme != "https") || n.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeed, raw)
	}
	return n, nil
}
