package backend

import (
	"fmt"
	"net/url"
	"strings"
)

// Candidate is one backend base URL eligible to receive a forwarded request.
// It is never mutated after construction and is safe for concurrent use.
type Candidate struct {
	url           *url.URL
	naturalOrigin bool
}

// New creates a Candidate. A natural-origin candidate gets no forced Origin
// header; the transport decides.
func New(u *url.URL, naturalOrigin bool) *Candidate {
	return &Candidate{
		url:           u,
		naturalOrigin: naturalOrigin,
	}
}

// Parse builds a Candidate from a raw base URL.
func Parse(rawURL string, naturalOrigin bool) (*Candidate, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse candidate %q: %w", rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("candidate %q must be an absolute URL", rawURL)
	}
	return New(u, naturalOrigin), nil
}

// URL returns the candidate base URL.
func (c *Candidate) URL() *url.URL {
	return c.url
}

// NaturalOrigin reports whether the Origin header is left to the transport.
func (c *Candidate) NaturalOrigin() bool {
	return c.naturalOrigin
}

// String returns the base URL as configured.
func (c *Candidate) String() string {
	return c.url.String()
}

// Target returns base + path + ?rawQuery. The base path, if any, is kept.
func (c *Candidate) Target(path, rawQuery string) (*url.URL, error) {
	target := strings.TrimSuffix(c.url.String(), "/") + path
	if rawQuery != "" {
		target += "?" + rawQuery
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("build target for %s: %w", c.url, err)
	}

	return u, nil
}
