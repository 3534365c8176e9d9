package httpclient

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/snapetech/portalharvest/internal/safeurl"
)

// SessionConfig describes one task-local API session.
type SessionConfig struct {
	// BaseURL scopes the seeded cookies.
	BaseURL string
	// Cookies are set on the jar for BaseURL before the first request.
	Cookies map[string]string
	// Interval is the minimum spacing between requests of this session.
	Interval time.Duration
	// Base is the underlying transport; nil uses the shared transport.
	Base http.RoundTripper
}

// NewSession returns a client with its own cookie jar, request pacing and
// gzip/brotli decoding. The client has no total timeout; callers bound each
// request with a context deadline.
func NewSession(cfg SessionConfig) (*http.Client, error) {
	u, err := safeurl.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("session: cookie jar: %w", err)
	}
	if len(cfg.Cookies) > 0 {
		cookies := make([]*http.Cookie, 0, len(cfg.Cookies))
		for name, value := range cfg.Cookies {
			cookies = append(cookies, &http.Cookie{Name: name, Value: value, Path: "/"})
		}
		jar.SetCookies(&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}, cookies)
	}
	base := cfg.Base
	if base == nil {
		base = sharedTransport
	}
	return &http.Client{
		Jar: jar,
		Transport: &PacedTransport{
			Base:    &DecodingTransport{Base: base},
			Limiter: NewPacer(cfg.Interval),
		},
	}, nil
}
