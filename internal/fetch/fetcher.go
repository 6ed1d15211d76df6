// Package fetch retrieves URLs on behalf of the model with server-side
// request forgery kept off the table.
//
// Every fetch passes two gates. A pre-flight gate parses the URL,
// enforces http/https, rejects userinfo, resolves the host and checks
// the full A/AAAA set against the blocked ranges. The connection itself
// then goes through a pinning dialer that re-resolves and re-checks
// immediately before connecting, so a record that changes between check
// and connect buys an attacker nothing. Redirects repeat the whole
// procedure per hop.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const fetchUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_7_2) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Kind classifies fetch failures.
type Kind string

const (
	KindBadScheme       Kind = "bad-scheme"
	KindBadURL          Kind = "bad-url"
	KindDNSFailed       Kind = "dns-failed"
	KindBlockedAddress  Kind = "blocked-address"
	KindRedirectBlocked Kind = "redirect-blocked"
	KindFetchTimeout    Kind = "fetch-timeout"
	KindHTTPError       Kind = "http-error"
)

// Error is a fetch failure with a machine-readable kind. Status is set
// for http-error only.
type Error struct {
	Kind   Kind
	Detail string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Config bounds what a single fetch may consume.
type Config struct {
	MaxBytes     int64 `json:"max_bytes"`
	TimeoutSec   int   `json:"timeout_s"`
	MaxRedirects int   `json:"max_redirects"`
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{
		MaxBytes:     1 << 20,
		TimeoutSec:   15,
		MaxRedirects: 5,
	}
}

func (c Config) maxBytes() int64 {
	if c.MaxBytes <= 0 {
		return 1 << 20
	}
	return c.MaxBytes
}

func (c Config) timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c Config) maxRedirects() int {
	if c.MaxRedirects <= 0 {
		return 5
	}
	return c.MaxRedirects
}

// Request is one fetch. Method defaults to GET; MaxBytes may lower
// (never raise) the configured body cap.
type Request struct {
	URL      string
	Method   string
	Headers  map[string]string
	Body     string
	MaxBytes int64
}

// Result is a completed fetch. FinalURL reflects any redirects followed.
type Result struct {
	FinalURL    string
	Status      int
	ContentType string
	Body        []byte
	Truncated   bool
	Duration    time.Duration
}

// Fetcher issues guarded HTTP requests.
type Fetcher struct {
	cfg    Config
	guard  *guard
	client *http.Client
}

// NewFetcher builds a fetcher around a transport whose connections are
// pinned to validated addresses. The transport is constructed bare so
// no environment proxy can route requests around the pinning dialer.
func NewFetcher(cfg Config) *Fetcher {
	f := &Fetcher{cfg: cfg, guard: defaultGuard}
	f.client = &http.Client{
		Timeout: cfg.timeout(),
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return f.guard.dialPinned(ctx, network, addr)
			},
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: 15 * time.Second,
		},
		CheckRedirect: f.checkRedirect,
	}
	return f
}

// Fetch runs the pre-flight gate, issues the request and returns the
// capped body. HTTP status >= 400 is an http-error; redirect and
// address violations surface with their own kinds.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*Result, error) {
	u, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil {
		return nil, &Error{Kind: KindBadURL, Detail: fmt.Sprintf("cannot parse %q", req.URL), Err: err}
	}
	if err := validateURL(u); err != nil {
		return nil, err
	}

	// Pre-flight resolution gives the caller a precise error before any
	// connection attempt; the dialer re-checks on its own at connect time.
	if _, err := f.guard.resolveAndCheck(ctx, u.Hostname()); err != nil {
		return nil, err
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.timeout())
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, &Error{Kind: KindBadURL, Detail: "cannot build request", Err: err}
	}
	httpReq.Header.Set("User-Agent", fetchUserAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &Error{
			Kind:   KindHTTPError,
			Status: resp.StatusCode,
			Detail: fmt.Sprintf("server returned %s", resp.Status),
		}
	}

	max := f.cfg.maxBytes()
	if req.MaxBytes > 0 && req.MaxBytes < max {
		max = req.MaxBytes
	}

	// Read one byte past the cap so a body of exactly max bytes is not
	// flagged as truncated.
	data, err := io.ReadAll(io.LimitReader(resp.Body, max+1))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	truncated := false
	if int64(len(data)) > max {
		data = data[:max]
		truncated = true
	}

	return &Result{
		FinalURL:    resp.Request.URL.String(),
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
		Truncated:   truncated,
		Duration:    time.Since(start),
	}, nil
}

// checkRedirect re-runs the full pre-flight on every redirect target.
// Any violation, including too many hops, surfaces as redirect-blocked.
func (f *Fetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) > f.cfg.maxRedirects() {
		return &Error{
			Kind:   KindRedirectBlocked,
			Detail: fmt.Sprintf("stopped after %d redirects", f.cfg.maxRedirects()),
		}
	}
	if err := validateURL(req.URL); err != nil {
		return &Error{Kind: KindRedirectBlocked, Detail: "redirect target rejected", Err: err}
	}
	if _, err := f.guard.resolveAndCheck(req.Context(), req.URL.Hostname()); err != nil {
		return &Error{Kind: KindRedirectBlocked, Detail: "redirect target rejected", Err: err}
	}
	return nil
}

func validateURL(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return &Error{Kind: KindBadScheme, Detail: fmt.Sprintf("scheme %q is not supported", u.Scheme)}
	}
	if u.User != nil {
		return &Error{Kind: KindBadURL, Detail: "userinfo in URL is not permitted"}
	}
	if u.Hostname() == "" {
		return &Error{Kind: KindBadURL, Detail: "missing hostname"}
	}
	return nil
}

// classifyTransportError maps client errors onto fetch kinds. Guard and
// redirect errors pass through; deadline expiry becomes fetch-timeout;
// anything else stays a plain error with no kind.
func classifyTransportError(err error) error {
	var ferr *Error
	if errors.As(err, &ferr) {
		return ferr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindFetchTimeout, Detail: "time budget exhausted", Err: err}
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &Error{Kind: KindFetchTimeout, Detail: "time budget exhausted", Err: err}
	}
	return fmt.Errorf("fetch failed: %w", err)
}
