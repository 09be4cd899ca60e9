// Package fetch is the single place outbound HTTP happens. It applies the
// fixed header set upstream origins expect (browser User-Agent, origin
// Referer), an optional request rate limit, per-host concurrency caps, and
// decodes gzip/brotli bodies. There is no retry here; retry policy, where it
// exists, lives in the caller.
package fetch

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"

	"github.com/m3uforge/m3u-forge/internal/httpclient"
	"github.com/m3uforge/m3u-forge/internal/metrics"
)

// DefaultUserAgent mimics a desktop browser; several upstream sites reject
// obvious bot agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// maxBodyBytes caps how much of any response we will read into memory.
const maxBodyBytes = 16 << 20 // 16 MiB

// FetchError is a typed fetch failure: network error, timeout, or non-2xx
// status. Callers decide whether it means "invalid stream" or "branch yields
// nothing" depending on context.
type FetchError struct {
	URL        string
	StatusCode int // 0 on transport error
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Config drives a Fetcher. Zero values are replaced with safe defaults by New.
type Config struct {
	UserAgent string        // default: DefaultUserAgent
	Referer   string        // sent on every request when non-empty (anti-bot heuristic)
	Timeout   time.Duration // per-request; default 10s
	// RatePerSec caps outbound requests per second across the fetcher.
	// 0 = unlimited.
	RatePerSec float64
	// HostConcurrency caps in-flight requests per upstream host. Default 4.
	HostConcurrency int
	// Client may be nil to use a pooled client with Timeout applied.
	Client *http.Client
}

// Fetcher performs HTTP GET/HEAD/ranged-GET with fixed headers and timeouts.
// Safe for concurrent use.
type Fetcher struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	hostSem *httpclient.HostSemaphore
}

// New returns a Fetcher for cfg.
func New(cfg Config) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.HostConcurrency <= 0 {
		cfg.HostConcurrency = 4
	}
	client := cfg.Client
	if client == nil {
		client = httpclient.WithTimeout(cfg.Timeout)
	}
	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), int(cfg.RatePerSec)+1)
	}
	return &Fetcher{
		cfg:     cfg,
		client:  client,
		limiter: limiter,
		hostSem: httpclient.NewHostSemaphore(cfg.HostConcurrency),
	}
}

// Result is one HTTP response, body fully read and decoded.
type Result struct {
	StatusCode  int
	Body        []byte
	ContentType string
}

// Text GETs url and returns the body as text. Non-2xx is a *FetchError.
func (f *Fetcher) Text(ctx context.Context, url string) (string, error) {
	res, err := f.Get(ctx, url)
	if err != nil {
		return "", err
	}
	return string(res.Body), nil
}

// Get GETs url. Non-2xx is a *FetchError.
func (f *Fetcher) Get(ctx context.Context, url string) (*Result, error) {
	return f.do(ctx, http.MethodGet, url, "", true)
}

// Head issues a HEAD and returns the final status code after redirects.
// Transport errors are a *FetchError; non-2xx statuses are returned to the
// caller, not converted to errors (existence checks branch on the code).
func (f *Fetcher) Head(ctx context.Context, url string) (int, error) {
	res, err := f.do(ctx, http.MethodHead, url, "", false)
	if err != nil {
		return 0, err
	}
	return res.StatusCode, nil
}

// Range GETs the first n bytes of url (Range: bytes=0-(n-1)). The status code
// is returned to the caller (206 vs 200 vs anything else matters for
// liveness sniffing); only transport errors become *FetchError.
func (f *Fetcher) Range(ctx context.Context, url string, n int) (*Result, error) {
	if n <= 0 {
		n = 1024
	}
	return f.do(ctx, http.MethodGet, url, fmt.Sprintf("bytes=0-%d", n-1), false)
}

// JSON GETs url and decodes the body into v. Non-2xx is a *FetchError.
func (f *Fetcher) JSON(ctx context.Context, url string, v any) error {
	res, err := f.Get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(res.Body, v); err != nil {
		return fmt.Errorf("fetch %s: decode JSON: %w", url, err)
	}
	return nil
}

func (f *Fetcher) do(ctx context.Context, method, url, rangeHeader string, requireOK bool) (*Result, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, &FetchError{URL: url, Err: err}
		}
	}
	release := f.hostSem.Acquire(url)
	defer release()

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Encoding", "gzip, br")
	if f.cfg.Referer != "" {
		req.Header.Set("Referer", f.cfg.Referer)
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	metrics.FetchRequests.WithLabelValues(method).Inc()
	resp, err := f.client.Do(req)
	if err != nil {
		metrics.FetchFailures.Inc()
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	body, err := decodeBody(resp)
	if err != nil {
		metrics.FetchFailures.Inc()
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, Err: err}
	}
	if requireOK && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		metrics.FetchFailures.Inc()
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}
	return &Result{
		StatusCode:  resp.StatusCode,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// decodeBody reads the response body, undoing gzip or brotli encoding. We set
// Accept-Encoding ourselves, so the transport's automatic gzip handling is
// disabled and both codings must be handled here.
func decodeBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	case "br":
		r = brotli.NewReader(resp.Body)
	}
	return io.ReadAll(io.LimitReader(r, maxBodyBytes))
}
