// Package validate determines liveness/playability of candidate stream URLs.
// Manifest URLs get a HEAD existence check, then a GET whose body must carry
// the #EXTM3U header; multivariant manifests are substituted with their first
// variant. Anything else gets a cheap ranged GET and a media content-type
// sniff. Verdicts are memoized per URL for the lifetime of one Validator, so
// a URL is probed at most once per run.
package validate

import (
	"context"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/m3uforge/m3u-forge/internal/feed"
	"github.com/m3uforge/m3u-forge/internal/fetch"
	"github.com/m3uforge/m3u-forge/internal/metrics"
	"github.com/m3uforge/m3u-forge/internal/safeurl"
)

const (
	manifestHeader      = "#EXTM3U"
	multivariantMarker  = "#EXT-X-STREAM-INF"
	defaultConcurrency  = 20
	defaultProbeTimeout = 8 * time.Second
	defaultRetryDelay   = 1 * time.Second
	sniffBytes          = 1024
)

// Config drives a Validator. Zero values are replaced with defaults by New.
type Config struct {
	Fetcher     *fetch.Fetcher
	Concurrency int           // worker pool size for ValidateAll; default 20
	Timeout     time.Duration // per-probe deadline; default 8s
	RetryDelay  time.Duration // delay before the single transient retry; default 1s
}

// Validator memoizes verdicts for one run. Create a fresh Validator per run;
// the cache is never shared across runs.
type Validator struct {
	cfg Config

	mu      sync.Mutex
	results map[string]*inflight
}

// inflight is a cache slot: done closes when the verdict is available.
type inflight struct {
	done    chan struct{}
	verdict feed.Verdict
}

// New returns a Validator with an empty cache.
func New(cfg Config) *Validator {
	if cfg.Fetcher == nil {
		cfg.Fetcher = fetch.New(fetch.Config{})
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultProbeTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	return &Validator{cfg: cfg, results: make(map[string]*inflight)}
}

// Validate returns the verdict for rawURL, probing at most once per URL per
// run. Concurrent callers for the same URL share one probe.
func (v *Validator) Validate(ctx context.Context, rawURL string) feed.Verdict {
	v.mu.Lock()
	if slot, ok := v.results[rawURL]; ok {
		v.mu.Unlock()
		<-slot.done
		metrics.ProbeCacheHits.Inc()
		return slot.verdict
	}
	slot := &inflight{done: make(chan struct{})}
	v.results[rawURL] = slot
	v.mu.Unlock()

	slot.verdict = v.probeWithRetry(ctx, rawURL)
	close(slot.done)

	if slot.verdict.OK {
		metrics.Probes.WithLabelValues("valid").Inc()
	} else {
		metrics.Probes.WithLabelValues("invalid").Inc()
	}
	return slot.verdict
}

// ValidateAll probes every distinct URL in urls with a bounded worker pool
// and returns the full verdict map. It blocks until every submitted probe has
// finished: assembly must never start on a partial verdict set. When ctx is
// done, URLs not yet dispatched are recorded as invalid instead of probed.
func (v *Validator) ValidateAll(ctx context.Context, urls []string) map[string]feed.Verdict {
	distinct := make([]string, 0, len(urls))
	seen := make(map[string]bool, len(urls))
	for _, u := range urls {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		distinct = append(distinct, u)
	}

	sem := make(chan struct{}, v.cfg.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	out := make(map[string]feed.Verdict, len(distinct))
	for _, u := range distinct {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			var verdict feed.Verdict
			select {
			case sem <- struct{}{}:
				verdict = v.Validate(ctx, u)
				<-sem
			case <-ctx.Done():
				// Run deadline hit: pending probes count as invalid rather
				// than stalling the batch.
				verdict = feed.Verdict{URL: u, OK: false, ResolvedURL: u}
			}
			mu.Lock()
			out[u] = verdict
			mu.Unlock()
		}(u)
	}
	wg.Wait()
	return out
}

// probeWithRetry runs one probe, retrying once after a short fixed delay when
// the failure was transient (transport-level, not an HTTP status). This is
// the only retry in the pipeline.
func (v *Validator) probeWithRetry(ctx context.Context, rawURL string) feed.Verdict {
	verdict, transient := v.probe(ctx, rawURL, 0)
	if verdict.OK || !transient {
		return verdict
	}
	select {
	case <-ctx.Done():
		return verdict
	case <-time.After(v.cfg.RetryDelay):
	}
	verdict, _ = v.probe(ctx, rawURL, 0)
	return verdict
}

// probe checks one URL. depth guards variant recursion: only the top-level
// manifest may substitute a variant (single level of substitution).
func (v *Validator) probe(ctx context.Context, rawURL string, depth int) (verdict feed.Verdict, transient bool) {
	verdict = feed.Verdict{URL: rawURL, ResolvedURL: rawURL}
	ctx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	if isManifestURL(rawURL) {
		code, err := v.cfg.Fetcher.Head(ctx, rawURL)
		if err != nil {
			return verdict, true
		}
		if code != 200 {
			return verdict, false
		}
		res, err := v.cfg.Fetcher.Get(ctx, rawURL)
		if err != nil {
			return verdict, isTransient(err)
		}
		body := string(res.Body)
		if !strings.Contains(body, manifestHeader) {
			return verdict, false
		}
		if strings.Contains(body, multivariantMarker) {
			if variant := firstVariant(body); variant != "" && depth == 0 {
				resolved := variant
				if !safeurl.IsAbsolute(variant) {
					resolved = safeurl.Resolve(rawURL, variant)
				}
				if resolved != "" {
					nested, nestedTransient := v.probe(ctx, resolved, depth+1)
					nested.URL = rawURL
					return nested, nestedTransient
				}
			}
		}
		verdict.OK = true
		return verdict, false
	}

	// Non-manifest: ranged GET, sniff status + body + content type.
	res, err := v.cfg.Fetcher.Range(ctx, rawURL, sniffBytes)
	if err != nil {
		return verdict, isTransient(err)
	}
	if res.StatusCode != 200 && res.StatusCode != 206 {
		return verdict, false
	}
	if len(res.Body) == 0 {
		return verdict, false
	}
	if !mediaContentType(res.ContentType) {
		return verdict, false
	}
	verdict.OK = true
	return verdict, false
}

// isManifestURL reports whether the URL path names an HLS manifest.
func isManifestURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	return strings.HasSuffix(path, ".m3u8") || strings.HasSuffix(path, ".m3u")
}

// firstVariant returns the first variant URI after a #EXT-X-STREAM-INF tag:
// the next non-empty, non-comment line.
func firstVariant(body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if !strings.HasPrefix(strings.TrimSpace(line), multivariantMarker) {
			continue
		}
		for _, next := range lines[i+1:] {
			next = strings.TrimSpace(next)
			if next == "" {
				continue
			}
			if strings.HasPrefix(next, "#") {
				break // another tag before the URI; malformed, give up
			}
			return next
		}
	}
	return ""
}

// mediaContentType reports whether ct looks like playable media.
func mediaContentType(ct string) bool {
	ct = strings.ToLower(ct)
	for _, tok := range []string{"video/", "audio/", "application/octet-stream", "application/vnd.apple.mpegurl", "mpegurl"} {
		if strings.Contains(ct, tok) {
			return true
		}
	}
	return false
}

// isTransient reports whether err is a transport-level failure worth the
// single retry. HTTP status failures are definitive.
func isTransient(err error) bool {
	fe, ok := err.(*fetch.FetchError)
	if !ok {
		return false
	}
	if fe.StatusCode == 0 {
		return true
	}
	return false
}

// LogSummary logs how many of the probed URLs validated. Call after
// ValidateAll for run visibility.
func LogSummary(verdicts map[string]feed.Verdict) {
	ok := 0
	for _, vd := range verdicts {
		if vd.OK {
			ok++
		}
	}
	log.Printf("validate: %d/%d URLs playable", ok, len(verdicts))
}
