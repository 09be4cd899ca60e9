// Package pipeline wires discovery, validation, assembly, and publishing into
// one run: sources produce candidate entries, the validator probes each
// distinct URL concurrently, the assembler joins verdicts back in and renders
// the playlist, and the result is written locally and optionally published.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/m3uforge/m3u-forge/internal/assemble"
	"github.com/m3uforge/m3u-forge/internal/config"
	"github.com/m3uforge/m3u-forge/internal/feed"
	"github.com/m3uforge/m3u-forge/internal/fetch"
	"github.com/m3uforge/m3u-forge/internal/metrics"
	"github.com/m3uforge/m3u-forge/internal/publish"
	"github.com/m3uforge/m3u-forge/internal/source/crawler"
	"github.com/m3uforge/m3u-forge/internal/source/flatlist"
	"github.com/m3uforge/m3u-forge/internal/source/matchapi"
	"github.com/m3uforge/m3u-forge/internal/validate"
)

// ErrNoEntries terminates a run: every configured source came back empty, so
// there is nothing to validate and no artifact is written.
var ErrNoEntries = errors.New("pipeline: no source produced any entries")

// Pipeline is one configured aggregation run.
type Pipeline struct {
	Sources     []feed.Source
	Validator   *validate.Validator
	Assembly    assemble.Options
	OutputPath  string
	Publisher   publish.Publisher // nil = publishing disabled
	PublishDest string
	Deadline    time.Duration // 0 = no run-level deadline
}

// Result summarises a completed run.
type Result struct {
	Candidates int    // entries produced by all sources
	Playable   int    // entries surviving assembly
	Artifact   string // local path written
	Link       string // retrieval link, "" when publishing is off or failed
}

// Build assembles a Pipeline from configuration. Sources are enabled by
// having their URL set.
func Build(cfg *config.Config) *Pipeline {
	var sources []feed.Source
	if cfg.FlatListURL != "" {
		sources = append(sources, &flatlist.Source{
			URL:     cfg.FlatListURL,
			Fetcher: fetch.New(fetch.Config{Timeout: cfg.FetchTimeout, HostConcurrency: cfg.HostConcurrency, RatePerSec: cfg.RatePerSec}),
			TVGID:   cfg.FlatListTVGID,
			Logo:    cfg.FlatListLogo,
		})
	}
	if cfg.CrawlerBaseURL != "" {
		sources = append(sources, &crawler.Source{
			BaseURL: cfg.CrawlerBaseURL,
			// The crawled sites expect a Referer from their own origin.
			Fetcher:     fetch.New(fetch.Config{Timeout: cfg.FetchTimeout, Referer: cfg.CrawlerBaseURL, HostConcurrency: cfg.HostConcurrency, RatePerSec: cfg.RatePerSec}),
			GroupPrefix: cfg.CrawlerPrefix,
		})
	}
	if cfg.MatchFeedURL != "" {
		sources = append(sources, &matchapi.Source{
			FeedURL:       cfg.MatchFeedURL,
			APIRoot:       cfg.MatchRoot(),
			Fetcher:       fetch.New(fetch.Config{Timeout: cfg.FetchTimeout, HostConcurrency: cfg.HostConcurrency, RatePerSec: cfg.RatePerSec}),
			DefaultPoster: cfg.MatchPoster,
		})
	}

	var publisher publish.Publisher
	dropbox := &publish.Dropbox{
		RefreshToken: cfg.DropboxRefreshToken,
		AppKey:       cfg.DropboxAppKey,
		AppSecret:    cfg.DropboxAppSecret,
	}
	if dropbox.Configured() {
		publisher = dropbox
	}

	return &Pipeline{
		Sources: sources,
		Validator: validate.New(validate.Config{
			Fetcher:     fetch.New(fetch.Config{Timeout: cfg.FetchTimeout, Referer: "https://www.google.com/", HostConcurrency: cfg.HostConcurrency, RatePerSec: cfg.RatePerSec}),
			Concurrency: cfg.Concurrency,
			Timeout:     cfg.ProbeTimeout,
		}),
		Assembly:    assemble.Options{EPGURL: cfg.EPGURL, PreferredKeywords: cfg.PreferredGroups},
		OutputPath:  cfg.OutputPath,
		Publisher:   publisher,
		PublishDest: cfg.DropboxPath,
		Deadline:    cfg.RunDeadline,
	}
}

// Run executes the pipeline once. A failing source is logged and skipped;
// only a fully empty candidate set terminates the run.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	if p.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Deadline)
		defer cancel()
	}

	var entries []feed.Entry
	for _, src := range p.Sources {
		got, err := src.Entries(ctx)
		if err != nil {
			log.Printf("pipeline: source %s failed: %v", src.Name(), err)
			continue
		}
		log.Printf("pipeline: source %s: %d candidates", src.Name(), len(got))
		metrics.SourceEntries.WithLabelValues(src.Name()).Add(float64(len(got)))
		entries = append(entries, got...)
	}
	if len(entries) == 0 {
		return nil, ErrNoEntries
	}

	urls := make([]string, 0, len(entries))
	for _, e := range entries {
		urls = append(urls, e.URL)
	}
	log.Printf("pipeline: validating %d candidate URLs ...", len(urls))
	verdicts := p.Validator.ValidateAll(ctx, urls)
	validate.LogSummary(verdicts)

	playlist := assemble.Assemble(entries, verdicts, p.Assembly)
	metrics.PlaylistEntries.Set(float64(len(playlist.Entries)))
	rendered := playlist.Render()

	if err := writeFile(p.OutputPath, rendered); err != nil {
		return nil, fmt.Errorf("pipeline: write artifact: %w", err)
	}
	log.Printf("pipeline: wrote %s (%d entries)", p.OutputPath, len(playlist.Entries))

	res := &Result{
		Candidates: len(entries),
		Playable:   len(playlist.Entries),
		Artifact:   p.OutputPath,
	}

	// Publish failure never invalidates the local artifact.
	if p.Publisher != nil && p.PublishDest != "" {
		link, err := p.Publisher.Publish(ctx, rendered, p.PublishDest)
		if err != nil {
			log.Printf("pipeline: publish failed: %v", err)
		} else {
			log.Printf("pipeline: published to %s (%s)", p.PublishDest, link)
			res.Link = link
		}
	}

	metrics.RunDuration.Observe(time.Since(start).Seconds())
	return res, nil
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
