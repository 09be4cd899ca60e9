// Package config holds the aggregator's settings, loaded from environment
// variables (a .env file is applied by the CLI via godotenv before Load runs).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds source, validation, output, and publish settings.
type Config struct {
	// Sources. A source is enabled by setting its URL; unset = skipped.
	FlatListURL    string // pre-formatted "name,#genre#" playlist blob
	FlatListTVGID  string // tvg-id stamped on flat-list entries
	FlatListLogo   string // tvg-logo stamped on flat-list entries
	CrawlerBaseURL string // root page of the HTML category/event site
	CrawlerPrefix  string // prepended to crawler group names (e.g. "Roxiestreams - ")
	MatchFeedURL   string // JSON match list endpoint
	MatchAPIRoot   string // API base match stream URLs hang under, e.g. https://site/api
	MatchPoster    string // fallback poster for matches without one

	// Fetching / validation.
	FetchTimeout    time.Duration // per-request timeout
	ProbeTimeout    time.Duration // per-probe deadline in the validator
	Concurrency     int           // validator worker pool size
	HostConcurrency int           // in-flight requests per upstream host
	RatePerSec      float64       // outbound request rate cap; 0 = unlimited
	RunDeadline     time.Duration // whole-run budget; pending probes abort as invalid

	// Output.
	OutputPath      string   // local artifact path
	EPGURL          string   // x-tvg-url header attribute; "" = omit
	PreferredGroups []string // preferred-group-first keywords; empty = policy off

	// Publish (Dropbox). All three credentials required to enable.
	DropboxRefreshToken string
	DropboxAppKey       string
	DropboxAppSecret    string
	DropboxPath         string // remote destination, e.g. "/playlist.m3u"

	// Serve.
	ServeAddr string // listen address for the serve subcommand
}

// Load reads config from environment and applies defaults.
func Load() *Config {
	c := &Config{
		FlatListURL:         os.Getenv("M3U_FORGE_FLATLIST_URL"),
		FlatListTVGID:       getEnv("M3U_FORGE_FLATLIST_TVG_ID", "Blank.Dummy.us"),
		FlatListLogo:        os.Getenv("M3U_FORGE_FLATLIST_LOGO"),
		CrawlerBaseURL:      os.Getenv("M3U_FORGE_CRAWLER_BASE_URL"),
		CrawlerPrefix:       os.Getenv("M3U_FORGE_CRAWLER_GROUP_PREFIX"),
		MatchFeedURL:        os.Getenv("M3U_FORGE_MATCH_FEED_URL"),
		MatchAPIRoot:        os.Getenv("M3U_FORGE_MATCH_API_ROOT"),
		MatchPoster:         os.Getenv("M3U_FORGE_MATCH_POSTER"),
		FetchTimeout:        getEnvDuration("M3U_FORGE_FETCH_TIMEOUT", 10*time.Second),
		ProbeTimeout:        getEnvDuration("M3U_FORGE_PROBE_TIMEOUT", 8*time.Second),
		Concurrency:         getEnvInt("M3U_FORGE_CONCURRENCY", 20),
		HostConcurrency:     getEnvInt("M3U_FORGE_HOST_CONCURRENCY", 4),
		RatePerSec:          getEnvFloat("M3U_FORGE_RATE_PER_SEC", 0),
		RunDeadline:         getEnvDuration("M3U_FORGE_RUN_DEADLINE", 10*time.Minute),
		OutputPath:          getEnv("M3U_FORGE_OUTPUT", "docs/playlist.m3u"),
		EPGURL:              os.Getenv("M3U_FORGE_EPG_URL"),
		PreferredGroups:     getEnvList("M3U_FORGE_PREFERRED_GROUPS"),
		DropboxRefreshToken: os.Getenv("M3U_FORGE_DROPBOX_REFRESH_TOKEN"),
		DropboxAppKey:       os.Getenv("M3U_FORGE_DROPBOX_APP_KEY"),
		DropboxAppSecret:    os.Getenv("M3U_FORGE_DROPBOX_APP_SECRET"),
		DropboxPath:         getEnv("M3U_FORGE_DROPBOX_PATH", "/playlist.m3u"),
		ServeAddr:           getEnv("M3U_FORGE_SERVE_ADDR", ":8080"),
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 20
	}
	if c.HostConcurrency <= 0 {
		c.HostConcurrency = 4
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 8 * time.Second
	}
	if c.RunDeadline <= 0 {
		c.RunDeadline = 10 * time.Minute
	}
	return c
}

// MatchRoot returns the explicit API root, or "<scheme>://<host>/api" derived
// from the feed URL when unset (the feeds live under the same /api base the
// stream endpoints do).
func (c *Config) MatchRoot() string {
	if c.MatchAPIRoot != "" {
		return c.MatchAPIRoot
	}
	u := c.MatchFeedURL
	if i := strings.Index(u, "://"); i >= 0 {
		if j := strings.Index(u[i+3:], "/"); j >= 0 {
			return u[:i+3+j] + "/api"
		}
	}
	return u
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, _ := strconv.Atoi(v)
		return n
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvList splits a comma-separated value, trimming blanks.
func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
