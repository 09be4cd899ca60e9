// Package matchapi expands a JSON match feed into candidate stream entries.
// Each match carries an epoch-millisecond timestamp (0 or absent means the
// channel is always live), a title, a category, a poster path, and a list of
// source descriptors; every descriptor becomes one deterministic stream URL
// under the API root.
package matchapi

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/m3uforge/m3u-forge/internal/feed"
	"github.com/m3uforge/m3u-forge/internal/fetch"
)

const (
	// AlwaysLiveCategory is passed through verbatim; every other category is
	// title-cased with separators replaced by spaces.
	AlwaysLiveCategory = "24/7 Live"

	// Time window: skip events further than this in the past/future.
	maxPastAge    = 4 * time.Hour
	maxFutureLead = 24 * time.Hour
)

// Match is one record of the match feed. Date is optional: 0 or absent marks
// an always-live channel that is never time-filtered.
type Match struct {
	Date     int64       `json:"date"` // epoch millis; 0 = always live
	Title    string      `json:"title"`
	Category string      `json:"category"`
	Poster   string      `json:"poster"`
	Sources  []SourceRef `json:"sources"`
}

// SourceRef is one stream origin of a match.
type SourceRef struct {
	Source string `json:"source"`
	ID     string `json:"id"`
}

// Source fetches a match feed from FeedURL and expands it into entries.
type Source struct {
	// FeedURL is the match-list endpoint, e.g. <root>/api/matches/all.
	FeedURL string
	// APIRoot is the API base streams hang under, e.g.
	// https://streamed.example/api. Stream URLs are
	// <APIRoot>/stream/<source>/<id>; relative posters resolve against the
	// API root's site origin.
	APIRoot string
	Fetcher *fetch.Fetcher
	// DefaultPoster is used when a match has none.
	DefaultPoster string
	// Now is the clock used for the time window; nil means time.Now. Tests
	// pin it.
	Now func() time.Time
}

func (s *Source) Name() string { return "matchapi" }

// Entries fetches the feed and expands each in-window match. An unreachable
// or undecodable feed fails the source.
func (s *Source) Entries(ctx context.Context) ([]feed.Entry, error) {
	var matches []Match
	if err := s.Fetcher.JSON(ctx, s.FeedURL, &matches); err != nil {
		return nil, err
	}
	return s.Expand(matches), nil
}

// Expand applies the time-window filter and expands each surviving match's
// source descriptors. Descriptors without a usable id are skipped.
func (s *Source) Expand(matches []Match) []feed.Entry {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	var entries []feed.Entry
	order := 0
	for _, m := range matches {
		if s.skip(m, now()) {
			continue
		}
		group := s.category(m)
		poster := s.poster(m)
		for _, src := range m.Sources {
			if src.ID == "" || src.Source == "" {
				continue
			}
			entries = append(entries, feed.Entry{
				Group: group,
				Name:  s.displayName(m, src),
				URL:   fmt.Sprintf("%s/stream/%s/%s", strings.TrimSuffix(s.APIRoot, "/"), src.Source, src.ID),
				Logo:  poster,
				Order: order,
			})
			order++
		}
	}
	return entries
}

// skip reports whether the match falls outside the live window: more than 4h
// in the past or more than 24h in the future. Matches with no timestamp are
// always live and never skipped.
func (s *Source) skip(m Match, now time.Time) bool {
	if m.Date == 0 {
		return false
	}
	eventTime := time.UnixMilli(m.Date).UTC()
	diff := eventTime.Sub(now)
	return diff < -maxPastAge || diff > maxFutureLead
}

func (s *Source) category(m Match) string {
	if m.Date == 0 {
		return AlwaysLiveCategory
	}
	cat := m.Category
	if cat == "" {
		cat = "Unknown"
	}
	if cat == AlwaysLiveCategory {
		return cat
	}
	return titleCase(strings.ReplaceAll(cat, "-", " "))
}

// displayName embeds the event's local (UTC) time, title, source label, and
// date for timed events; always-live channels use the bare title.
func (s *Source) displayName(m Match, src SourceRef) string {
	if m.Date == 0 {
		return m.Title
	}
	t := time.UnixMilli(m.Date).UTC()
	return fmt.Sprintf("%s - %s [%s] - (%s)",
		t.Format("03:04 PM"), m.Title, titleCase(src.Source), t.Format("02/01/2006"))
}

func (s *Source) poster(m Match) string {
	if m.Poster == "" {
		return s.DefaultPoster
	}
	if strings.HasPrefix(m.Poster, "http://") || strings.HasPrefix(m.Poster, "https://") {
		return m.Poster
	}
	return s.siteRoot() + m.Poster
}

// siteRoot strips the API path from APIRoot: posters are site-absolute paths
// ("/api/images/..."), not API-relative ones.
func (s *Source) siteRoot() string {
	u, err := url.Parse(s.APIRoot)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(s.APIRoot, "/")
	}
	return u.Scheme + "://" + u.Host
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
