// Package flatlist parses pre-formatted playlist-like text blobs where a
// "<group>,#genre#" line sets the current group for the "<name>,<url>" lines
// that follow it.
package flatlist

import (
	"context"
	"strings"

	"github.com/m3uforge/m3u-forge/internal/feed"
	"github.com/m3uforge/m3u-forge/internal/fetch"
	"github.com/m3uforge/m3u-forge/internal/safeurl"
)

const groupSuffix = ",#genre#"

// Source fetches a flat-list text blob from URL and parses it.
type Source struct {
	URL     string
	Fetcher *fetch.Fetcher
	// TVGID and Logo are stamped on every entry (the flat lists carry no
	// per-channel metadata of their own).
	TVGID string
	Logo  string
}

func (s *Source) Name() string { return "flatlist" }

// Entries fetches the blob and parses it. A root fetch failure fails the
// source; there is nothing to salvage from an unreachable list.
func (s *Source) Entries(ctx context.Context) ([]feed.Entry, error) {
	text, err := s.Fetcher.Text(ctx, s.URL)
	if err != nil {
		return nil, err
	}
	return s.Parse(text), nil
}

// Parse scans text line by line. A line ending in ",#genre#" is a group
// marker; otherwise, if the substring after the last comma is an absolute
// http(s) URL the line is an entry; anything else is skipped as malformed.
func (s *Source) Parse(text string) []feed.Entry {
	var entries []feed.Entry
	currentGroup := ""
	order := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, groupSuffix) {
			currentGroup = strings.TrimSpace(strings.TrimSuffix(line, groupSuffix))
			continue
		}
		i := strings.LastIndex(line, ",")
		if i < 0 {
			continue
		}
		name := strings.TrimSpace(line[:i])
		url := strings.TrimSpace(line[i+1:])
		if name == "" || !safeurl.IsAbsolute(url) {
			continue
		}
		entries = append(entries, feed.Entry{
			Group: currentGroup,
			Name:  name,
			URL:   url,
			TVGID: s.TVGID,
			Logo:  s.Logo,
			Order: order,
		})
		order++
	}
	return entries
}
