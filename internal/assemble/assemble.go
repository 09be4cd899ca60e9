// Package assemble joins validator verdicts back into the parsers' candidate
// entries and renders the final M3U playlist. Entries with no verdict or an
// invalid one are dropped, surviving URLs are substituted with their resolved
// form, and duplicates within a group are removed keeping the first
// occurrence. Group membership and relative order are preserved unless the
// pipeline declares the preferred-group-first policy.
package assemble

import (
	"fmt"
	"strings"

	"github.com/m3uforge/m3u-forge/internal/feed"
)

// Options declares per-pipeline assembly policy.
type Options struct {
	// EPGURL, when set, is emitted as the x-tvg-url attribute of the header.
	EPGURL string
	// PreferredKeywords, when non-empty, turns on the preferred-group-first
	// policy: entries whose group name or metadata line matches any keyword
	// (case-insensitive) are emitted before all others, each partition
	// keeping its original relative order. Off by default.
	PreferredKeywords []string
}

// Playlist is the final artifact: rendered once, never mutated after.
type Playlist struct {
	Entries []feed.Entry // survivors, URLs already resolved
	header  string
}

// Assemble merges verdicts into entries per the dedup and ordering policy.
func Assemble(entries []feed.Entry, verdicts map[string]feed.Verdict, opts Options) *Playlist {
	survivors := make([]feed.Entry, 0, len(entries))
	seen := make(map[[2]string]bool, len(entries))
	for _, e := range entries {
		vd, ok := verdicts[e.URL]
		if !ok || !vd.OK {
			continue
		}
		resolved := vd.ResolvedURL
		if resolved == "" {
			resolved = e.URL
		}
		key := [2]string{e.Group, resolved}
		if seen[key] {
			continue
		}
		seen[key] = true
		e.URL = resolved
		survivors = append(survivors, e)
	}

	if len(opts.PreferredKeywords) > 0 {
		survivors = preferredFirst(survivors, opts.PreferredKeywords)
	}

	header := "#EXTM3U"
	if opts.EPGURL != "" {
		header = fmt.Sprintf("#EXTM3U x-tvg-url=%q", opts.EPGURL)
	}
	return &Playlist{Entries: survivors, header: header}
}

// preferredFirst stably partitions entries into keyword matches and the rest.
func preferredFirst(entries []feed.Entry, keywords []string) []feed.Entry {
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}
	preferred := make([]feed.Entry, 0, len(entries))
	other := make([]feed.Entry, 0, len(entries))
	for _, e := range entries {
		haystack := strings.ToLower(e.Group + " " + ExtinfLine(e))
		matched := false
		for _, k := range lowered {
			if strings.Contains(haystack, k) {
				matched = true
				break
			}
		}
		if matched {
			preferred = append(preferred, e)
		} else {
			other = append(other, e)
		}
	}
	return append(preferred, other...)
}

// Render produces the playlist text: the header line, then two lines per
// entry (metadata, resolved URL). UTF-8, newline-terminated.
func (p *Playlist) Render() []byte {
	var b strings.Builder
	b.WriteString(p.header)
	b.WriteByte('\n')
	for _, e := range p.Entries {
		b.WriteString(ExtinfLine(e))
		b.WriteByte('\n')
		b.WriteString(e.URL)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// ExtinfLine renders one entry's metadata line. Empty attributes are omitted.
func ExtinfLine(e feed.Entry) string {
	var b strings.Builder
	b.WriteString("#EXTINF:-1")
	if e.TVGID != "" {
		fmt.Fprintf(&b, " tvg-id=%q", e.TVGID)
	}
	if e.Logo != "" {
		fmt.Fprintf(&b, " tvg-logo=%q", e.Logo)
	}
	if e.Group != "" {
		fmt.Fprintf(&b, " group-title=%q", e.Group)
	}
	b.WriteByte(',')
	b.WriteString(e.Name)
	return b.String()
}
