package assemble

import (
	"strings"
	"testing"

	"github.com/m3uforge/m3u-forge/internal/feed"
)

func ok(url string) feed.Verdict {
	return feed.Verdict{URL: url, OK: true, ResolvedURL: url}
}

func TestAssemble_dropsInvalidAndMissingVerdicts(t *testing.T) {
	entries := []feed.Entry{
		{Group: "Sports", Name: "A", URL: "http://x/a.m3u8", Order: 0},
		{Group: "Sports", Name: "B", URL: "http://x/b.m3u8", Order: 1},
		{Group: "Sports", Name: "C", URL: "http://x/c.m3u8", Order: 2},
	}
	verdicts := map[string]feed.Verdict{
		"http://x/a.m3u8": ok("http://x/a.m3u8"),
		"http://x/b.m3u8": {URL: "http://x/b.m3u8", OK: false, ResolvedURL: "http://x/b.m3u8"},
		// C has no verdict at all.
	}
	p := Assemble(entries, verdicts, Options{})
	if len(p.Entries) != 1 || p.Entries[0].Name != "A" {
		t.Errorf("entries = %+v", p.Entries)
	}
	text := string(p.Render())
	if strings.Contains(text, "http://x/b.m3u8") || strings.Contains(text, "http://x/c.m3u8") {
		t.Errorf("invalid entries rendered:\n%s", text)
	}
}

func TestAssemble_substitutesResolvedURL(t *testing.T) {
	entries := []feed.Entry{{Group: "G", Name: "N", URL: "http://x/master.m3u8"}}
	verdicts := map[string]feed.Verdict{
		"http://x/master.m3u8": {URL: "http://x/master.m3u8", OK: true, ResolvedURL: "http://x/variant1.m3u8"},
	}
	p := Assemble(entries, verdicts, Options{})
	if len(p.Entries) != 1 || p.Entries[0].URL != "http://x/variant1.m3u8" {
		t.Errorf("entries = %+v", p.Entries)
	}
}

func TestAssemble_dedupByGroupAndResolvedURL(t *testing.T) {
	entries := []feed.Entry{
		{Group: "Sports", Name: "First", URL: "http://x/a.m3u8", Order: 0},
		{Group: "Sports", Name: "Dup", URL: "http://x/a.m3u8", Order: 1},
		{Group: "News", Name: "Same URL other group", URL: "http://x/a.m3u8", Order: 2},
		// Distinct URLs resolving to the same variant also collapse.
		{Group: "Sports", Name: "Master", URL: "http://x/master.m3u8", Order: 3},
	}
	verdicts := map[string]feed.Verdict{
		"http://x/a.m3u8":      ok("http://x/a.m3u8"),
		"http://x/master.m3u8": {URL: "http://x/master.m3u8", OK: true, ResolvedURL: "http://x/a.m3u8"},
	}
	p := Assemble(entries, verdicts, Options{})
	if len(p.Entries) != 2 {
		t.Fatalf("entries = %+v", p.Entries)
	}
	if p.Entries[0].Name != "First" || p.Entries[1].Name != "Same URL other group" {
		t.Errorf("entries = %+v", p.Entries)
	}
	// Invariant: no two survivors share (group, resolvedURL).
	seen := make(map[[2]string]bool)
	for _, e := range p.Entries {
		key := [2]string{e.Group, e.URL}
		if seen[key] {
			t.Fatalf("duplicate survived dedup: %+v", e)
		}
		seen[key] = true
	}
}

func TestAssemble_preservesOrderWithoutPolicy(t *testing.T) {
	entries := []feed.Entry{
		{Group: "B", Name: "b1", URL: "http://x/1"},
		{Group: "A", Name: "a1", URL: "http://x/2"},
		{Group: "B", Name: "b2", URL: "http://x/3"},
		{Group: "A", Name: "a2", URL: "http://x/4"},
	}
	verdicts := make(map[string]feed.Verdict)
	for _, e := range entries {
		verdicts[e.URL] = ok(e.URL)
	}
	p := Assemble(entries, verdicts, Options{})
	var names []string
	for _, e := range p.Entries {
		names = append(names, e.Name)
	}
	want := []string{"b1", "a1", "b2", "a2"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("order = %v; want %v", names, want)
		}
	}
}

func TestAssemble_preferredGroupsFirst(t *testing.T) {
	entries := []feed.Entry{
		{Group: "Movies", Name: "m1", URL: "http://x/1"},
		{Group: "Türkçe Spor", Name: "t1", URL: "http://x/2"},
		{Group: "News", Name: "Turkish Hour", URL: "http://x/3"},
		{Group: "Movies", Name: "m2", URL: "http://x/4"},
	}
	verdicts := make(map[string]feed.Verdict)
	for _, e := range entries {
		verdicts[e.URL] = ok(e.URL)
	}
	p := Assemble(entries, verdicts, Options{PreferredKeywords: []string{"türk", "turkish"}})
	var names []string
	for _, e := range p.Entries {
		names = append(names, e.Name)
	}
	want := []string{"t1", "Turkish Hour", "m1", "m2"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("order = %v; want %v", names, want)
		}
	}
}

func TestRender_headerAndEntryLines(t *testing.T) {
	entries := []feed.Entry{{
		Group: "Sports", Name: "ESPN", URL: "http://x/a.m3u8",
		TVGID: "ESPN.Dummy.us", Logo: "http://logo/espn.png",
	}}
	verdicts := map[string]feed.Verdict{"http://x/a.m3u8": ok("http://x/a.m3u8")}
	p := Assemble(entries, verdicts, Options{EPGURL: "http://epg.example/guide.xml.gz"})
	lines := strings.Split(strings.TrimRight(string(p.Render()), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	if lines[0] != `#EXTM3U x-tvg-url="http://epg.example/guide.xml.gz"` {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != `#EXTINF:-1 tvg-id="ESPN.Dummy.us" tvg-logo="http://logo/espn.png" group-title="Sports",ESPN` {
		t.Errorf("extinf = %q", lines[1])
	}
	if lines[2] != "http://x/a.m3u8" {
		t.Errorf("url = %q", lines[2])
	}
}

func TestRender_bareHeaderWithoutEPG(t *testing.T) {
	p := Assemble(nil, nil, Options{})
	if got := string(p.Render()); got != "#EXTM3U\n" {
		t.Errorf("render = %q", got)
	}
}

func TestExtinfLine_omitsEmptyAttributes(t *testing.T) {
	line := ExtinfLine(feed.Entry{Name: "Bare"})
	if line != "#EXTINF:-1,Bare" {
		t.Errorf("line = %q", line)
	}
}
