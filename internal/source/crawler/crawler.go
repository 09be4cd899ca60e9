// Package crawler discovers live streams from an HTML category/event site:
// section links on the root page, event links inside each section's events
// table, and .m3u8 manifest URLs embedded in each event page. Group and tvg
// metadata come from an ordered topic keyword table matched against the
// section URL, first match wins.
package crawler

import (
	"context"
	"log"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/m3uforge/m3u-forge/internal/feed"
	"github.com/m3uforge/m3u-forge/internal/fetch"
	"github.com/m3uforge/m3u-forge/internal/safeurl"
)

// manifestRe matches absolute URLs ending in the HLS manifest extension
// anywhere in raw page text (script bodies included).
var manifestRe = regexp.MustCompile("https?://[^\\s\"'<>`]+\\.m3u8")

// TVInfo is the metadata bundle attached to entries from one topic.
type TVInfo struct {
	TVGID string
	Logo  string
	Group string
}

// Topic binds a URL keyword to its metadata. Topics are an ordered list, not
// a map: lookup is first-match-wins, so new topics are additive data.
type Topic struct {
	Keyword string
	Info    TVInfo
}

// DefaultTopics covers the sports categories the crawled sites expose.
var DefaultTopics = []Topic{
	{"ppv", TVInfo{"PPV.EVENTS.Dummy.us", "http://drewlive24.duckdns.org:9000/Logos/PPV.png", "PPV"}},
	{"soccer", TVInfo{"Soccer.Dummy.us", "http://drewlive24.duckdns.org:9000/Logos/Soccer.png", "Soccer"}},
	{"ufc", TVInfo{"UFC.Fight.Pass.Dummy.us", "http://drewlive24.duckdns.org:9000/Logos/CombatSports2.png", "UFC"}},
	{"fighting", TVInfo{"PPV.EVENTS.Dummy.us", "http://drewlive24.duckdns.org:9000/Logos/Combat-Sports.png", "Combat Sports"}},
	{"nfl", TVInfo{"Football.Dummy.us", "http://drewlive24.duckdns.org:9000/Logos/Maxx.png", "NFL"}},
	{"nba", TVInfo{"NBA.Basketball.Dummy.us", "http://drewlive24.duckdns.org:9000/Logos/Basketball-2.png", "NBA"}},
	{"mlb", TVInfo{"MLB.Baseball.Dummy.us", "http://drewlive24.duckdns.org:9000/Logos/Baseball3.png", "MLB"}},
	{"wwe", TVInfo{"PPV.EVENTS.Dummy.us", "http://drewlive24.duckdns.org:9000/Logos/WWE2.png", "WWE"}},
	{"f1", TVInfo{"Racing.Dummy.us", "http://drewlive24.duckdns.org:9000/Logos/F1.png", "Formula 1"}},
	{"motorsports", TVInfo{"Racing.Dummy.us", "http://drewlive24.duckdns.org:9000/Logos/F1.png", "Motorsports"}},
	{"nascar", TVInfo{"Racing.Dummy.us", "http://drewlive24.duckdns.org:9000/Logos/Motorsports2.png", "NASCAR Cup Series"}},
}

// UnknownInfo is the bucket for sections no topic keyword matches.
var UnknownInfo = TVInfo{TVGID: "Unknown.Dummy.us", Group: "Misc"}

// DefaultBlocklist: substrings that disqualify a URL from section discovery.
var DefaultBlocklist = []string{"olympia"}

// eventsTableID is the element the crawler looks for on section pages.
const eventsTableID = "eventsTable"

// Section is a discovered top-level category page.
type Section struct {
	URL   string
	Title string
}

// EventLink is a discovered per-event page within a section.
type EventLink struct {
	URL   string
	Title string
}

// Source crawls one site rooted at BaseURL.
type Source struct {
	BaseURL string
	Fetcher *fetch.Fetcher
	// Topics defaults to DefaultTopics, Blocklist to DefaultBlocklist.
	Topics    []Topic
	Blocklist []string
	// GroupPrefix is prepended to every topic group name
	// (e.g. "Roxiestreams - " yields "Roxiestreams - NBA").
	GroupPrefix string
}

func (s *Source) Name() string { return "crawler" }

func (s *Source) topics() []Topic {
	if s.Topics != nil {
		return s.Topics
	}
	return DefaultTopics
}

func (s *Source) blocklist() []string {
	if s.Blocklist != nil {
		return s.Blocklist
	}
	return DefaultBlocklist
}

// LookupTopic matches a section URL against the topic table.
func (s *Source) LookupTopic(sectionURL string) TVInfo {
	lower := strings.ToLower(sectionURL)
	for _, t := range s.topics() {
		if strings.Contains(lower, t.Keyword) {
			return t.Info
		}
	}
	return UnknownInfo
}

// Entries runs the three discovery levels. A fetch failure below the root is
// logged and that branch yields nothing; only an unreachable root page fails
// the whole source.
func (s *Source) Entries(ctx context.Context) ([]feed.Entry, error) {
	sections, err := s.DiscoverSections(ctx)
	if err != nil {
		return nil, err
	}
	log.Printf("crawler: %d sections discovered on %s", len(sections), s.BaseURL)

	var entries []feed.Entry
	order := 0
	for _, sec := range sections {
		info := s.LookupTopic(sec.URL)
		events := s.DiscoverEvents(ctx, sec.URL)
		if len(events) == 0 {
			// Content-bearing section pages without an events table are
			// scraped directly.
			events = []EventLink{{URL: sec.URL, Title: sec.Title}}
		}
		added := 0
		for _, ev := range events {
			for _, link := range s.ExtractManifests(ctx, ev.URL) {
				entries = append(entries, feed.Entry{
					Group: s.GroupPrefix + info.Group,
					Name:  ev.Title,
					URL:   link,
					TVGID: info.TVGID,
					Logo:  info.Logo,
					Order: order,
				})
				order++
				added++
			}
		}
		log.Printf("crawler: section %q: %d events, %d streams", sec.Title, len(events), added)
	}
	return entries, nil
}

// DiscoverSections fetches the root page and returns anchors that resolve to
// the root's host, are not blocklisted, and carry a topic (or "streams")
// keyword in their URL. Deduplicated by resolved URL, in document order.
func (s *Source) DiscoverSections(ctx context.Context) ([]Section, error) {
	body, err := s.Fetcher.Text(ctx, s.BaseURL)
	if err != nil {
		return nil, err
	}
	keywords := make([]string, 0, len(s.topics())+1)
	for _, t := range s.topics() {
		keywords = append(keywords, t.Keyword)
	}
	keywords = append(keywords, "streams")

	var sections []Section
	seen := make(map[string]bool)
	for _, a := range collectAnchors(body, nil) {
		if a.title == "" || skipHref(a.href) {
			continue
		}
		abs := safeurl.Resolve(s.BaseURL, a.href)
		if abs == "" || seen[abs] || !safeurl.SameHost(abs, s.BaseURL) {
			continue
		}
		lower := strings.ToLower(abs)
		if containsAny(lower, s.blocklist()) || !containsAny(lower, keywords) {
			continue
		}
		seen[abs] = true
		sections = append(sections, Section{URL: abs, Title: a.title})
	}
	return sections, nil
}

// DiscoverEvents fetches a section page and returns the links inside its
// events table that resolve to the root host. An unreachable page or a page
// without the table yields nil; the caller applies the section-as-event
// fallback.
func (s *Source) DiscoverEvents(ctx context.Context, sectionURL string) []EventLink {
	body, err := s.Fetcher.Text(ctx, sectionURL)
	if err != nil {
		log.Printf("crawler: section page %s: %v", sectionURL, err)
		return nil
	}
	var events []EventLink
	seen := make(map[string]bool)
	for _, a := range collectAnchors(body, insideTable(eventsTableID)) {
		if a.title == "" || a.href == "" {
			continue
		}
		abs := safeurl.Resolve(sectionURL, a.href)
		if abs == "" || seen[abs] || !safeurl.SameHost(abs, s.BaseURL) {
			continue
		}
		seen[abs] = true
		events = append(events, EventLink{URL: abs, Title: a.title})
	}
	return events
}

// ExtractManifests fetches an event page and returns every absolute .m3u8 URL
// found in the raw text, deduplicated, in order of appearance.
func (s *Source) ExtractManifests(ctx context.Context, pageURL string) []string {
	body, err := s.Fetcher.Text(ctx, pageURL)
	if err != nil {
		log.Printf("crawler: event page %s: %v", pageURL, err)
		return nil
	}
	var links []string
	seen := make(map[string]bool)
	for _, m := range manifestRe.FindAllString(body, -1) {
		if seen[m] {
			continue
		}
		seen[m] = true
		links = append(links, m)
	}
	return links
}

// ─── HTML traversal ──────────────────────────────────────────────────────────

type anchor struct {
	href  string
	title string
}

// scope restricts anchor collection to a subtree; nil means the whole document.
type scope func(*html.Node) bool

// insideTable returns a scope matching <table id="..."> elements.
func insideTable(id string) scope {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "table" && attrVal(n, "id") == id
	}
}

// collectAnchors parses body (best effort; html.Parse never fails on real
// pages) and returns all anchors, optionally limited to subtrees matched by
// sc.
func collectAnchors(body string, sc scope) []anchor {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil
	}
	var out []anchor
	var walk func(n *html.Node, in bool)
	walk = func(n *html.Node, in bool) {
		if sc != nil && !in && sc(n) {
			in = true
		}
		if (sc == nil || in) && n.Type == html.ElementNode && n.Data == "a" {
			if href := attrVal(n, "href"); href != "" {
				out = append(out, anchor{href: href, title: nodeText(n)})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, in)
		}
	}
	walk(doc, sc == nil)
	return out
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

func skipHref(href string) bool {
	return href == "" ||
		strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:")
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
