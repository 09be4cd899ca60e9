package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m3uforge/m3u-forge/internal/fetch"
)

func newSite(t *testing.T) (*httptest.Server, *Source) {
	t.Helper()
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`<html><body>
			<a href="/nba">NBA Games</a>
			<a href="/nba">NBA Games duplicate</a>
			<a href="/olympia-nba">Blocked</a>
			<a href="http://elsewhere.example/nba">Offsite NBA</a>
			<a href="javascript:void(0)">JS</a>
			<a href="/about">About</a>
			<a href="/live-streams">All Streams</a>
		</body></html>`))
	})
	mux.HandleFunc("/nba", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a href="/nba/outside">Outside table</a>
			<table id="eventsTable">
				<tr><td><a href="/nba/event1">Lakers vs Celtics</a></td></tr>
				<tr><td><a href="http://elsewhere.example/ev">Offsite event</a></td></tr>
			</table>
		</body></html>`))
	})
	mux.HandleFunc("/nba/event1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><script>var src = "http://cdn.example/live/game1.m3u8";
			var backup = 'http://cdn.example/live/game1.m3u8';
			var alt = "http://cdn2.example/alt.m3u8";</script></html>`))
	})
	mux.HandleFunc("/live-streams", func(w http.ResponseWriter, r *http.Request) {
		// No events table: the section page itself is scraped.
		w.Write([]byte(`<html><body>watch here: http://cdn.example/live/247.m3u8</body></html>`))
	})

	return server, &Source{BaseURL: server.URL, Fetcher: fetch.New(fetch.Config{})}
}

func TestDiscoverSections(t *testing.T) {
	_, s := newSite(t)
	sections, err := s.DiscoverSections(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections; got %d: %+v", len(sections), sections)
	}
	if sections[0].Title != "NBA Games" {
		t.Errorf("sections[0] = %+v", sections[0])
	}
	if sections[1].Title != "All Streams" {
		t.Errorf("sections[1] = %+v", sections[1])
	}
}

func TestDiscoverEvents_onlyTableAnchorsOnRootHost(t *testing.T) {
	server, s := newSite(t)
	events := s.DiscoverEvents(context.Background(), server.URL+"/nba")
	if len(events) != 1 {
		t.Fatalf("expected 1 event; got %d: %+v", len(events), events)
	}
	if events[0].Title != "Lakers vs Celtics" || events[0].URL != server.URL+"/nba/event1" {
		t.Errorf("events[0] = %+v", events[0])
	}
}

func TestExtractManifests_dedupes(t *testing.T) {
	server, s := newSite(t)
	links := s.ExtractManifests(context.Background(), server.URL+"/nba/event1")
	want := []string{"http://cdn.example/live/game1.m3u8", "http://cdn2.example/alt.m3u8"}
	if len(links) != len(want) {
		t.Fatalf("links = %v", links)
	}
	for i := range want {
		if links[i] != want[i] {
			t.Errorf("links[%d] = %q; want %q", i, links[i], want[i])
		}
	}
}

func TestEntries_sectionWithoutTableFallsBackToItself(t *testing.T) {
	_, s := newSite(t)
	entries, err := s.Entries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// nba section: 2 manifests from event1; live-streams section: 1 manifest
	// scraped from the section page itself.
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries; got %d: %+v", len(entries), entries)
	}
	if entries[0].Group != "NBA" || entries[0].Name != "Lakers vs Celtics" {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if entries[0].TVGID != "NBA.Basketball.Dummy.us" {
		t.Errorf("entries[0].TVGID = %q", entries[0].TVGID)
	}
	last := entries[2]
	if last.Group != "Misc" || last.Name != "All Streams" || last.URL != "http://cdn.example/live/247.m3u8" {
		t.Errorf("entries[2] = %+v", last)
	}
	for i, e := range entries {
		if e.Order != i {
			t.Errorf("entries[%d].Order = %d", i, e.Order)
		}
	}
}

func TestEntries_groupPrefix(t *testing.T) {
	_, s := newSite(t)
	s.GroupPrefix = "Roxiestreams - "
	entries, err := s.Entries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) == 0 || entries[0].Group != "Roxiestreams - NBA" {
		t.Errorf("entries[0] = %+v", entries)
	}
}

func TestEntries_unreachableRootFailsSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	s := &Source{BaseURL: server.URL, Fetcher: fetch.New(fetch.Config{})}
	if _, err := s.Entries(context.Background()); err == nil {
		t.Fatal("expected error when root page is unreachable")
	}
}

func TestLookupTopic_firstMatchWins(t *testing.T) {
	s := &Source{}
	if got := s.LookupTopic("http://site.example/ppv-ufc"); got.Group != "PPV" {
		t.Errorf("got %+v", got)
	}
	if got := s.LookupTopic("http://site.example/cricket"); got.Group != "Misc" {
		t.Errorf("got %+v", got)
	}
}
