// Package feed holds the shared data model of the aggregation pipeline:
// candidate entries produced by source parsers and validation verdicts
// produced by the stream validator. Entries are immutable once created; the
// validator never touches an Entry, it only emits Verdicts keyed by URL that
// the assembler joins back in.
package feed

import "context"

// Entry is one candidate stream produced by a source parser.
type Entry struct {
	Group string // group-title bucket ("Sports", "24/7 Live", ...)
	Name  string // display name shown in the player
	URL   string // absolute http(s) URL, validated at parse time
	TVGID string // tvg-id attribute; may be empty
	Logo  string // tvg-logo attribute; may be empty
	Order int    // running counter preserving appearance order within the source
}

// Verdict is the validator's liveness determination for one probed URL.
// ResolvedURL differs from URL when a multivariant manifest was substituted
// with its first variant.
type Verdict struct {
	URL         string
	OK          bool
	ResolvedURL string
}

// Source produces an ordered sequence of candidate entries. A Source that
// cannot reach its root input returns an error; partial failures inside a
// source (one bad page, one malformed line) are handled internally and only
// shrink the result.
type Source interface {
	// Name identifies the source in logs and metrics.
	Name() string
	// Entries fetches and parses the source's current listing.
	Entries(ctx context.Context) ([]Entry, error)
}
