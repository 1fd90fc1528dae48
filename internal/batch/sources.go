// Package batch drives multi-source discovery jobs: curated lists, sitemap
// crawls, RSS feeds, AI search, and the recheck queue of previously-seen
// URLs. It reuses the engine/relay contract of quick discovery but classifies
// the engine's free-text progress lines into structured phase events.
package batch

import (
	"errors"
	"strings"
)

// Discovery source names accepted by the engine.
const (
	SourceCurated  = "curated"
	SourceSitemaps = "sitemaps"
	SourceRSS      = "rss"
	SourceSearch   = "search"
	SourceRecheck  = "recheck"
	SourceAll      = "all"
)

var allSources = []string{SourceCurated, SourceSitemaps, SourceRSS, SourceSearch, SourceRecheck}

// ErrNoValidSources rejects a batch request whose source list contains
// nothing usable. An invalid selection is a client error, never silently
// ignored.
var ErrNoValidSources = errors.New("No valid sources selected")

// NormalizeSources validates the caller's source selection against the
// allow-list, lowercasing, de-duplicating, and expanding "all".
func NormalizeSources(sources []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range sources {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == SourceAll {
			return append([]string{}, allSources...), nil
		}
		if !validSource(s) {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, ErrNoValidSources
	}
	return out, nil
}

func validSource(s string) bool {
	for _, v := range allSources {
		if s == v {
			return true
		}
	}
	return false
}
