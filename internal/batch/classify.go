package batch

import (
	"regexp"
	"strconv"
)

// PhaseEvent is the structured form of a classified engine log line.
type PhaseEvent struct {
	Type    string `json:"type"`
	Phase   string `json:"phase,omitempty"`
	Message string `json:"message,omitempty"`
	Count   int    `json:"count,omitempty"`
}

// The engine emits free-text progress for batch runs. Classification is
// best-effort and versioned with the engine: lines matching no pattern pass
// through as {type:"log"} rather than being dropped.
type pattern struct {
	re    *regexp.Regexp
	build func(line string, m []string) PhaseEvent
}

var patterns = []pattern{
	// Count lines first: "Processing 25 URLs from curated sources" is a
	// processing event, not a curated phase marker.
	{
		re: regexp.MustCompile(`(?i)processing (\d+) urls?`),
		build: func(_ string, m []string) PhaseEvent {
			n, _ := strconv.Atoi(m[1])
			return PhaseEvent{Type: "processing", Count: n}
		},
	},
	{
		re: regexp.MustCompile(`(?i)successful(?:ly)?\D*(\d+)`),
		build: func(_ string, m []string) PhaseEvent {
			n, _ := strconv.Atoi(m[1])
			return PhaseEvent{Type: "success", Count: n}
		},
	},
	{
		re: regexp.MustCompile(`(?i)curated source`),
		build: func(line string, _ []string) PhaseEvent {
			return PhaseEvent{Type: "status", Phase: SourceCurated, Message: line}
		},
	},
	{
		re: regexp.MustCompile(`(?i)sitemap`),
		build: func(line string, _ []string) PhaseEvent {
			return PhaseEvent{Type: "status", Phase: SourceSitemaps, Message: line}
		},
	},
	{
		re: regexp.MustCompile(`(?i)\brss\b|feed`),
		build: func(line string, _ []string) PhaseEvent {
			return PhaseEvent{Type: "status", Phase: SourceRSS, Message: line}
		},
	},
	{
		re: regexp.MustCompile(`(?i)search(ing)? (the web|for)`),
		build: func(line string, _ []string) PhaseEvent {
			return PhaseEvent{Type: "status", Phase: SourceSearch, Message: line}
		},
	},
	{
		re: regexp.MustCompile(`(?i)recheck`),
		build: func(line string, _ []string) PhaseEvent {
			return PhaseEvent{Type: "status", Phase: SourceRecheck, Message: line}
		},
	},
}

// Classify maps one engine log line to a phase event, falling back to the
// generic log form so no information is lost.
func Classify(line string) PhaseEvent {
	for _, p := range patterns {
		if m := p.re.FindStringSubmatch(line); m != nil {
			return p.build(line, m)
		}
	}
	return PhaseEvent{Type: "log", Message: line}
}
