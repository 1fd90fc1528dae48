package batch

import "testing"

func TestClassifyPhases(t *testing.T) {
	cases := []struct {
		line  string
		typ   string
		phase string
		count int
	}{
		{"Checking curated sources for new postings", "status", SourceCurated, 0},
		{"Parsing sitemap for university.edu", "status", SourceSitemaps, 0},
		{"Fetching RSS entries", "status", SourceRSS, 0},
		{"Reading feed updates", "status", SourceRSS, 0},
		{"Searching the web for scholarships", "status", SourceSearch, 0},
		{"Recheck pass over 12 stale urls", "status", SourceRecheck, 0},
	}
	for _, c := range cases {
		ev := Classify(c.line)
		if ev.Type != c.typ || ev.Phase != c.phase {
			t.Errorf("Classify(%q) = %+v, want type=%s phase=%s", c.line, ev, c.typ, c.phase)
		}
	}
}

func TestClassifyCountsBeforePhases(t *testing.T) {
	// A line naming both a count and a source must classify as the count.
	ev := Classify("Processing 25 URLs from curated sources")
	if ev.Type != "processing" || ev.Count != 25 {
		t.Fatalf("got %+v", ev)
	}
	ev = Classify("Successfully extracted 7 opportunities")
	if ev.Type != "success" || ev.Count != 7 {
		t.Fatalf("got %+v", ev)
	}
}

func TestClassifyFallsBackToLog(t *testing.T) {
	ev := Classify("engine warming up")
	if ev.Type != "log" || ev.Message != "engine warming up" {
		t.Fatalf("got %+v", ev)
	}
}

func TestNormalizeSources(t *testing.T) {
	got, err := NormalizeSources([]string{" Curated ", "rss", "curated", "bogus"})
	if err != nil {
		t.Fatalf("NormalizeSources: %v", err)
	}
	if len(got) != 2 || got[0] != SourceCurated || got[1] != SourceRSS {
		t.Fatalf("got %v", got)
	}
}

func TestNormalizeSourcesExpandsAll(t *testing.T) {
	got, err := NormalizeSources([]string{"all"})
	if err != nil {
		t.Fatalf("NormalizeSources: %v", err)
	}
	if len(got) != len(allSources) {
		t.Fatalf("got %v", got)
	}
}

func TestNormalizeSourcesRejectsEmptySelection(t *testing.T) {
	for _, in := range [][]string{nil, {}, {"bogus", "other"}} {
		if _, err := NormalizeSources(in); err != ErrNoValidSources {
			t.Errorf("NormalizeSources(%v) err = %v", in, err)
		}
	}
}
