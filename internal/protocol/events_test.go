package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLineValidEvent(t *testing.T) {
	line := []byte(`{"type":"layer_start","layer":"web_search","message":"searching"}`)
	ev, err := ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if ev.Type != EventLayerStart {
		t.Fatalf("expected layer_start got %s", ev.Type)
	}
	if ev.Layer != LayerWebSearch {
		t.Fatalf("expected web_search got %s", ev.Layer)
	}
}

func TestParseLineRejectsNonEventShapes(t *testing.T) {
	cases := []string{
		"",
		"plain engine log output",
		"Processing 25 URLs from curated sources",
		`{"type":"unknown_kind"}`,
		`{"no_type_field":true}`,
		`{"type":"layer_start","layer":"not_a_layer"}`,
		`{broken json`,
	}
	for _, c := range cases {
		if _, err := ParseLine([]byte(c)); err == nil {
			t.Errorf("expected error for %q", c)
		}
	}
}

func TestParseLineToleratesSurroundingWhitespace(t *testing.T) {
	ev, err := ParseLine([]byte(`   {"type":"reasoning","thought":"narrow to STEM"}  `))
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if ev.Thought != "narrow to STEM" {
		t.Fatalf("unexpected thought: %q", ev.Thought)
	}
}

func TestErrorEventTruncation(t *testing.T) {
	long := strings.Repeat("x", 500)
	ev := ErrorEvent(long, 200)
	if len(ev.Message) > 200 {
		t.Fatalf("message not truncated: %d chars", len(ev.Message))
	}
	short := ErrorEvent("boom", 200)
	if short.Message != "boom" {
		t.Fatalf("short message mangled: %q", short.Message)
	}
}

func TestDoneEventRoundTrip(t *testing.T) {
	b, err := json.Marshal(DoneEvent(3))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	ev, err := ParseLine(b)
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if ev.Type != EventDone || ev.Code == nil || *ev.Code != 3 {
		t.Fatalf("unexpected done event: %+v", ev)
	}
}
