// Package protocol defines the event wire format exchanged between the
// discovery engine, the orchestrator, and streaming clients. It is the only
// contract the other components may depend on.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventType discriminates DiscoveryEvent variants.
type EventType string

const (
	EventPlan             EventType = "plan"
	EventSearch           EventType = "search"
	EventFound            EventType = "found"
	EventAnalyzing        EventType = "analyzing"
	EventExtracted        EventType = "extracted"
	EventOpportunityFound EventType = "opportunity_found"
	EventComplete         EventType = "complete"
	EventDone             EventType = "done"
	EventError            EventType = "error"
	EventLayerStart       EventType = "layer_start"
	EventLayerProgress    EventType = "layer_progress"
	EventLayerComplete    EventType = "layer_complete"
	EventParallelStatus   EventType = "parallel_status"
	EventReasoning        EventType = "reasoning"
)

var knownTypes = map[EventType]struct{}{
	EventPlan: {}, EventSearch: {}, EventFound: {}, EventAnalyzing: {},
	EventExtracted: {}, EventOpportunityFound: {}, EventComplete: {},
	EventDone: {}, EventError: {}, EventLayerStart: {}, EventLayerProgress: {},
	EventLayerComplete: {}, EventParallelStatus: {}, EventReasoning: {},
}

// LayerStats is the sparse stats bag attached to layer_complete events and
// carried on reduced layer state. All fields are optional.
type LayerStats struct {
	Total     int      `json:"total,omitempty"`
	Completed int      `json:"completed,omitempty"`
	Failed    int      `json:"failed,omitempty"`
	Skipped   int      `json:"skipped,omitempty"`
	Active    []string `json:"active,omitempty"`
	Threshold float64  `json:"threshold,omitempty"`
	Input     int      `json:"input,omitempty"`
	Output    int      `json:"output,omitempty"`
	Inserted  int      `json:"inserted,omitempty"`
	Updated   int      `json:"updated,omitempty"`
	Queries   int      `json:"queries,omitempty"`
	Fallback  bool     `json:"fallback,omitempty"`
}

// DiscoveryEvent is the tagged union streamed by the engine. Exactly one Type
// is set per event; only the fields valid for that type are populated.
type DiscoveryEvent struct {
	Type EventType `json:"type"`

	// plan / error / layer_start
	Message string `json:"message,omitempty"`

	// search
	Query string `json:"query,omitempty"`

	// found / analyzing / layer_progress
	URL    string `json:"url,omitempty"`
	Source string `json:"source,omitempty"`

	// layer instrumentation
	Layer      LayerID     `json:"layer,omitempty"`
	Status     string      `json:"status,omitempty"`
	Item       string      `json:"item,omitempty"`
	Current    int         `json:"current,omitempty"`
	Total      int         `json:"total,omitempty"`
	Stats      *LayerStats `json:"stats,omitempty"`
	Items      []string    `json:"items,omitempty"`
	Active     int         `json:"active,omitempty"`
	Completed  int         `json:"completed,omitempty"`
	Failed     int         `json:"failed,omitempty"`
	Pending    int         `json:"pending,omitempty"`
	ActiveURLs []string    `json:"activeUrls,omitempty"`
	Thought    string      `json:"thought,omitempty"`

	// extracted / opportunity_found
	ID              string  `json:"id,omitempty"`
	Title           string  `json:"title,omitempty"`
	Organization    string  `json:"organization,omitempty"`
	Category        string  `json:"category,omitempty"`
	OpportunityType string  `json:"opportunityType,omitempty"`
	Deadline        string  `json:"deadline,omitempty"`
	Summary         string  `json:"summary,omitempty"`
	LocationType    string  `json:"locationType,omitempty"`
	Confidence      float64 `json:"confidence,omitempty"`

	// complete / opportunity_found
	Count          int    `json:"count,omitempty"`
	IsPersonalized bool   `json:"isPersonalized,omitempty"`
	UserID         string `json:"userId,omitempty"`

	// done
	Code *int `json:"code,omitempty"`

	// layer_progress item error text
	Error string `json:"error,omitempty"`
}

// ParseLine accepts a candidate stdout line as an event only when it is
// syntactically a complete JSON object and carries a known type tag. Anything
// else is rejected so a single malformed engine line cannot desynchronize the
// client reducer; callers log rejects internally and never forward them.
func ParseLine(line []byte) (DiscoveryEvent, error) {
	trimmed := strings.TrimSpace(string(line))
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return DiscoveryEvent{}, fmt.Errorf("not a JSON object")
	}
	var ev DiscoveryEvent
	if err := json.Unmarshal([]byte(trimmed), &ev); err != nil {
		return DiscoveryEvent{}, fmt.Errorf("decode event: %w", err)
	}
	if _, ok := knownTypes[ev.Type]; !ok {
		return DiscoveryEvent{}, fmt.Errorf("unknown event type %q", ev.Type)
	}
	if ev.Layer != "" && !ValidLayer(ev.Layer) {
		return DiscoveryEvent{}, fmt.Errorf("unknown layer %q", ev.Layer)
	}
	return ev, nil
}

// Terminal reports whether the event ends a discovery session.
func (e DiscoveryEvent) Terminal() bool { return e.Type == EventDone }

// DoneEvent builds the terminal sentinel carrying the engine exit code.
func DoneEvent(code int) DiscoveryEvent {
	return DiscoveryEvent{Type: EventDone, Code: &code}
}

// ErrorEvent builds a synthetic error event with the message truncated to
// maxLen runes so a noisy engine cannot flood the client.
func ErrorEvent(message string, maxLen int) DiscoveryEvent {
	if maxLen > 0 && len(message) > maxLen {
		message = message[:maxLen]
	}
	return DiscoveryEvent{Type: EventError, Message: message}
}
