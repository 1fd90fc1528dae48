// Package discovery reconstructs structured multi-layer progress from the
// unordered discovery event stream. The reducer is pure and order-tolerant so
// it can be unit-tested without any transport.
package discovery

import (
	"time"

	"github.com/campusbridge/discovery/internal/protocol"
)

// Status is the overall session status.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// LayerStatus advances forward only: pending → running → complete|error.
type LayerStatus string

const (
	LayerPending  LayerStatus = "pending"
	LayerRunning  LayerStatus = "running"
	LayerComplete LayerStatus = "complete"
	LayerError    LayerStatus = "error"
)

var layerRank = map[LayerStatus]int{LayerPending: 0, LayerRunning: 1, LayerComplete: 2, LayerError: 2}

// ItemStatus tracks one unit of work inside a layer.
type ItemStatus string

const (
	ItemPending ItemStatus = "pending"
	ItemRunning ItemStatus = "running"
	ItemSuccess ItemStatus = "success"
	ItemFailed  ItemStatus = "failed"
)

// LayerItem is one tracked unit (a query, a URL, a card) inside a layer.
// IDs are unique within their layer.
type LayerItem struct {
	ID         string     `json:"id"`
	Label      string     `json:"label"`
	Status     ItemStatus `json:"status"`
	Confidence float64    `json:"confidence,omitempty"`
	URL        string     `json:"url,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// LayerState is the reduced view of one pipeline stage.
type LayerState struct {
	ID        protocol.LayerID    `json:"id"`
	Name      string              `json:"name"`
	Status    LayerStatus         `json:"status"`
	StartedAt *time.Time          `json:"startedAt,omitempty"`
	Duration  time.Duration       `json:"duration,omitempty"`
	Expanded  bool                `json:"expanded,omitempty"`
	Message   string              `json:"message,omitempty"`
	Reasoning string              `json:"reasoning,omitempty"`
	Stats     protocol.LayerStats `json:"stats"`
	Items     []LayerItem         `json:"items,omitempty"`
}

// LiveOpportunity is the UI-facing projection of an extracted card,
// deduplicated by id (or URL when the id is absent).
type LiveOpportunity struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Organization    string  `json:"organization,omitempty"`
	Category        string  `json:"category,omitempty"`
	OpportunityType string  `json:"opportunityType,omitempty"`
	URL             string  `json:"url,omitempty"`
	LocationType    string  `json:"locationType,omitempty"`
	Confidence      float64 `json:"confidence,omitempty"`
}

// DiscoveryState is the aggregate root mutated exclusively by Reduce.
type DiscoveryState struct {
	ID              string                          `json:"id"`
	Query           string                          `json:"query"`
	StartedAt       time.Time                       `json:"startedAt"`
	EndedAt         *time.Time                      `json:"endedAt,omitempty"`
	Status          Status                          `json:"status"`
	StatusMessage   string                          `json:"statusMessage,omitempty"`
	OverallProgress int                             `json:"overallProgress"`
	FoundCount      int                             `json:"foundCount"`
	IsPersonalized  bool                            `json:"isPersonalized"`
	Layers          map[protocol.LayerID]LayerState `json:"layers"`
	Opportunities   []LiveOpportunity               `json:"opportunities,omitempty"`
	LastError       string                          `json:"lastError,omitempty"`
	ExitCode        *int                            `json:"exitCode,omitempty"`
}

// NewState creates a fresh running session with all six layers pending.
func NewState(id, query string, now time.Time) DiscoveryState {
	layers := make(map[protocol.LayerID]LayerState, len(protocol.Layers))
	for _, l := range protocol.Layers {
		layers[l] = LayerState{ID: l, Name: protocol.MetaFor(l).Name, Status: LayerPending}
	}
	return DiscoveryState{
		ID:        id,
		Query:     query,
		StartedAt: now,
		Status:    StatusRunning,
		Layers:    layers,
	}
}

// Terminal reports whether the state is frozen.
func (s DiscoveryState) Terminal() bool {
	return s.Status == StatusComplete || s.Status == StatusError
}

// clone deep-copies the mutable parts so Reduce never aliases its input.
func (s DiscoveryState) clone() DiscoveryState {
	out := s
	out.Layers = make(map[protocol.LayerID]LayerState, len(s.Layers))
	for id, layer := range s.Layers {
		l := layer
		l.Items = append([]LayerItem(nil), layer.Items...)
		l.Stats.Active = append([]string(nil), layer.Stats.Active...)
		if layer.StartedAt != nil {
			t := *layer.StartedAt
			l.StartedAt = &t
		}
		out.Layers[id] = l
	}
	out.Opportunities = append([]LiveOpportunity(nil), s.Opportunities...)
	if s.EndedAt != nil {
		t := *s.EndedAt
		out.EndedAt = &t
	}
	if s.ExitCode != nil {
		c := *s.ExitCode
		out.ExitCode = &c
	}
	return out
}
