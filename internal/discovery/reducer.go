package discovery

import (
	"strings"
	"time"

	"github.com/campusbridge/discovery/internal/protocol"
)

// Reduce applies one event to the state and returns the next state. It is a
// pure function: idempotent under re-delivery and tolerant of any event order
// that preserves per-layer relative order. Terminal states are frozen.
func Reduce(s DiscoveryState, ev protocol.DiscoveryEvent, now time.Time) DiscoveryState {
	if s.Terminal() {
		return s
	}
	next := s.clone()

	switch ev.Type {
	case protocol.EventPlan:
		next.StatusMessage = ev.Message

	case protocol.EventSearch:
		layer := next.Layers[protocol.LayerWebSearch]
		advanceLayer(&layer, LayerRunning, now)
		layer.Message = "Searching: " + ev.Query
		upsertItem(&layer, LayerItem{ID: ev.Query, Label: ev.Query, Status: ItemRunning})
		next.Layers[protocol.LayerWebSearch] = layer

	case protocol.EventFound:
		layer := next.Layers[protocol.LayerWebSearch]
		advanceLayer(&layer, LayerRunning, now)
		upsertItem(&layer, LayerItem{ID: ev.URL, Label: ev.URL, URL: ev.URL, Status: ItemSuccess})
		layer.Stats.Total = len(layer.Items)
		next.Layers[protocol.LayerWebSearch] = layer

	case protocol.EventAnalyzing:
		layer := next.Layers[protocol.LayerParallelCrawl]
		advanceLayer(&layer, LayerRunning, now)
		layer.Message = "Analyzing " + ev.URL
		next.Layers[protocol.LayerParallelCrawl] = layer

	case protocol.EventLayerStart:
		layer, ok := next.Layers[ev.Layer]
		if !ok {
			break
		}
		// A layer_start for a layer already running is idempotent.
		advanceLayer(&layer, LayerRunning, now)
		if ev.Message != "" {
			layer.Message = ev.Message
		}
		layer.Expanded = true
		next.Layers[ev.Layer] = layer

	case protocol.EventLayerProgress:
		layer, ok := next.Layers[ev.Layer]
		if !ok {
			break
		}
		advanceLayer(&layer, LayerRunning, now)
		if ev.Item != "" {
			label := ev.Title
			if label == "" {
				label = ev.Item
			}
			upsertItem(&layer, LayerItem{
				ID:         ev.Item,
				Label:      label,
				Status:     itemStatusFrom(ev.Status),
				Confidence: ev.Confidence,
				URL:        ev.URL,
				Error:      ev.Error,
			})
		}
		if ev.Total > 0 {
			layer.Stats.Total = ev.Total
			layer.Stats.Completed = ev.Current
		}
		next.Layers[ev.Layer] = layer

	case protocol.EventLayerComplete:
		layer, ok := next.Layers[ev.Layer]
		if !ok {
			break
		}
		advanceLayer(&layer, LayerComplete, now)
		if ev.Stats != nil {
			layer.Stats = mergeStats(layer.Stats, *ev.Stats)
		}
		for _, id := range ev.Items {
			upsertItem(&layer, LayerItem{ID: id, Label: id, Status: ItemSuccess})
		}
		if layer.StartedAt != nil && layer.Duration == 0 {
			layer.Duration = now.Sub(*layer.StartedAt)
		}
		next.Layers[ev.Layer] = layer

	case protocol.EventParallelStatus:
		layer, ok := next.Layers[ev.Layer]
		if !ok {
			break
		}
		advanceLayer(&layer, LayerRunning, now)
		layer.Stats.Completed = ev.Completed
		layer.Stats.Failed = ev.Failed
		layer.Stats.Total = ev.Active + ev.Completed + ev.Failed + ev.Pending
		layer.Stats.Active = append([]string(nil), ev.ActiveURLs...)
		next.Layers[ev.Layer] = layer

	case protocol.EventReasoning:
		layer, ok := next.Layers[ev.Layer]
		if !ok {
			break
		}
		layer.Reasoning = ev.Thought
		next.Layers[ev.Layer] = layer

	case protocol.EventExtracted, protocol.EventOpportunityFound:
		next.addOpportunity(LiveOpportunity{
			ID:              ev.ID,
			Title:           ev.Title,
			Organization:    ev.Organization,
			Category:        ev.Category,
			OpportunityType: ev.OpportunityType,
			URL:             ev.URL,
			LocationType:    ev.LocationType,
			Confidence:      ev.Confidence,
		})
		if ev.IsPersonalized {
			next.IsPersonalized = true
		}

	case protocol.EventComplete:
		if ev.Count > 0 {
			next.FoundCount = ev.Count
		}
		if ev.IsPersonalized {
			next.IsPersonalized = true
		}
		next.finalize(StatusComplete, now)

	case protocol.EventError:
		next.LastError = ev.Message

	case protocol.EventDone:
		code := 0
		if ev.Code != nil {
			code = *ev.Code
		}
		next.ExitCode = &code
		if code != 0 || next.LastError != "" {
			next.finalize(StatusError, now)
		} else {
			next.finalize(StatusComplete, now)
		}
	}

	next.recomputeProgress()
	return next
}

// finalize freezes the session. Collected items survive an error terminal.
func (s *DiscoveryState) finalize(st Status, now time.Time) {
	s.Status = st
	t := now
	s.EndedAt = &t
	if st == StatusComplete {
		s.OverallProgress = 100
		if s.FoundCount == 0 {
			s.FoundCount = len(s.Opportunities)
		}
	}
}

// recomputeProgress derives overall progress from layer statuses; it never
// decreases while the session is running.
func (s *DiscoveryState) recomputeProgress() {
	if s.Status != StatusRunning {
		return
	}
	var score float64
	for _, l := range s.Layers {
		switch l.Status {
		case LayerComplete, LayerError:
			score += 1
		case LayerRunning:
			score += 0.5
		}
	}
	p := int(score / float64(len(protocol.Layers)) * 100)
	if p > s.OverallProgress {
		s.OverallProgress = p
	}
}

// addOpportunity dedups by id (or URL when the id is absent) and discards
// placeholder titles before surfacing.
func (s *DiscoveryState) addOpportunity(op LiveOpportunity) {
	title := strings.TrimSpace(op.Title)
	if title == "" || strings.EqualFold(title, "unknown") {
		return
	}
	key := op.ID
	if key == "" {
		key = op.URL
	}
	if key == "" {
		return
	}
	for _, existing := range s.Opportunities {
		ek := existing.ID
		if ek == "" {
			ek = existing.URL
		}
		if ek == key {
			return
		}
	}
	s.Opportunities = append(s.Opportunities, op)
	s.FoundCount = len(s.Opportunities)
}

// advanceLayer moves a layer's status forward only. Regressions and
// re-deliveries (a layer_start for a layer already running) are no-ops, so
// duplicate events never restart timers.
func advanceLayer(l *LayerState, to LayerStatus, now time.Time) {
	if layerRank[to] <= layerRank[l.Status] {
		return
	}
	if l.StartedAt == nil {
		t := now
		l.StartedAt = &t
	}
	l.Status = to
}

func itemStatusFrom(s string) ItemStatus {
	switch s {
	case "complete":
		return ItemSuccess
	case "failed":
		return ItemFailed
	case "running":
		return ItemRunning
	default:
		return ItemPending
	}
}

// upsertItem appends unknown item ids and updates known ones in place,
// preserving arrival order.
func upsertItem(l *LayerState, item LayerItem) {
	for i := range l.Items {
		if l.Items[i].ID == item.ID {
			existing := &l.Items[i]
			existing.Status = item.Status
			if item.Label != "" && item.Label != item.ID {
				existing.Label = item.Label
			}
			if item.Confidence != 0 {
				existing.Confidence = item.Confidence
			}
			if item.URL != "" {
				existing.URL = item.URL
			}
			if item.Error != "" {
				existing.Error = item.Error
			}
			return
		}
	}
	l.Items = append(l.Items, item)
}

// mergeStats overlays non-zero incoming fields onto the accumulated bag.
func mergeStats(base, in protocol.LayerStats) protocol.LayerStats {
	out := base
	if in.Total != 0 {
		out.Total = in.Total
	}
	if in.Completed != 0 {
		out.Completed = in.Completed
	}
	if in.Failed != 0 {
		out.Failed = in.Failed
	}
	if in.Skipped != 0 {
		out.Skipped = in.Skipped
	}
	if len(in.Active) != 0 {
		out.Active = append([]string(nil), in.Active...)
	}
	if in.Threshold != 0 {
		out.Threshold = in.Threshold
	}
	if in.Input != 0 {
		out.Input = in.Input
	}
	if in.Output != 0 {
		out.Output = in.Output
	}
	if in.Inserted != 0 {
		out.Inserted = in.Inserted
	}
	if in.Updated != 0 {
		out.Updated = in.Updated
	}
	if in.Queries != 0 {
		out.Queries = in.Queries
	}
	if in.Fallback {
		out.Fallback = true
	}
	return out
}
