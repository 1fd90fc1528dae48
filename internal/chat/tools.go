package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/campusbridge/discovery/internal/runtime"
	"github.com/campusbridge/discovery/internal/store"
	"github.com/campusbridge/discovery/provider"
)

// ToolTriggerDiscovery is special-cased by the loop: it is never executed
// inline, it hands the query off to the discovery pipeline instead.
const ToolTriggerDiscovery = "trigger_web_discovery"

// Tool is one callable entry in the registry. Run returns the serialized
// result fed back to the model and, optionally, opportunities to surface on
// the transport.
type Tool struct {
	Def provider.ToolDef
	Run func(ctx context.Context, args json.RawMessage) (string, []store.Opportunity, error)
}

// Registry holds the internal tools exposed to the model.
type Registry struct {
	tools map[string]Tool
	order []string
}

// Lookup returns a registered tool.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Defs lists tool definitions in registration order for the completion call.
func (r *Registry) Defs() []provider.ToolDef {
	defs := make([]provider.ToolDef, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Def)
	}
	return defs
}

func (r *Registry) add(t Tool) {
	r.tools[t.Def.Name] = t
	r.order = append(r.order, t.Def.Name)
}

// statusPhrases maps tool names to the human-readable loading line surfaced
// while streaming; tool iterations themselves are never shown. The phrasing
// deliberately avoids internal terminology.
var statusPhrases = map[string]string{
	"search_opportunities": "Looking through opportunities...",
	"get_categories":       "Checking what's available...",
	"bookmark_opportunity": "Saving that for you...",
	ToolTriggerDiscovery:   "Searching the web for fresh opportunities...",
}

// StatusPhrase returns the loading line for a tool.
func StatusPhrase(name string) string {
	if p, ok := statusPhrases[name]; ok {
		return p
	}
	return "Working on it..."
}

// NewRegistry wires the built-in tools against the store and search index.
func NewRegistry(st *store.Store, idx *OpportunityIndex) *Registry {
	r := &Registry{tools: map[string]Tool{}}

	r.add(Tool{
		Def: provider.ToolDef{
			Name:        "search_opportunities",
			Description: "Search saved opportunities by free text. Returns matching opportunities as JSON.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{"type": "string", "description": "Free text search"},
					"limit": map[string]interface{}{"type": "integer", "description": "Max results, default 5"},
				},
				"required": []string{"query"},
			},
		},
		Run: func(ctx context.Context, args json.RawMessage) (string, []store.Opportunity, error) {
			var in struct {
				Query string `json:"query"`
				Limit int    `json:"limit"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", nil, fmt.Errorf("bad arguments: %w", err)
			}
			if in.Limit <= 0 {
				in.Limit = 5
			}
			var ops []store.Opportunity
			if idx != nil {
				ids, err := idx.Search(in.Query, in.Limit)
				if err == nil && len(ids) > 0 {
					ops, err = st.GetOpportunitiesByIDs(ctx, ids)
					if err != nil {
						return "", nil, err
					}
				}
			}
			if len(ops) == 0 {
				var err error
				ops, err = st.ListOpportunities(ctx, in.Query, "", in.Limit)
				if err != nil {
					return "", nil, err
				}
			}
			out, err := json.Marshal(ops)
			if err != nil {
				return "", nil, err
			}
			return string(out), ops, nil
		},
	})

	r.add(Tool{
		Def: provider.ToolDef{
			Name:        "get_categories",
			Description: "List the opportunity categories currently available.",
			Parameters:  map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		},
		Run: func(ctx context.Context, _ json.RawMessage) (string, []store.Opportunity, error) {
			cats, err := st.ListCategories(ctx)
			if err != nil {
				return "", nil, err
			}
			out, err := json.Marshal(cats)
			if err != nil {
				return "", nil, err
			}
			return string(out), nil, nil
		},
	})

	r.add(Tool{
		Def: provider.ToolDef{
			Name:        "bookmark_opportunity",
			Description: "Bookmark an opportunity for the current user.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"opportunityId": map[string]interface{}{"type": "string"},
				},
				"required": []string{"opportunityId"},
			},
		},
		Run: func(ctx context.Context, args json.RawMessage) (string, []store.Opportunity, error) {
			var in struct {
				OpportunityID string `json:"opportunityId"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", nil, fmt.Errorf("bad arguments: %w", err)
			}
			userID, ok := runtime.SubjectFromContext(ctx)
			if !ok {
				return "", nil, fmt.Errorf("no authenticated user")
			}
			if err := st.CreateBookmark(ctx, userID, in.OpportunityID); err != nil {
				return "", nil, err
			}
			return `{"status":"bookmarked"}`, nil, nil
		},
	})

	r.add(Tool{
		Def: provider.ToolDef{
			Name:        ToolTriggerDiscovery,
			Description: "Start a live web discovery for opportunities matching the query. Use when saved opportunities do not cover the request.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{"type": "string"},
				},
				"required": []string{"query"},
			},
		},
		// Never executed inline; the loop emits the hand-off instead.
		Run: func(context.Context, json.RawMessage) (string, []store.Opportunity, error) {
			return `{"status":"discovery_started"}`, nil, nil
		},
	})

	return r
}
