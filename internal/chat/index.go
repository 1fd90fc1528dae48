package chat

import (
	"fmt"
	"sync"

	"github.com/blevesearch/bleve"

	"github.com/campusbridge/discovery/internal/store"
)

// OpportunityIndex is an in-memory full-text index over persisted
// opportunities, backing the chat search tool. It is rebuilt at startup and
// fed incrementally as discovery upserts cards.
type OpportunityIndex struct {
	mu  sync.RWMutex
	idx bleve.Index
}

type indexedOpportunity struct {
	Title        string `json:"title"`
	Organization string `json:"organization"`
	Category     string `json:"category"`
	Summary      string `json:"summary"`
}

// NewOpportunityIndex creates an empty memory-only index.
func NewOpportunityIndex() (*OpportunityIndex, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &OpportunityIndex{idx: idx}, nil
}

// Add indexes one opportunity.
func (o *OpportunityIndex) Add(op store.Opportunity) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.idx.Index(op.ID, indexedOpportunity{
		Title:        op.Title,
		Organization: op.Organization,
		Category:     op.Category,
		Summary:      op.Summary,
	})
}

// Search returns matching opportunity ids, best first.
func (o *OpportunityIndex) Search(q string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	query := bleve.NewMatchQuery(q)
	req := bleve.NewSearchRequestOptions(query, limit, 0, false)
	res, err := o.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}
