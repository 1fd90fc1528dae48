package protocol

// LayerID names one stage of the discovery pipeline. The set is closed:
// the engine instruments exactly these six stages, in this order.
type LayerID string

const (
	LayerQueryGeneration LayerID = "query_generation"
	LayerWebSearch       LayerID = "web_search"
	LayerSemanticFilter  LayerID = "semantic_filter"
	LayerParallelCrawl   LayerID = "parallel_crawl"
	LayerAIExtraction    LayerID = "ai_extraction"
	LayerDBSync          LayerID = "db_sync"
)

// Layers is the pipeline order. Consumers may rely on the index of a layer
// within this slice when computing overall progress.
var Layers = []LayerID{
	LayerQueryGeneration,
	LayerWebSearch,
	LayerSemanticFilter,
	LayerParallelCrawl,
	LayerAIExtraction,
	LayerDBSync,
}

// LayerMeta carries static display metadata for a layer.
type LayerMeta struct {
	Name        string
	Icon        string
	Description string
}

var layerMeta = map[LayerID]LayerMeta{
	LayerQueryGeneration: {Name: "Query Generation", Icon: "sparkles", Description: "Expanding your query into targeted search terms"},
	LayerWebSearch:       {Name: "Web Search", Icon: "globe", Description: "Searching the web for candidate pages"},
	LayerSemanticFilter:  {Name: "Semantic Filter", Icon: "funnel", Description: "Ranking results by relevance to your query"},
	LayerParallelCrawl:   {Name: "Parallel Crawl", Icon: "spider", Description: "Fetching candidate pages concurrently"},
	LayerAIExtraction:    {Name: "AI Extraction", Icon: "cpu", Description: "Extracting structured opportunities from pages"},
	LayerDBSync:          {Name: "Database Sync", Icon: "database", Description: "Saving new opportunities"},
}

// MetaFor returns display metadata for a layer. Unknown layers get a zero value.
func MetaFor(id LayerID) LayerMeta { return layerMeta[id] }

// ValidLayer reports whether id is one of the six pipeline layers.
func ValidLayer(id LayerID) bool {
	_, ok := layerMeta[id]
	return ok
}

// LayerIndex returns the position of id in the pipeline, or -1 when unknown.
func LayerIndex(id LayerID) int {
	for i, l := range Layers {
		if l == id {
			return i
		}
	}
	return -1
}
