package instantsearch

// Response is the raw answer to a single Query, in the backend's wire shape.
// It is what snapshots embed, so it must survive a JSON round trip.
type Response struct {
	Hits             []map[string]interface{}  `json:"hits"`
	NbHits           int                       `json:"nbHits"`
	Page             int                       `json:"page"`
	NbPages          int                       `json:"nbPages"`
	HitsPerPage      int                       `json:"hitsPerPage"`
	ProcessingTimeMS int                       `json:"processingTimeMS"`
	Query            string                    `json:"query"`
	Index            string                    `json:"index,omitempty"`
	Facets           map[string]map[string]int `json:"facets,omitempty"`
	FacetsStats      map[string]FacetStats     `json:"facets_stats,omitempty"`
}

// FacetStats summarizes the numeric values of a faceted attribute.
type FacetStats struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	Sum float64 `json:"sum"`
}
