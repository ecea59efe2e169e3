package instantsearch

// QueryOption configures a Query.
type QueryOption interface {
	Apply(*Query)
}

// Query is a single request sent through a Client. The helper derives one
// main query and zero or more facet count queries from its SearchParameters.
type Query struct {
	// IndexName is the index the query targets.
	IndexName string

	// Text is the full-text query.
	Text string

	// Page is the 0-indexed page to fetch.
	Page int

	// HitsPerPage is the page size. Zero lets the backend pick its default.
	HitsPerPage int

	// MaxValuesPerFacet caps the number of values returned per facet.
	MaxValuesPerFacet int

	// Facets lists the attributes to compute value counts for.
	Facets []string

	// Filters are combined with AND.
	Filters []Expression

	// HighlightPreTag and HighlightPostTag delimit matched terms in
	// _highlightResult and _snippetResult values.
	HighlightPreTag  string
	HighlightPostTag string

	// Params holds any other named query parameter.
	Params map[string]interface{}
}

// optionFunc is a function that implements QueryOption.
type optionFunc func(*Query)

// Apply implements the QueryOption interface for optionFunc.
func (f optionFunc) Apply(q *Query) {
	f(q)
}

// NewQuery builds a query against indexName.
func NewQuery(indexName, text string, opts ...QueryOption) Query {
	q := Query{IndexName: indexName, Text: text}
	for _, opt := range opts {
		opt.Apply(&q)
	}
	return q
}

// WithPage sets the 0-indexed page to fetch.
func WithPage(page int) QueryOption {
	return optionFunc(func(q *Query) {
		q.Page = page
	})
}

// WithHitsPerPage sets the page size.
func WithHitsPerPage(n int) QueryOption {
	return optionFunc(func(q *Query) {
		q.HitsPerPage = n
	})
}

// WithFacets adds attributes to compute facet counts for.
func WithFacets(attributes ...string) QueryOption {
	return optionFunc(func(q *Query) {
		q.Facets = append(q.Facets, attributes...)
	})
}

// WithMaxValuesPerFacet caps facet value lists.
func WithMaxValuesPerFacet(n int) QueryOption {
	return optionFunc(func(q *Query) {
		q.MaxValuesPerFacet = n
	})
}

// WithHighlightTags sets the delimiters the backend wraps matches in.
func WithHighlightTags(pre, post string) QueryOption {
	return optionFunc(func(q *Query) {
		q.HighlightPreTag = pre
		q.HighlightPostTag = post
	})
}

// WithParam sets an arbitrary named query parameter.
func WithParam(name string, value interface{}) QueryOption {
	return optionFunc(func(q *Query) {
		if q.Params == nil {
			q.Params = make(map[string]interface{})
		}
		q.Params[name] = value
	})
}
