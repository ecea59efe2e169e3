package instantsearch

import "slices"

// countTarget is a facet whose counts come from a dedicated query that
// leaves out the facet's own refinements.
type countTarget struct {
	name       string
	attributes []string
}

// countTargets lists, in a stable order, the refined disjunctive and
// hierarchical facets of p. The i-th target matches the (i+1)-th query
// returned by buildQueries.
func countTargets(p SearchParameters) []countTarget {
	var targets []countTarget
	for _, attr := range p.DisjunctiveFacets {
		if len(p.DisjunctiveFacetsRefinements[attr]) > 0 {
			targets = append(targets, countTarget{name: attr, attributes: []string{attr}})
		}
	}
	for _, f := range p.HierarchicalFacets {
		if len(p.HierarchicalFacetsRefinements[f.Name]) > 0 {
			targets = append(targets, countTarget{name: f.Name, attributes: slices.Clone(f.Attributes)})
		}
	}
	return targets
}

// buildQueries derives the request batch for p: the main query carrying
// every refinement, followed by one facet count query per count target.
func buildQueries(p SearchParameters) []Query {
	main := NewQuery(p.Index, p.Query,
		WithPage(p.Page),
		WithHitsPerPage(p.HitsPerPage),
		WithMaxValuesPerFacet(p.MaxValuesPerFacet),
		WithFacets(p.facetAttributes()...),
		WithHighlightTags(p.HighlightPreTag, p.HighlightPostTag),
	)
	for _, f := range p.filters("") {
		f.Apply(&main)
	}
	for name, value := range p.Extra {
		WithParam(name, value).Apply(&main)
	}

	queries := []Query{main}
	for _, target := range countTargets(p) {
		q := NewQuery(p.Index, p.Query,
			WithHitsPerPage(1),
			WithMaxValuesPerFacet(p.MaxValuesPerFacet),
			WithFacets(target.attributes...),
			WithParam("attributesToRetrieve", []string{}),
			WithParam("attributesToHighlight", []string{}),
			WithParam("attributesToSnippet", []string{}),
			WithParam("analytics", false),
		)
		for _, f := range p.filters(target.name) {
			f.Apply(&q)
		}
		queries = append(queries, q)
	}
	return queries
}
