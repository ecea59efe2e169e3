package instantsearch

import (
	"slices"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// DefaultFacetSort orders refined values first, then by count and name.
var DefaultFacetSort = []string{"isRefined:desc", "count:desc", "name:asc"}

// FacetValue is one value of a faceted attribute with its hit count.
type FacetValue struct {
	Name      string `json:"name"`
	Path      string `json:"path,omitempty"`
	Count     int    `json:"count"`
	IsRefined bool   `json:"isRefined"`

	// Data holds the children of a hierarchical value on the refined branch.
	Data []FacetValue `json:"data,omitempty"`
}

// Refinement describes an active refinement as seen by a result set.
type Refinement struct {
	Type          string   `json:"type"`
	AttributeName string   `json:"attributeName"`
	Name          string   `json:"name"`
	Count         int      `json:"count,omitempty"`
	Operator      Operator `json:"operator,omitempty"`
	NumericValue  float64  `json:"numericValue,omitempty"`
}

// ResultSet is the outcome of one search: the main query's hits and
// pagination plus facet counts merged from the facet count queries.
type ResultSet struct {
	Hits             []map[string]interface{}
	Index            string
	Query            string
	Page             int
	NbPages          int
	NbHits           int
	HitsPerPage      int
	ProcessingTimeMS int

	state  SearchParameters
	facets map[string]map[string]int
	stats  map[string]FacetStats
	raw    []Response
}

// NewResultSet builds a result set from the responses to the queries derived
// from state: the main response first, then one per facet count query.
// Missing count responses fall back to the main response's counts.
func NewResultSet(state SearchParameters, responses []Response) (*ResultSet, error) {
	if len(responses) == 0 {
		return nil, errors.New("instantsearch: no response to build results from")
	}

	main := responses[0]
	rs := &ResultSet{
		Hits:             main.Hits,
		Index:            main.Index,
		Query:            main.Query,
		Page:             main.Page,
		NbPages:          main.NbPages,
		NbHits:           main.NbHits,
		HitsPerPage:      main.HitsPerPage,
		ProcessingTimeMS: main.ProcessingTimeMS,
		state:            state.clone(),
		facets:           make(map[string]map[string]int, len(main.Facets)),
		stats:            make(map[string]FacetStats, len(main.FacetsStats)),
		raw:              responses,
	}
	if rs.Index == "" {
		rs.Index = state.Index
	}
	for attr, counts := range main.Facets {
		rs.facets[attr] = counts
	}
	for attr, s := range main.FacetsStats {
		rs.stats[attr] = s
	}

	for i, target := range countTargets(state) {
		if i+1 >= len(responses) {
			break
		}
		resp := responses[i+1]
		rs.ProcessingTimeMS += resp.ProcessingTimeMS
		for _, attr := range target.attributes {
			if counts, ok := resp.Facets[attr]; ok {
				rs.facets[attr] = counts
			}
			if s, ok := resp.FacetsStats[attr]; ok {
				rs.stats[attr] = s
			}
		}
	}

	return rs, nil
}

// Raw returns the responses the result set was built from.
func (r *ResultSet) Raw() []Response {
	return r.raw
}

// FacetValues returns the values of a faceted attribute sorted by the given
// criteria ("count", "name", "path" or "isRefined", each optionally suffixed
// with ":asc" or ":desc"). Hierarchical facets return a tree expanded along
// the refined path. It fails with ErrFacetNotFound when attribute is not
// registered as a facet.
func (r *ResultSet) FacetValues(attribute string, sortBy []string) ([]FacetValue, error) {
	if len(sortBy) == 0 {
		sortBy = DefaultFacetSort
	}

	kind, ok := r.state.FacetKindOf(attribute)
	if !ok {
		return nil, errors.Wrapf(ErrFacetNotFound, "attribute %q", attribute)
	}

	var values []FacetValue
	switch kind {
	case FacetConjunctive:
		values = r.flatValues(attribute, r.state.FacetsRefinements[attribute])
	case FacetDisjunctive:
		values = r.flatValues(attribute, r.state.DisjunctiveFacetsRefinements[attribute])
	case FacetHierarchical:
		facet, _ := r.state.HierarchicalFacet(attribute)
		var refined string
		if rs := r.state.HierarchicalFacetsRefinements[attribute]; len(rs) > 0 {
			refined = rs[0]
		}
		values = r.treeValues(facet, refined, 0, "")
	}

	sortFacetValues(values, sortBy)
	return values, nil
}

func (r *ResultSet) flatValues(attribute string, refined []string) []FacetValue {
	counts := r.facets[attribute]
	values := make([]FacetValue, 0, len(counts)+len(refined))
	for name, count := range counts {
		values = append(values, FacetValue{
			Name:      name,
			Count:     count,
			IsRefined: slices.Contains(refined, name),
		})
	}
	// refined values the backend no longer returns stay visible with no hits
	for _, name := range refined {
		if _, ok := counts[name]; !ok {
			values = append(values, FacetValue{Name: name, IsRefined: true})
		}
	}
	return values
}

func (r *ResultSet) treeValues(facet HierarchicalFacet, refined string, level int, parent string) []FacetValue {
	if level >= len(facet.Attributes) {
		return nil
	}
	sep := facet.separator()
	counts := r.facets[facet.Attributes[level]]

	var values []FacetValue
	for path, count := range counts {
		if parent != "" && !strings.HasPrefix(path, parent+sep) {
			continue
		}
		name := path
		if idx := strings.LastIndex(path, sep); idx >= 0 {
			name = path[idx+len(sep):]
		}
		v := FacetValue{
			Name:      name,
			Path:      path,
			Count:     count,
			IsRefined: refined == path || strings.HasPrefix(refined, path+sep),
		}
		if v.IsRefined {
			v.Data = r.treeValues(facet, refined, level+1, path)
		}
		values = append(values, v)
	}
	return values
}

// FacetStats returns the numeric stats of attribute, if the backend sent any.
func (r *ResultSet) FacetStats(attribute string) (FacetStats, bool) {
	s, ok := r.stats[attribute]
	return s, ok
}

// Refinements lists the refinements active for the search that produced r.
func (r *ResultSet) Refinements() []Refinement {
	var out []Refinement

	for _, attr := range sortedKeys(r.state.FacetsRefinements) {
		for _, v := range r.state.FacetsRefinements[attr] {
			out = append(out, Refinement{Type: "facet", AttributeName: attr, Name: v, Count: r.facets[attr][v]})
		}
	}
	for _, attr := range sortedKeys(r.state.DisjunctiveFacetsRefinements) {
		for _, v := range r.state.DisjunctiveFacetsRefinements[attr] {
			out = append(out, Refinement{Type: "disjunctive", AttributeName: attr, Name: v, Count: r.facets[attr][v]})
		}
	}
	for _, name := range sortedKeys(r.state.HierarchicalFacetsRefinements) {
		facet, ok := r.state.HierarchicalFacet(name)
		for _, path := range r.state.HierarchicalFacetsRefinements[name] {
			ref := Refinement{Type: "hierarchical", AttributeName: name, Name: path}
			if ok {
				if depth := facet.depth(path); depth < len(facet.Attributes) {
					ref.Count = r.facets[facet.Attributes[depth]][path]
				}
			}
			out = append(out, ref)
		}
	}
	for _, attr := range sortedKeys(r.state.NumericRefinements) {
		ops := r.state.NumericRefinements[attr]
		for _, op := range []Operator{OpEq, OpNe, OpGt, OpGte, OpLt, OpLte} {
			for _, v := range ops[op] {
				out = append(out, Refinement{Type: "numeric", AttributeName: attr, Operator: op, NumericValue: v})
			}
		}
	}

	return out
}

func sortFacetValues(values []FacetValue, criteria []string) {
	// name first so that ties under criteria keep a stable order
	sort.Slice(values, func(i, j int) bool { return values[i].Name < values[j].Name })
	sort.SliceStable(values, func(i, j int) bool {
		for _, c := range criteria {
			field, order, _ := strings.Cut(c, ":")
			desc := order == "desc" || (order == "" && field == "isRefined")
			cmp := compareFacetField(values[i], values[j], field)
			if cmp == 0 {
				continue
			}
			if desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	for i := range values {
		if len(values[i].Data) > 0 {
			sortFacetValues(values[i].Data, criteria)
		}
	}
}

func compareFacetField(a, b FacetValue, field string) int {
	switch field {
	case "count":
		return a.Count - b.Count
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "path":
		return strings.Compare(a.Path, b.Path)
	case "isRefined":
		return boolToInt(a.IsRefined) - boolToInt(b.IsRefined)
	default:
		return 0
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
