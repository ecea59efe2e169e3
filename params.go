package instantsearch

import (
	"slices"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
)

// DefaultHierarchicalSeparator separates levels in hierarchical refinement paths.
const DefaultHierarchicalSeparator = " > "

// HierarchicalFacet describes a tree-shaped facet: one attribute per level,
// each holding the full path of the node (e.g. "Cars > Sedan").
type HierarchicalFacet struct {
	Name       string   `json:"name" mapstructure:"name"`
	Attributes []string `json:"attributes" mapstructure:"attributes"`
	Separator  string   `json:"separator" mapstructure:"separator"`
}

func (f HierarchicalFacet) separator() string {
	if f.Separator == "" {
		return DefaultHierarchicalSeparator
	}
	return f.Separator
}

// depth returns the 0-indexed level a refinement path lives on.
func (f HierarchicalFacet) depth(path string) int {
	return strings.Count(path, f.separator())
}

// parent returns the path one level above, or "" for a root value.
func (f HierarchicalFacet) parent(path string) string {
	idx := strings.LastIndex(path, f.separator())
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// SearchParameters is the query state of a search session. It is a value
// type: every mutator returns an updated copy and leaves the receiver as is.
type SearchParameters struct {
	Index             string `mapstructure:"index"`
	Query             string `mapstructure:"query"`
	Page              int    `mapstructure:"page"`
	HitsPerPage       int    `mapstructure:"hitsPerPage"`
	MaxValuesPerFacet int    `mapstructure:"maxValuesPerFacet"`
	HighlightPreTag   string `mapstructure:"highlightPreTag"`
	HighlightPostTag  string `mapstructure:"highlightPostTag"`

	Facets             []string            `mapstructure:"facets"`
	DisjunctiveFacets  []string            `mapstructure:"disjunctiveFacets"`
	HierarchicalFacets []HierarchicalFacet `mapstructure:"hierarchicalFacets"`

	FacetsRefinements             map[string][]string               `mapstructure:"facetsRefinements"`
	DisjunctiveFacetsRefinements  map[string][]string               `mapstructure:"disjunctiveFacetsRefinements"`
	HierarchicalFacetsRefinements map[string][]string               `mapstructure:"hierarchicalFacetsRefinements"`
	NumericRefinements            map[string]map[Operator][]float64 `mapstructure:"numericRefinements"`

	// Extra holds named query parameters without a dedicated field.
	Extra map[string]interface{} `mapstructure:"-"`
}

// knownParameters are the flattened keys backed by a dedicated field.
var knownParameters = map[string]struct{}{
	"index": {}, "query": {}, "page": {}, "hitsPerPage": {}, "maxValuesPerFacet": {},
	"highlightPreTag": {}, "highlightPostTag": {},
	"facets": {}, "disjunctiveFacets": {}, "hierarchicalFacets": {},
	"facetsRefinements": {}, "disjunctiveFacetsRefinements": {},
	"hierarchicalFacetsRefinements": {}, "numericRefinements": {},
}

// MakeSearchParameters decodes a flat parameter map, as produced by Flatten,
// into SearchParameters. Keys without a dedicated field land in Extra. The
// map is decoded in full before anything is returned, so a failure never
// yields a partially populated value.
func MakeSearchParameters(params map[string]interface{}) (SearchParameters, error) {
	var p SearchParameters
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &p,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return SearchParameters{}, errors.Wrap(err, "failed to create parameter decoder")
	}

	known := make(map[string]interface{}, len(params))
	for k, v := range params {
		if _, ok := knownParameters[k]; ok {
			known[k] = v
			continue
		}
		if v == nil {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]interface{})
		}
		p.Extra[k] = v
	}

	if err := decoder.Decode(known); err != nil {
		return SearchParameters{}, errors.WithSecondaryError(ErrInvalidParameters, err)
	}

	for attr, ops := range p.NumericRefinements {
		for op := range ops {
			if !op.Valid() {
				return SearchParameters{}, errors.Wrapf(ErrInvalidOperator, "numeric refinement %q %q", attr, op)
			}
		}
	}
	for i, f := range p.HierarchicalFacets {
		if f.Name == "" {
			return SearchParameters{}, errors.Wrapf(ErrInvalidParameters, "hierarchical facet %d has no name", i)
		}
		if len(f.Attributes) == 0 {
			p.HierarchicalFacets[i].Attributes = []string{f.Name}
		}
	}

	return p, nil
}

// Flatten returns the parameters as a flat name → value map. Every known
// parameter is present; collections are never nil and are deep copies.
func (p SearchParameters) Flatten() map[string]interface{} {
	c := p.clone()
	out := map[string]interface{}{
		"index":                         c.Index,
		"query":                         c.Query,
		"page":                          c.Page,
		"hitsPerPage":                   c.HitsPerPage,
		"maxValuesPerFacet":             c.MaxValuesPerFacet,
		"highlightPreTag":               c.HighlightPreTag,
		"highlightPostTag":              c.HighlightPostTag,
		"facets":                        orEmpty(c.Facets),
		"disjunctiveFacets":             orEmpty(c.DisjunctiveFacets),
		"hierarchicalFacets":            orEmpty(c.HierarchicalFacets),
		"facetsRefinements":             orEmptyMap(c.FacetsRefinements),
		"disjunctiveFacetsRefinements":  orEmptyMap(c.DisjunctiveFacetsRefinements),
		"hierarchicalFacetsRefinements": orEmptyMap(c.HierarchicalFacetsRefinements),
		"numericRefinements":            orEmptyMap(c.NumericRefinements),
	}
	for k, v := range c.Extra {
		out[k] = v
	}
	return out
}

// SetQueryParameter returns a copy with one named parameter replaced.
// A nil value resets the parameter.
func (p SearchParameters) SetQueryParameter(name string, value interface{}) (SearchParameters, error) {
	flat := p.Flatten()
	if value == nil {
		delete(flat, name)
	} else {
		flat[name] = value
	}
	return MakeSearchParameters(flat)
}

// QueryParameter returns the value of a named parameter, or nil.
func (p SearchParameters) QueryParameter(name string) interface{} {
	return p.Flatten()[name]
}

// IsConjunctiveFacet reports whether attribute is registered as an AND facet.
func (p SearchParameters) IsConjunctiveFacet(attribute string) bool {
	return slices.Contains(p.Facets, attribute)
}

// IsDisjunctiveFacet reports whether attribute is registered as an OR facet.
func (p SearchParameters) IsDisjunctiveFacet(attribute string) bool {
	return slices.Contains(p.DisjunctiveFacets, attribute)
}

// IsHierarchicalFacet reports whether a hierarchical facet named name exists.
func (p SearchParameters) IsHierarchicalFacet(name string) bool {
	_, ok := p.HierarchicalFacet(name)
	return ok
}

// HierarchicalFacet returns the hierarchical facet registered under name.
func (p SearchParameters) HierarchicalFacet(name string) (HierarchicalFacet, bool) {
	for _, f := range p.HierarchicalFacets {
		if f.Name == name {
			return f, true
		}
	}
	return HierarchicalFacet{}, false
}

// FacetKindOf returns the kind attribute is registered under.
func (p SearchParameters) FacetKindOf(attribute string) (FacetKind, bool) {
	switch {
	case p.IsConjunctiveFacet(attribute):
		return FacetConjunctive, true
	case p.IsDisjunctiveFacet(attribute):
		return FacetDisjunctive, true
	case p.IsHierarchicalFacet(attribute):
		return FacetHierarchical, true
	default:
		return "", false
	}
}

// AddFacet registers attribute as a conjunctive facet.
func (p SearchParameters) AddFacet(attribute string) SearchParameters {
	c := p.clone()
	if !c.IsConjunctiveFacet(attribute) {
		c.Facets = append(c.Facets, attribute)
	}
	return c
}

// AddDisjunctiveFacet registers attribute as a disjunctive facet.
func (p SearchParameters) AddDisjunctiveFacet(attribute string) SearchParameters {
	c := p.clone()
	if !c.IsDisjunctiveFacet(attribute) {
		c.DisjunctiveFacets = append(c.DisjunctiveFacets, attribute)
	}
	return c
}

// AddHierarchicalFacet registers a hierarchical facet. A facet without
// attributes uses its name as the single level.
func (p SearchParameters) AddHierarchicalFacet(facet HierarchicalFacet) SearchParameters {
	c := p.clone()
	if c.IsHierarchicalFacet(facet.Name) {
		return c
	}
	if len(facet.Attributes) == 0 {
		facet.Attributes = []string{facet.Name}
	}
	facet.Attributes = slices.Clone(facet.Attributes)
	c.HierarchicalFacets = append(c.HierarchicalFacets, facet)
	return c
}

// RemoveFacet unregisters a conjunctive facet and drops its refinements.
func (p SearchParameters) RemoveFacet(attribute string) SearchParameters {
	c := p.clone()
	c.Facets = slices.DeleteFunc(c.Facets, func(a string) bool { return a == attribute })
	delete(c.FacetsRefinements, attribute)
	return c
}

// RemoveDisjunctiveFacet unregisters a disjunctive facet and drops its refinements.
func (p SearchParameters) RemoveDisjunctiveFacet(attribute string) SearchParameters {
	c := p.clone()
	c.DisjunctiveFacets = slices.DeleteFunc(c.DisjunctiveFacets, func(a string) bool { return a == attribute })
	delete(c.DisjunctiveFacetsRefinements, attribute)
	return c
}

// RemoveHierarchicalFacet unregisters a hierarchical facet and drops its refinement.
func (p SearchParameters) RemoveHierarchicalFacet(name string) SearchParameters {
	c := p.clone()
	c.HierarchicalFacets = slices.DeleteFunc(c.HierarchicalFacets, func(f HierarchicalFacet) bool { return f.Name == name })
	delete(c.HierarchicalFacetsRefinements, name)
	return c
}

// AddFacetRefinement adds value to a conjunctive facet's refinements.
func (p SearchParameters) AddFacetRefinement(attribute, value string) SearchParameters {
	c := p.clone()
	c.FacetsRefinements = addValue(c.FacetsRefinements, attribute, value)
	return c
}

// RemoveFacetRefinement removes value from a conjunctive facet's refinements.
func (p SearchParameters) RemoveFacetRefinement(attribute, value string) SearchParameters {
	c := p.clone()
	c.FacetsRefinements = removeValue(c.FacetsRefinements, attribute, value)
	return c
}

// AddDisjunctiveFacetRefinement adds value to a disjunctive facet's refinements.
func (p SearchParameters) AddDisjunctiveFacetRefinement(attribute, value string) SearchParameters {
	c := p.clone()
	c.DisjunctiveFacetsRefinements = addValue(c.DisjunctiveFacetsRefinements, attribute, value)
	return c
}

// RemoveDisjunctiveFacetRefinement removes value from a disjunctive facet's refinements.
func (p SearchParameters) RemoveDisjunctiveFacetRefinement(attribute, value string) SearchParameters {
	c := p.clone()
	c.DisjunctiveFacetsRefinements = removeValue(c.DisjunctiveFacetsRefinements, attribute, value)
	return c
}

// AddHierarchicalFacetRefinement sets the refined path of a hierarchical
// facet. A hierarchical facet holds at most one refinement.
func (p SearchParameters) AddHierarchicalFacetRefinement(name, path string) SearchParameters {
	c := p.clone()
	if c.HierarchicalFacetsRefinements == nil {
		c.HierarchicalFacetsRefinements = make(map[string][]string)
	}
	c.HierarchicalFacetsRefinements[name] = []string{path}
	return c
}

// ToggleHierarchicalFacetRefinement refines path, or moves up to its parent
// when path (or one of its descendants) is already refined.
func (p SearchParameters) ToggleHierarchicalFacetRefinement(name, path string) SearchParameters {
	facet, ok := p.HierarchicalFacet(name)
	if !ok {
		return p.clone()
	}
	current := p.HierarchicalFacetsRefinements[name]
	if len(current) > 0 && (current[0] == path || strings.HasPrefix(current[0], path+facet.separator())) {
		c := p.clone()
		if parent := facet.parent(path); parent != "" {
			c.HierarchicalFacetsRefinements[name] = []string{parent}
		} else {
			delete(c.HierarchicalFacetsRefinements, name)
		}
		return c
	}
	return p.AddHierarchicalFacetRefinement(name, path)
}

// ToggleRefinement adds or removes value on attribute according to the kind
// it is registered under.
func (p SearchParameters) ToggleRefinement(attribute, value string) (SearchParameters, error) {
	kind, ok := p.FacetKindOf(attribute)
	if !ok {
		return SearchParameters{}, errors.Wrapf(ErrFacetNotFound, "cannot toggle %q", attribute)
	}
	switch kind {
	case FacetConjunctive:
		if slices.Contains(p.FacetsRefinements[attribute], value) {
			return p.RemoveFacetRefinement(attribute, value), nil
		}
		return p.AddFacetRefinement(attribute, value), nil
	case FacetDisjunctive:
		if slices.Contains(p.DisjunctiveFacetsRefinements[attribute], value) {
			return p.RemoveDisjunctiveFacetRefinement(attribute, value), nil
		}
		return p.AddDisjunctiveFacetRefinement(attribute, value), nil
	default:
		return p.ToggleHierarchicalFacetRefinement(attribute, value), nil
	}
}

// IsRefined reports whether value is an active refinement of attribute.
func (p SearchParameters) IsRefined(attribute, value string) bool {
	return slices.Contains(p.FacetsRefinements[attribute], value) ||
		slices.Contains(p.DisjunctiveFacetsRefinements[attribute], value) ||
		slices.Contains(p.HierarchicalFacetsRefinements[attribute], value)
}

// AddNumericRefinement adds a numeric condition on attribute. Several
// operators may be active on the same attribute at once.
func (p SearchParameters) AddNumericRefinement(attribute string, op Operator, value float64) (SearchParameters, error) {
	if !op.Valid() {
		return SearchParameters{}, errors.Wrapf(ErrInvalidOperator, "operator %q", op)
	}
	c := p.clone()
	if c.NumericRefinements == nil {
		c.NumericRefinements = make(map[string]map[Operator][]float64)
	}
	ops := c.NumericRefinements[attribute]
	if ops == nil {
		ops = make(map[Operator][]float64)
		c.NumericRefinements[attribute] = ops
	}
	if !slices.Contains(ops[op], value) {
		ops[op] = append(ops[op], value)
	}
	return c, nil
}

// RemoveNumericRefinement removes one numeric condition from attribute.
func (p SearchParameters) RemoveNumericRefinement(attribute string, op Operator, value float64) (SearchParameters, error) {
	if !op.Valid() {
		return SearchParameters{}, errors.Wrapf(ErrInvalidOperator, "operator %q", op)
	}
	c := p.clone()
	ops := c.NumericRefinements[attribute]
	if ops == nil {
		return c, nil
	}
	ops[op] = slices.DeleteFunc(ops[op], func(v float64) bool { return v == value })
	if len(ops[op]) == 0 {
		delete(ops, op)
	}
	if len(ops) == 0 {
		delete(c.NumericRefinements, attribute)
	}
	return c, nil
}

// ClearRefinements drops every refinement on attribute, or on all
// attributes when attribute is empty. Facet registrations are kept.
func (p SearchParameters) ClearRefinements(attribute string) SearchParameters {
	c := p.clone()
	if attribute == "" {
		c.FacetsRefinements = nil
		c.DisjunctiveFacetsRefinements = nil
		c.HierarchicalFacetsRefinements = nil
		c.NumericRefinements = nil
		return c
	}
	delete(c.FacetsRefinements, attribute)
	delete(c.DisjunctiveFacetsRefinements, attribute)
	delete(c.HierarchicalFacetsRefinements, attribute)
	delete(c.NumericRefinements, attribute)
	return c
}

// facetAttributes lists every attribute the backend must count values for.
func (p SearchParameters) facetAttributes() []string {
	attrs := slices.Clone(p.Facets)
	attrs = append(attrs, p.DisjunctiveFacets...)
	for _, f := range p.HierarchicalFacets {
		attrs = append(attrs, f.Attributes...)
	}
	return attrs
}

// filters compiles the active refinements into expressions. The refinements
// of the facet named exclude are left out, which is how facet count queries
// see the values a disjunctive facet could still be refined with.
func (p SearchParameters) filters(exclude string) []Expression {
	var exprs []Expression

	for _, attr := range sortedKeys(p.FacetsRefinements) {
		for _, v := range p.FacetsRefinements[attr] {
			exprs = append(exprs, Eq(attr, v))
		}
	}

	for _, attr := range sortedKeys(p.DisjunctiveFacetsRefinements) {
		values := p.DisjunctiveFacetsRefinements[attr]
		if attr == exclude || len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			exprs = append(exprs, Eq(attr, values[0]))
			continue
		}
		or := make([]Expression, 0, len(values))
		for _, v := range values {
			or = append(or, Eq(attr, v))
		}
		exprs = append(exprs, Or(or...))
	}

	for _, name := range sortedKeys(p.HierarchicalFacetsRefinements) {
		values := p.HierarchicalFacetsRefinements[name]
		facet, ok := p.HierarchicalFacet(name)
		if name == exclude || !ok || len(values) == 0 {
			continue
		}
		depth := facet.depth(values[0])
		if depth >= len(facet.Attributes) {
			continue
		}
		exprs = append(exprs, Eq(facet.Attributes[depth], values[0]))
	}

	for _, attr := range sortedKeys(p.NumericRefinements) {
		ops := p.NumericRefinements[attr]
		opKeys := make([]string, 0, len(ops))
		for op := range ops {
			opKeys = append(opKeys, string(op))
		}
		sort.Strings(opKeys)
		for _, op := range opKeys {
			for _, v := range ops[Operator(op)] {
				if e := Compare(attr, Operator(op), v); e != nil {
					exprs = append(exprs, e)
				}
			}
		}
	}

	return exprs
}

func (p SearchParameters) clone() SearchParameters {
	c := p
	c.Facets = slices.Clone(p.Facets)
	c.DisjunctiveFacets = slices.Clone(p.DisjunctiveFacets)
	if p.HierarchicalFacets != nil {
		c.HierarchicalFacets = make([]HierarchicalFacet, len(p.HierarchicalFacets))
		for i, f := range p.HierarchicalFacets {
			f.Attributes = slices.Clone(f.Attributes)
			c.HierarchicalFacets[i] = f
		}
	}
	c.FacetsRefinements = cloneRefinements(p.FacetsRefinements)
	c.DisjunctiveFacetsRefinements = cloneRefinements(p.DisjunctiveFacetsRefinements)
	c.HierarchicalFacetsRefinements = cloneRefinements(p.HierarchicalFacetsRefinements)
	if p.NumericRefinements != nil {
		c.NumericRefinements = make(map[string]map[Operator][]float64, len(p.NumericRefinements))
		for attr, ops := range p.NumericRefinements {
			m := make(map[Operator][]float64, len(ops))
			for op, vs := range ops {
				m[op] = slices.Clone(vs)
			}
			c.NumericRefinements[attr] = m
		}
	}
	if p.Extra != nil {
		c.Extra = make(map[string]interface{}, len(p.Extra))
		for k, v := range p.Extra {
			c.Extra[k] = v
		}
	}
	return c
}

func cloneRefinements(m map[string][]string) map[string][]string {
	if m == nil {
		return nil
	}
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

func addValue(m map[string][]string, attribute, value string) map[string][]string {
	if m == nil {
		m = make(map[string][]string)
	}
	if !slices.Contains(m[attribute], value) {
		m[attribute] = append(m[attribute], value)
	}
	return m
}

func removeValue(m map[string][]string, attribute, value string) map[string][]string {
	values := slices.DeleteFunc(m[attribute], func(v string) bool { return v == value })
	if len(values) == 0 {
		delete(m, attribute)
	} else {
		m[attribute] = values
	}
	return m
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func orEmptyMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return map[K]V{}
	}
	return m
}
