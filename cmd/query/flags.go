package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/letmevibethatforyou/instantsearch"
)

// refinement is a facet refinement given as attribute=value.
type refinement struct {
	attribute string
	value     string
}

// numericFilter is a numeric refinement given as attribute<op>value.
type numericFilter struct {
	attribute string
	op        instantsearch.Operator
	value     float64
}

func parseRefinements(raw []string) ([]refinement, error) {
	refinements := make([]refinement, 0, len(raw))
	for _, item := range raw {
		item = strings.TrimSpace(item)
		if item == "" {
			return nil, fmt.Errorf("refinement cannot be empty")
		}

		parts := strings.SplitN(item, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("refinement must be in attribute=value format: %q", item)
		}

		attribute := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if attribute == "" || value == "" {
			return nil, fmt.Errorf("refinement attribute and value must be non-empty: %q", item)
		}

		refinements = append(refinements, refinement{attribute: attribute, value: value})
	}

	return refinements, nil
}

// numericOperators is ordered so that two-character operators match first.
var numericOperators = []instantsearch.Operator{
	instantsearch.OpGte,
	instantsearch.OpLte,
	instantsearch.OpNe,
	instantsearch.OpGt,
	instantsearch.OpLt,
	instantsearch.OpEq,
}

func parseNumericFilters(raw []string) ([]numericFilter, error) {
	filters := make([]numericFilter, 0, len(raw))
	for _, item := range raw {
		item = strings.TrimSpace(item)
		f, err := parseNumericFilter(item)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, nil
}

func parseNumericFilter(item string) (numericFilter, error) {
	for _, op := range numericOperators {
		idx := strings.Index(item, string(op))
		if idx < 0 {
			continue
		}

		attribute := strings.TrimSpace(item[:idx])
		raw := strings.TrimSpace(item[idx+len(op):])
		if attribute == "" {
			return numericFilter{}, fmt.Errorf("numeric filter has no attribute: %q", item)
		}

		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return numericFilter{}, fmt.Errorf("numeric filter value must be a number: %q", item)
		}

		return numericFilter{attribute: attribute, op: op, value: value}, nil
	}

	return numericFilter{}, fmt.Errorf("numeric filter must be in attribute<op>value format: %q", item)
}

// parseHierarchicalFacet reads name=attr1,attr2,... where the attribute
// list is optional.
func parseHierarchicalFacet(item string, separator string) (instantsearch.HierarchicalFacet, error) {
	item = strings.TrimSpace(item)
	name, attrs, found := strings.Cut(item, "=")
	name = strings.TrimSpace(name)
	if name == "" {
		return instantsearch.HierarchicalFacet{}, fmt.Errorf("hierarchical facet needs a name: %q", item)
	}

	facet := instantsearch.HierarchicalFacet{Name: name, Separator: separator}
	if found {
		for _, attr := range strings.Split(attrs, ",") {
			if attr = strings.TrimSpace(attr); attr != "" {
				facet.Attributes = append(facet.Attributes, attr)
			}
		}
	}
	return facet, nil
}
