package inmemory

import (
	"testing"

	"github.com/letmevibethatforyou/instantsearch"
)

func TestExpressionEvaluation(t *testing.T) {
	doc1 := Document{
		ID: "1",
		Fields: map[string]interface{}{
			"name":     "John Doe",
			"age":      32,
			"score":    85.5,
			"active":   true,
			"tags":     []string{"developer", "golang"},
			"location": "New York",
			"specs": map[string]interface{}{
				"doors": 4.0,
			},
		},
	}

	doc2 := Document{
		ID: "2",
		Fields: map[string]interface{}{
			"name":    "Jane Smith",
			"age":     25,
			"score":   92.0,
			"active":  false,
			"ratings": []interface{}{3.0, 4.5},
		},
	}

	tests := map[string]struct {
		doc      Document
		expr     instantsearch.Expression
		expected bool
	}{
		"eq_string_match": {
			doc:      doc1,
			expr:     instantsearch.Eq("name", "John Doe"),
			expected: true,
		},
		"eq_string_no_match": {
			doc:      doc1,
			expr:     instantsearch.Eq("name", "Jane Smith"),
			expected: false,
		},
		"eq_int_against_float": {
			doc:      doc1,
			expr:     instantsearch.Eq("age", 32.0),
			expected: true,
		},
		"eq_bool": {
			doc:      doc2,
			expr:     instantsearch.Eq("active", false),
			expected: true,
		},
		"eq_array_element": {
			doc:      doc1,
			expr:     instantsearch.Eq("tags", "golang"),
			expected: true,
		},
		"eq_array_no_element": {
			doc:      doc1,
			expr:     instantsearch.Eq("tags", "python"),
			expected: false,
		},
		"eq_missing_field": {
			doc:      doc2,
			expr:     instantsearch.Eq("location", "New York"),
			expected: false,
		},
		"eq_nested_field": {
			doc:      doc1,
			expr:     instantsearch.Eq("specs.doors", 4.0),
			expected: true,
		},
		"ne_match": {
			doc:      doc1,
			expr:     instantsearch.Ne("name", "Jane Smith"),
			expected: true,
		},
		"ne_missing_field": {
			doc:      doc2,
			expr:     instantsearch.Ne("location", "Boston"),
			expected: true,
		},
		"gt_match": {
			doc:      doc1,
			expr:     instantsearch.Gt("age", 30.0),
			expected: true,
		},
		"gt_equal_value": {
			doc:      doc1,
			expr:     instantsearch.Gt("age", 32.0),
			expected: false,
		},
		"gte_equal_value": {
			doc:      doc1,
			expr:     instantsearch.Gte("age", 32.0),
			expected: true,
		},
		"lt_match": {
			doc:      doc2,
			expr:     instantsearch.Lt("score", 95.0),
			expected: true,
		},
		"lte_no_match": {
			doc:      doc2,
			expr:     instantsearch.Lte("score", 90.0),
			expected: false,
		},
		"gt_array_any": {
			doc:      doc2,
			expr:     instantsearch.Gt("ratings", 4.0),
			expected: true,
		},
		"gt_missing_field": {
			doc:      doc2,
			expr:     instantsearch.Gt("height", 1.0),
			expected: false,
		},
		"gt_string_field": {
			doc:      doc1,
			expr:     instantsearch.Gt("name", 1.0),
			expected: false,
		},
		"and_all_match": {
			doc: doc1,
			expr: instantsearch.And(
				instantsearch.Eq("active", true),
				instantsearch.Gte("age", 30.0),
			),
			expected: true,
		},
		"and_one_fails": {
			doc: doc1,
			expr: instantsearch.And(
				instantsearch.Eq("active", true),
				instantsearch.Lt("age", 30.0),
			),
			expected: false,
		},
		"or_one_matches": {
			doc: doc2,
			expr: instantsearch.Or(
				instantsearch.Eq("name", "John Doe"),
				instantsearch.Eq("name", "Jane Smith"),
			),
			expected: true,
		},
		"or_empty": {
			doc:      doc2,
			expr:     instantsearch.Or(),
			expected: false,
		},
		"not_inverts": {
			doc:      doc1,
			expr:     instantsearch.Not(instantsearch.Eq("active", true)),
			expected: false,
		},
		"compare_operator": {
			doc:      doc1,
			expr:     instantsearch.Compare("score", instantsearch.OpNe, 85.5),
			expected: false,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := evaluateExpression(tt.doc, tt.expr); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestMatchesFilters(t *testing.T) {
	doc := Document{ID: "1", Fields: map[string]interface{}{"brand": "BMW", "year": 2019.0}}

	tests := map[string]struct {
		filters  []instantsearch.Expression
		expected bool
	}{
		"no_filters": {
			filters:  nil,
			expected: true,
		},
		"all_match": {
			filters:  []instantsearch.Expression{instantsearch.Eq("brand", "BMW"), instantsearch.Gte("year", 2019.0)},
			expected: true,
		},
		"one_fails": {
			filters:  []instantsearch.Expression{instantsearch.Eq("brand", "BMW"), instantsearch.Gt("year", 2019.0)},
			expected: false,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := matchesFilters(doc, tt.filters); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestScoreDocument(t *testing.T) {
	doc := Document{
		ID: "1",
		Fields: map[string]interface{}{
			"title":       "Go Programming Language",
			"description": "Learn Go programming with examples",
			"tags":        []interface{}{"golang", "programming", "tutorial"},
			"nested": map[string]interface{}{
				"author": "John Doe",
				"year":   2023,
			},
			"rating": 4.5,
		},
	}

	tests := map[string]struct {
		query    string
		expected float64
	}{
		"empty_query": {
			query:    "",
			expected: 1.0,
		},
		"whitespace_query": {
			query:    "   ",
			expected: 1.0,
		},
		"single_term_match": {
			query:    "go",
			expected: 4.5, // Found in title, description and tags, boosted
		},
		"single_term_case_insensitive": {
			query:    "GO",
			expected: 4.5,
		},
		"multiple_terms_partial_match": {
			query:    "go python",
			expected: 3.0,
		},
		"no_match": {
			query:    "javascript react",
			expected: 0,
		},
		"match_in_nested": {
			query:    "john",
			expected: 1.5,
		},
		"numeric_match": {
			query:    "4.5",
			expected: 1.5,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := scoreDocument(doc, tt.query); got != tt.expected {
				t.Errorf("Expected score %v, got %v", tt.expected, got)
			}
		})
	}
}
