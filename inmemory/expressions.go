package inmemory

import (
	"fmt"

	"github.com/letmevibethatforyou/instantsearch"
)

// matchesFilters checks if a document matches all the filter expressions.
func matchesFilters(doc Document, filters []instantsearch.Expression) bool {
	for _, filter := range filters {
		if !evaluateExpression(doc, filter) {
			return false
		}
	}
	return true
}

// evaluateExpression evaluates a single expression against a document.
func evaluateExpression(doc Document, expr instantsearch.Expression) bool {
	switch e := expr.(type) {
	case instantsearch.AndExpr:
		for _, inner := range e.Exprs {
			if !evaluateExpression(doc, inner) {
				return false
			}
		}
		return true
	case instantsearch.OrExpr:
		for _, inner := range e.Exprs {
			if evaluateExpression(doc, inner) {
				return true
			}
		}
		return false
	case instantsearch.NotExpr:
		return !evaluateExpression(doc, e.Inner)
	case instantsearch.EqExpr:
		return evaluateEq(doc, e.Field, e.Value)
	case instantsearch.NeExpr:
		return !evaluateEq(doc, e.Field, e.Value)
	case instantsearch.GtExpr:
		return evaluateCompare(doc, e.Field, e.Value, func(c int) bool { return c > 0 })
	case instantsearch.GteExpr:
		return evaluateCompare(doc, e.Field, e.Value, func(c int) bool { return c >= 0 })
	case instantsearch.LtExpr:
		return evaluateCompare(doc, e.Field, e.Value, func(c int) bool { return c < 0 })
	case instantsearch.LteExpr:
		return evaluateCompare(doc, e.Field, e.Value, func(c int) bool { return c <= 0 })
	default:
		// Unknown expression type, return true to not filter out
		return true
	}
}

// evaluateEq matches when the attribute, or any element of a list
// attribute, equals value.
func evaluateEq(doc Document, field string, value interface{}) bool {
	docValue, exists := lookup(doc.Fields, field)
	if !exists {
		return value == nil
	}

	for _, v := range flattenValue(docValue) {
		if compareEqual(v, value) {
			return true
		}
	}
	return false
}

// evaluateCompare matches when any element of the attribute satisfies ok.
// Missing attributes never match.
func evaluateCompare(doc Document, field string, value interface{}, ok func(int) bool) bool {
	docValue, exists := lookup(doc.Fields, field)
	if !exists {
		return false
	}

	for _, v := range flattenValue(docValue) {
		if _, numeric := toFloat64(v); !numeric {
			continue
		}
		if ok(compareValues(v, value)) {
			return true
		}
	}
	return false
}

// compareEqual checks if two values are equal.
func compareEqual(v1, v2 interface{}) bool {
	if v1 == nil || v2 == nil {
		return v1 == v2
	}

	if f1, ok1 := toFloat64(v1); ok1 {
		if f2, ok2 := toFloat64(v2); ok2 {
			return f1 == f2
		}
	}

	return fmt.Sprintf("%v", v1) == fmt.Sprintf("%v", v2)
}

// toFloat64 attempts to convert a value to float64.
func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}
