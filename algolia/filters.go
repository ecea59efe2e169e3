package algolia

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/algolia/algoliasearch-client-go/v3/algolia/opt"
	"github.com/letmevibethatforyou/instantsearch"
)

// buildSearchParams converts an instantsearch.Query to Algolia search parameters
func buildSearchParams(q instantsearch.Query, agent string) []interface{} {
	var params []interface{}

	if q.HitsPerPage > 0 {
		params = append(params, opt.HitsPerPage(q.HitsPerPage))
	}
	if q.Page > 0 {
		params = append(params, opt.Page(q.Page))
	}
	if len(q.Facets) > 0 {
		params = append(params, opt.Facets(q.Facets...))
	}
	if q.MaxValuesPerFacet > 0 {
		params = append(params, opt.MaxValuesPerFacet(q.MaxValuesPerFacet))
	}
	if q.HighlightPreTag != "" {
		params = append(params, opt.HighlightPreTag(q.HighlightPreTag))
	}
	if q.HighlightPostTag != "" {
		params = append(params, opt.HighlightPostTag(q.HighlightPostTag))
	}
	if filter := buildFilters(q.Filters); filter != "" {
		params = append(params, opt.Filters(filter))
	}
	if agent != "" {
		params = append(params, opt.ExtraHeaders(map[string]string{
			"X-Algolia-Agent": agent,
		}))
	}

	for _, name := range sortedParamNames(q.Params) {
		if p := convertParam(name, q.Params[name]); p != nil {
			params = append(params, p)
		}
	}

	return params
}

// convertParam maps a named query parameter to its Algolia option. Unknown
// names yield nil.
func convertParam(name string, value interface{}) interface{} {
	switch name {
	case "attributesToRetrieve":
		return opt.AttributesToRetrieve(toStrings(value)...)
	case "attributesToHighlight":
		return opt.AttributesToHighlight(toStrings(value)...)
	case "attributesToSnippet":
		return opt.AttributesToSnippet(toStrings(value)...)
	case "analyticsTags":
		return opt.AnalyticsTags(toStrings(value)...)
	case "analytics":
		if b, ok := value.(bool); ok {
			return opt.Analytics(b)
		}
	case "clickAnalytics":
		if b, ok := value.(bool); ok {
			return opt.ClickAnalytics(b)
		}
	case "getRankingInfo":
		if b, ok := value.(bool); ok {
			return opt.GetRankingInfo(b)
		}
	}
	return nil
}

func toStrings(value interface{}) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, x := range v {
			out = append(out, fmt.Sprint(x))
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return strings.Split(v, ",")
	default:
		return nil
	}
}

func sortedParamNames(params map[string]interface{}) []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// buildFilters joins the query filters with AND.
func buildFilters(exprs []instantsearch.Expression) string {
	filterStrings := make([]string, 0, len(exprs))
	for _, expr := range exprs {
		if filterStr := convertExpressionToFilter(expr); filterStr != "" {
			filterStrings = append(filterStrings, filterStr)
		}
	}
	return strings.Join(filterStrings, " AND ")
}

// cacheKey identifies a query for the response cache.
func cacheKey(q instantsearch.Query) string {
	params, _ := json.Marshal(q.Params)
	return strings.Join([]string{
		q.IndexName,
		q.Text,
		strconv.Itoa(q.Page),
		strconv.Itoa(q.HitsPerPage),
		strconv.Itoa(q.MaxValuesPerFacet),
		strings.Join(q.Facets, ","),
		buildFilters(q.Filters),
		q.HighlightPreTag,
		q.HighlightPostTag,
		string(params),
	}, "\x00")
}

// convertExpressionToFilter converts an instantsearch expression to an Algolia filter string
func convertExpressionToFilter(expr instantsearch.Expression) string {
	switch e := expr.(type) {
	case instantsearch.AndExpr:
		return joinExpressions(e.Exprs, " AND ")
	case instantsearch.OrExpr:
		return joinExpressions(e.Exprs, " OR ")
	case instantsearch.NotExpr:
		inner := convertExpressionToFilter(e.Inner)
		if inner == "" {
			return ""
		}
		return "NOT (" + inner + ")"
	case instantsearch.EqExpr:
		if isNumeric(e.Value) {
			return fmt.Sprintf("%s = %s", escapeField(e.Field), escapeNumericValue(e.Value))
		}
		return fmt.Sprintf("%s:%s", escapeField(e.Field), escapeValue(e.Value))
	case instantsearch.NeExpr:
		if isNumeric(e.Value) {
			return fmt.Sprintf("%s != %s", escapeField(e.Field), escapeNumericValue(e.Value))
		}
		return fmt.Sprintf("NOT %s:%s", escapeField(e.Field), escapeValue(e.Value))
	case instantsearch.GtExpr:
		return fmt.Sprintf("%s > %s", escapeField(e.Field), escapeNumericValue(e.Value))
	case instantsearch.GteExpr:
		return fmt.Sprintf("%s >= %s", escapeField(e.Field), escapeNumericValue(e.Value))
	case instantsearch.LtExpr:
		return fmt.Sprintf("%s < %s", escapeField(e.Field), escapeNumericValue(e.Value))
	case instantsearch.LteExpr:
		return fmt.Sprintf("%s <= %s", escapeField(e.Field), escapeNumericValue(e.Value))
	default:
		return ""
	}
}

func joinExpressions(exprs []instantsearch.Expression, sep string) string {
	filters := make([]string, 0, len(exprs))
	for _, e := range exprs {
		if filter := convertExpressionToFilter(e); filter != "" {
			filters = append(filters, "("+filter+")")
		}
	}
	if len(filters) == 0 {
		return ""
	}
	return strings.Join(filters, sep)
}

func isNumeric(value interface{}) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}

// escapeField escapes field names for Algolia filters
func escapeField(field string) string {
	// Algolia field names with special characters should be quoted
	if strings.ContainsAny(field, " :-()") {
		return fmt.Sprintf(`"%s"`, field)
	}
	return field
}

// escapeValue escapes string values for Algolia filters
func escapeValue(value interface{}) string {
	if value == nil {
		return "null"
	}

	switch v := value.(type) {
	case string:
		escaped := strings.ReplaceAll(v, `"`, `\"`)
		return fmt.Sprintf(`"%s"`, escaped)
	case bool:
		return fmt.Sprintf(`"%s"`, strconv.FormatBool(v))
	default:
		return fmt.Sprintf(`"%v"`, value)
	}
}

// escapeNumericValue formats numeric values for Algolia filters
func escapeNumericValue(value interface{}) string {
	switch v := value.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%v", v)
	case nil:
		return "0"
	default:
		if str := fmt.Sprintf("%v", value); str != "" {
			if _, err := strconv.ParseFloat(str, 64); err == nil {
				return str
			}
		}
		return escapeValue(value)
	}
}
