package instantsearch

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// htmlEscaper escapes the same characters as the escape-html package used by
// browser-side renderers, so server and client produce identical markup.
var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// SanitizeResults returns a copy of hits whose _highlightResult and
// _snippetResult annotations are HTML-escaped, with the backend-inserted
// safePreTag/safePostTag tokens turned into preTag/postTag. Hits are copied,
// never modified in place. results must be a list of objects
// ([]map[string]interface{} or []interface{} holding maps).
func SanitizeResults(results interface{}, safePreTag, safePostTag, preTag, postTag string) ([]map[string]interface{}, error) {
	var hits []map[string]interface{}
	switch v := results.(type) {
	case []map[string]interface{}:
		hits = v
	case []interface{}:
		hits = make([]map[string]interface{}, 0, len(v))
		for i, item := range v {
			hit, ok := item.(map[string]interface{})
			if !ok {
				return nil, errors.Wrapf(ErrInvalidResults, "result %d is a %T", i, item)
			}
			hits = append(hits, hit)
		}
	default:
		return nil, errors.Wrapf(ErrInvalidResults, "got %T", results)
	}

	sanitized := make([]map[string]interface{}, 0, len(hits))
	for _, hit := range hits {
		out := make(map[string]interface{}, len(hit))
		for k, v := range hit {
			out[k] = v
		}
		for _, key := range []string{"_highlightResult", "_snippetResult"} {
			if v, ok := hit[key]; ok {
				out[key] = SanitizeHighlights(v, safePreTag, safePostTag, preTag, postTag)
			}
		}
		sanitized = append(sanitized, out)
	}

	return sanitized, nil
}

// SanitizeHighlights walks a highlight annotation tree. Objects holding both
// matchLevel and value are highlight leaves: their value is escaped and the
// safe tokens are replaced by the display tags. Lists and other objects are
// walked recursively; any other value is returned as is.
func SanitizeHighlights(data interface{}, safePreTag, safePostTag, preTag, postTag string) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		if isHighlightLeaf(v) {
			out := make(map[string]interface{}, len(v))
			for k, x := range v {
				out[k] = x
			}
			value := htmlEscaper.Replace(stringify(v["value"]))
			if safePreTag != "" {
				value = strings.ReplaceAll(value, safePreTag, preTag)
			}
			if safePostTag != "" {
				value = strings.ReplaceAll(value, safePostTag, postTag)
			}
			out["value"] = value
			return out
		}
		out := make(map[string]interface{}, len(v))
		for k, x := range v {
			out[k] = SanitizeHighlights(x, safePreTag, safePostTag, preTag, postTag)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, x := range v {
			out[i] = SanitizeHighlights(x, safePreTag, safePostTag, preTag, postTag)
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(v))
		for i, x := range v {
			out[i] = SanitizeHighlights(x, safePreTag, safePostTag, preTag, postTag)
		}
		return out
	default:
		return data
	}
}

func isHighlightLeaf(m map[string]interface{}) bool {
	_, hasLevel := m["matchLevel"]
	_, hasValue := m["value"]
	return hasLevel && hasValue
}

func stringify(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}
