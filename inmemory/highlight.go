package inmemory

import (
	"regexp"
	"sort"
	"strings"
)

// highlightFields builds the _highlightResult annotation of a hit: one leaf
// per string value, mirroring the shape of the document.
func highlightFields(fields map[string]interface{}, text, preTag, postTag string) map[string]interface{} {
	terms := strings.Fields(strings.ToLower(text))
	var pattern *regexp.Regexp
	if len(terms) > 0 {
		quoted := make([]string, len(terms))
		for i, t := range terms {
			quoted[i] = regexp.QuoteMeta(t)
		}
		// longest first so overlapping terms highlight the widest match
		sort.Slice(quoted, func(i, j int) bool { return len(quoted[i]) > len(quoted[j]) })
		pattern = regexp.MustCompile("(?i)" + strings.Join(quoted, "|"))
	}

	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if h, ok := highlightValue(v, terms, pattern, preTag, postTag); ok {
			out[k] = h
		}
	}
	return out
}

func highlightValue(v interface{}, terms []string, pattern *regexp.Regexp, preTag, postTag string) (interface{}, bool) {
	switch val := v.(type) {
	case string:
		return highlightString(val, terms, pattern, preTag, postTag), true
	case []string:
		out := make([]interface{}, len(val))
		for i, s := range val {
			out[i] = highlightString(s, terms, pattern, preTag, postTag)
		}
		return out, true
	case []interface{}:
		out := make([]interface{}, 0, len(val))
		for _, item := range val {
			if h, ok := highlightValue(item, terms, pattern, preTag, postTag); ok {
				out = append(out, h)
			}
		}
		return out, len(out) > 0
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			if h, ok := highlightValue(item, terms, pattern, preTag, postTag); ok {
				out[k] = h
			}
		}
		return out, len(out) > 0
	default:
		return nil, false
	}
}

func highlightString(s string, terms []string, pattern *regexp.Regexp, preTag, postTag string) map[string]interface{} {
	matched := []string{}
	value := s
	if pattern != nil {
		lower := strings.ToLower(s)
		for _, t := range terms {
			if strings.Contains(lower, t) {
				matched = append(matched, t)
			}
		}
		if len(matched) > 0 {
			value = pattern.ReplaceAllStringFunc(s, func(m string) string {
				return preTag + m + postTag
			})
		}
	}

	level := "none"
	switch {
	case len(matched) == 0:
	case len(matched) == len(terms):
		level = "full"
	default:
		level = "partial"
	}

	return map[string]interface{}{
		"value":        value,
		"matchLevel":   level,
		"matchedWords": matched,
	}
}
