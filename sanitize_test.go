package instantsearch

import (
	"errors"
	"reflect"
	"testing"
)

func TestSanitizeResults_EscapesUntrustedMarkup(t *testing.T) {
	hits := []map[string]interface{}{
		{
			"objectID": "1",
			"title":    "<b>raw</b>",
			"_highlightResult": map[string]interface{}{
				"title": map[string]interface{}{
					"value":      "__ais-highlight__<b>fo<script>o</script></b>__/ais-highlight__",
					"matchLevel": "full",
				},
			},
		},
	}

	got, err := SanitizeResults(hits, HighlightPreTag, HighlightPostTag, "<em>", "</em>")
	if err != nil {
		t.Fatalf("SanitizeResults failed: %v", err)
	}

	title := got[0]["_highlightResult"].(map[string]interface{})["title"].(map[string]interface{})
	want := "<em>&lt;b&gt;fo&lt;script&gt;o&lt;/script&gt;&lt;/b&gt;</em>"
	if title["value"] != want {
		t.Errorf("Expected %q, got %q", want, title["value"])
	}
	if title["matchLevel"] != "full" {
		t.Errorf("Expected matchLevel to be kept, got %v", title["matchLevel"])
	}

	// attributes outside the annotations are left alone
	if got[0]["title"] != "<b>raw</b>" {
		t.Errorf("Expected raw title untouched, got %v", got[0]["title"])
	}

	// the input is copied, never modified
	original := hits[0]["_highlightResult"].(map[string]interface{})["title"].(map[string]interface{})
	if original["value"] != "__ais-highlight__<b>fo<script>o</script></b>__/ais-highlight__" {
		t.Errorf("Input hit was modified: %v", original["value"])
	}
}

func TestSanitizeResults_InvalidInput(t *testing.T) {
	tests := map[string]interface{}{
		"map":         map[string]interface{}{"hits": []interface{}{}},
		"string":      "hits",
		"nil":         nil,
		"non-objects": []interface{}{"a", "b"},
	}

	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := SanitizeResults(input, HighlightPreTag, HighlightPostTag, "<em>", "</em>")
			if !errors.Is(err, ErrInvalidResults) {
				t.Errorf("Expected ErrInvalidResults, got %v", err)
			}
		})
	}
}

func TestSanitizeResults_AcceptsInterfaceList(t *testing.T) {
	hits := []interface{}{
		map[string]interface{}{"objectID": "1"},
		map[string]interface{}{"objectID": "2"},
	}

	got, err := SanitizeResults(hits, HighlightPreTag, HighlightPostTag, "<em>", "</em>")
	if err != nil {
		t.Fatalf("SanitizeResults failed: %v", err)
	}
	if len(got) != 2 || got[1]["objectID"] != "2" {
		t.Errorf("Unexpected hits: %v", got)
	}
}

func TestSanitizeHighlights(t *testing.T) {
	leaf := func(value string) map[string]interface{} {
		return map[string]interface{}{"value": value, "matchLevel": "partial", "matchedWords": []interface{}{"x"}}
	}

	tests := map[string]struct {
		input interface{}
		want  interface{}
	}{
		"leaf with quotes": {
			input: leaf(`__ais-highlight__Tom's__/ais-highlight__ "book" & co`),
			want:  map[string]interface{}{"value": `<mark>Tom&#39;s</mark> &quot;book&quot; &amp; co`, "matchLevel": "partial", "matchedWords": []interface{}{"x"}},
		},
		"nested object": {
			input: map[string]interface{}{
				"author": map[string]interface{}{"name": leaf("__ais-highlight__Ann__/ais-highlight__")},
			},
			want: map[string]interface{}{
				"author": map[string]interface{}{"name": map[string]interface{}{"value": "<mark>Ann</mark>", "matchLevel": "partial", "matchedWords": []interface{}{"x"}}},
			},
		},
		"list keeps order": {
			input: []interface{}{leaf("a<"), leaf("b>")},
			want: []interface{}{
				map[string]interface{}{"value": "a&lt;", "matchLevel": "partial", "matchedWords": []interface{}{"x"}},
				map[string]interface{}{"value": "b&gt;", "matchLevel": "partial", "matchedWords": []interface{}{"x"}},
			},
		},
		"object without value is walked": {
			input: map[string]interface{}{"matchLevel": "none", "other": leaf("<i>")},
			want:  map[string]interface{}{"matchLevel": "none", "other": map[string]interface{}{"value": "&lt;i&gt;", "matchLevel": "partial", "matchedWords": []interface{}{"x"}}},
		},
		"number leaf value": {
			input: map[string]interface{}{"value": 42, "matchLevel": "none"},
			want:  map[string]interface{}{"value": "42", "matchLevel": "none"},
		},
		"scalar": {
			input: 3.5,
			want:  3.5,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got := SanitizeHighlights(tt.input, HighlightPreTag, HighlightPostTag, "<mark>", "</mark>")
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %#v, got %#v", tt.want, got)
			}
		})
	}
}

func TestSanitizeHighlights_EmptySafeTags(t *testing.T) {
	got := SanitizeHighlights(map[string]interface{}{"value": "a<b", "matchLevel": "none"}, "", "", "<em>", "</em>")
	if got.(map[string]interface{})["value"] != "a&lt;b" {
		t.Errorf("Expected escaped value without tag replacement, got %v", got)
	}
}
