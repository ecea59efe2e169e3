// Package inmemory implements an instantsearch.Client over documents held in
// memory. It answers queries the way the hosted backend does (filters, facet
// counts, facet stats and highlight annotations) and is meant for tests,
// offline runs and fixtures.
package inmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/instantsearch"
)

const (
	// AppID is the application ID reported by every in-memory client.
	AppID = "inmemory"

	// DefaultHitsPerPage is used when a query does not set a page size.
	DefaultHitsPerPage = 20

	// DefaultMaxValuesPerFacet caps facet value lists when a query sets no limit.
	DefaultMaxValuesPerFacet = 100
)

// Document represents a JSON document in the in-memory database.
type Document struct {
	// ID is the unique identifier for the document. It is returned as objectID.
	ID string
	// Fields contains the document's data as key-value pairs.
	Fields map[string]interface{}
}

type index struct {
	documents []Document
	idIndex   map[string]int // maps document ID to index in documents slice
}

// Client implements instantsearch.Client using an in-memory store.
type Client struct {
	mu          sync.RWMutex
	indexes     map[string]*index
	agents      []string
	cacheClears int
	searches    int
}

var _ instantsearch.Client = (*Client)(nil)

// New creates a new in-memory client.
// The client is ready to use and is safe for concurrent operations.
func New() *Client {
	return &Client{
		indexes: make(map[string]*index),
	}
}

// Factory returns a ClientFactory that hands out c whatever the credentials,
// for restoring snapshots against in-memory data.
func (c *Client) Factory() instantsearch.ClientFactory {
	return func(appID, apiKey string) (instantsearch.Client, error) {
		return c, nil
	}
}

// AddDocument adds a document to an index, creating the index if needed.
// If a document with the same ID already exists, it will be updated.
func (c *Client) AddDocument(indexName string, doc Document) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, ok := c.indexes[indexName]
	if !ok {
		idx = &index{idIndex: make(map[string]int)}
		c.indexes[indexName] = idx
	}

	if pos, exists := idx.idIndex[doc.ID]; exists {
		idx.documents[pos] = doc
	} else {
		idx.idIndex[doc.ID] = len(idx.documents)
		idx.documents = append(idx.documents, doc)
	}
}

// AddJSON adds a JSON document to an index by parsing the provided JSON data.
func (c *Client) AddJSON(indexName, id string, jsonData []byte) error {
	var fields map[string]interface{}
	if err := json.Unmarshal(jsonData, &fields); err != nil {
		return errors.Wrap(err, "failed to unmarshal JSON")
	}

	c.AddDocument(indexName, Document{
		ID:     id,
		Fields: fields,
	})
	return nil
}

// LoadJSON adds every object of a JSON array to an index. Each object must
// carry its identifier in objectID.
func (c *Client) LoadJSON(indexName string, jsonData []byte) (int, error) {
	var objects []map[string]interface{}
	if err := json.Unmarshal(jsonData, &objects); err != nil {
		return 0, errors.Wrap(err, "failed to unmarshal JSON array")
	}

	for i, fields := range objects {
		id, _ := fields["objectID"].(string)
		if id == "" {
			return i, errors.Newf("object %d has no objectID", i)
		}
		delete(fields, "objectID")
		c.AddDocument(indexName, Document{ID: id, Fields: fields})
	}
	return len(objects), nil
}

// RemoveDocument removes a document by ID from an index.
// Returns true if the document was found and removed.
func (c *Client) RemoveDocument(indexName, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, ok := c.indexes[indexName]
	if !ok {
		return false
	}

	pos, exists := idx.idIndex[id]
	if !exists {
		return false
	}

	idx.documents = append(idx.documents[:pos], idx.documents[pos+1:]...)

	// Rebuild index
	delete(idx.idIndex, id)
	for i := pos; i < len(idx.documents); i++ {
		idx.idIndex[idx.documents[i].ID] = i
	}

	return true
}

// Clear removes all indexes.
func (c *Client) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.indexes = make(map[string]*index)
}

// Size returns the number of documents stored in an index.
func (c *Client) Size(indexName string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if idx, ok := c.indexes[indexName]; ok {
		return len(idx.documents)
	}
	return 0
}

// AppID implements instantsearch.Client.
func (c *Client) AppID() string { return AppID }

// APIKey implements instantsearch.Client. In-memory data needs no key.
func (c *Client) APIKey() string { return "" }

// ClearCache implements instantsearch.Client. There is no cache; calls are
// counted so callers can observe them.
func (c *Client) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheClears++
}

// CacheClears returns how many times ClearCache was called.
func (c *Client) CacheClears() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cacheClears
}

// AddAgent implements instantsearch.Client.
func (c *Client) AddAgent(agent string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range c.agents {
		if a == agent {
			return
		}
	}
	c.agents = append(c.agents, agent)
}

// Agents returns the agent segments added so far.
func (c *Client) Agents() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.agents...)
}

// Searches returns how many Search calls the client answered.
func (c *Client) Searches() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.searches
}

// Search implements instantsearch.Client.
func (c *Client) Search(ctx context.Context, queries []instantsearch.Query) ([]instantsearch.Response, error) {
	c.mu.Lock()
	c.searches++
	c.mu.Unlock()

	c.mu.RLock()
	defer c.mu.RUnlock()

	responses := make([]instantsearch.Response, 0, len(queries))
	for _, q := range queries {
		resp, err := c.search(ctx, q)
		if err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}
	return responses, nil
}

type scoredDocument struct {
	document Document
	score    float64
}

func (c *Client) search(ctx context.Context, q instantsearch.Query) (instantsearch.Response, error) {
	startTime := time.Now()

	select {
	case <-ctx.Done():
		return instantsearch.Response{}, canceled(ctx)
	default:
	}

	idx, ok := c.indexes[q.IndexName]
	if !ok {
		return instantsearch.Response{}, errors.Wrapf(instantsearch.ErrBackendUnavailable, "index %q does not exist", q.IndexName)
	}

	var matches []scoredDocument
	for _, doc := range idx.documents {
		select {
		case <-ctx.Done():
			return instantsearch.Response{}, canceled(ctx)
		default:
		}

		if !matchesFilters(doc, q.Filters) {
			continue
		}

		score := scoreDocument(doc, q.Text)
		if score > 0 {
			matches = append(matches, scoredDocument{document: doc, score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	hitsPerPage := q.HitsPerPage
	if hitsPerPage <= 0 {
		hitsPerPage = DefaultHitsPerPage
	}
	start := q.Page * hitsPerPage
	end := start + hitsPerPage
	if end > len(matches) {
		end = len(matches)
	}
	if start > len(matches) {
		start = len(matches)
	}

	pre, post := q.HighlightPreTag, q.HighlightPostTag
	if pre == "" {
		pre = instantsearch.DefaultHighlightPreTag
	}
	if post == "" {
		post = instantsearch.DefaultHighlightPostTag
	}

	hits := make([]map[string]interface{}, 0, end-start)
	for _, m := range matches[start:end] {
		hit := make(map[string]interface{}, len(m.document.Fields)+2)
		for k, v := range m.document.Fields {
			hit[k] = v
		}
		hit["objectID"] = m.document.ID
		hit["_highlightResult"] = highlightFields(m.document.Fields, q.Text, pre, post)
		hits = append(hits, hit)
	}

	resp := instantsearch.Response{
		Hits:        hits,
		NbHits:      len(matches),
		Page:        q.Page,
		NbPages:     int(math.Ceil(float64(len(matches)) / float64(hitsPerPage))),
		HitsPerPage: hitsPerPage,
		Query:       q.Text,
		Index:       q.IndexName,
	}

	if len(q.Facets) > 0 {
		maxValues := q.MaxValuesPerFacet
		if maxValues <= 0 {
			maxValues = DefaultMaxValuesPerFacet
		}
		resp.Facets, resp.FacetsStats = countFacets(matches, q.Facets, maxValues)
	}

	resp.ProcessingTimeMS = int(time.Since(startTime).Milliseconds())
	return resp, nil
}

func canceled(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.WithSecondaryError(instantsearch.ErrTimeout, ctx.Err())
	}
	return errors.WithSecondaryError(instantsearch.ErrCanceled, ctx.Err())
}

// countFacets counts the values of each attribute across all matches and
// computes stats for attributes whose values are all numeric.
func countFacets(matches []scoredDocument, attributes []string, maxValues int) (map[string]map[string]int, map[string]instantsearch.FacetStats) {
	facets := make(map[string]map[string]int, len(attributes))
	stats := make(map[string]instantsearch.FacetStats)

	for _, attr := range attributes {
		counts := make(map[string]int)
		var (
			nums    []float64
			numeric = true
		)
		for _, m := range matches {
			value, ok := lookup(m.document.Fields, attr)
			if !ok {
				continue
			}
			for _, v := range flattenValue(value) {
				counts[facetKey(v)]++
				if f, ok := toFloat64(v); ok {
					nums = append(nums, f)
				} else {
					numeric = false
				}
			}
		}
		facets[attr] = truncateCounts(counts, maxValues)

		if numeric && len(nums) > 0 {
			s := instantsearch.FacetStats{Min: nums[0], Max: nums[0]}
			for _, n := range nums {
				s.Min = math.Min(s.Min, n)
				s.Max = math.Max(s.Max, n)
				s.Sum += n
			}
			s.Avg = s.Sum / float64(len(nums))
			stats[attr] = s
		}
	}

	return facets, stats
}

// truncateCounts keeps the maxValues most frequent values.
func truncateCounts(counts map[string]int, maxValues int) map[string]int {
	if len(counts) <= maxValues {
		return counts
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	out := make(map[string]int, maxValues)
	for _, name := range names[:maxValues] {
		out[name] = counts[name]
	}
	return out
}

func facetKey(v interface{}) string {
	if f, ok := toFloat64(v); ok {
		return formatFloat(f)
	}
	return fmt.Sprintf("%v", v)
}

// lookup resolves an attribute name, following dots into nested objects
// when no field carries the dotted name itself.
func lookup(fields map[string]interface{}, attr string) (interface{}, bool) {
	if v, ok := fields[attr]; ok {
		return v, true
	}

	head, rest, found := strings.Cut(attr, ".")
	if !found {
		return nil, false
	}
	nested, ok := fields[head].(map[string]interface{})
	if !ok {
		return nil, false
	}
	return lookup(nested, rest)
}

// flattenValue returns the elements of a list value, or the value itself.
func flattenValue(v interface{}) []interface{} {
	switch val := v.(type) {
	case []interface{}:
		return val
	case []string:
		out := make([]interface{}, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	default:
		return []interface{}{v}
	}
}

// scoreDocument calculates the relevance score for a document based on the query.
func scoreDocument(doc Document, query string) float64 {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return 1.0 // All documents match empty query
	}

	score := 0.0
	matchedTerms := 0

	for _, term := range terms {
		termMatched := false
		for _, value := range doc.Fields {
			if valueContainsTerm(value, term) {
				termMatched = true
				score += 1.0
			}
		}
		if termMatched {
			matchedTerms++
		}
	}

	if matchedTerms == 0 {
		return 0
	}

	// Boost score if all terms matched
	if matchedTerms == len(terms) {
		score *= 1.5
	}

	return score
}

// valueContainsTerm checks if a value contains the search term.
func valueContainsTerm(value interface{}, term string) bool {
	switch v := value.(type) {
	case string:
		return strings.Contains(strings.ToLower(v), term)
	case []interface{}:
		for _, item := range v {
			if valueContainsTerm(item, term) {
				return true
			}
		}
	case []string:
		for _, item := range v {
			if strings.Contains(strings.ToLower(item), term) {
				return true
			}
		}
	case map[string]interface{}:
		for _, item := range v {
			if valueContainsTerm(item, term) {
				return true
			}
		}
	default:
		str := fmt.Sprintf("%v", v)
		return strings.Contains(strings.ToLower(str), term)
	}
	return false
}

// compareValues compares two values, numerically when both are numbers.
func compareValues(v1, v2 interface{}) int {
	if v1 == nil && v2 == nil {
		return 0
	}
	if v1 == nil {
		return -1
	}
	if v2 == nil {
		return 1
	}

	if f1, ok1 := toFloat64(v1); ok1 {
		if f2, ok2 := toFloat64(v2); ok2 {
			if f1 < f2 {
				return -1
			} else if f1 > f2 {
				return 1
			}
			return 0
		}
	}

	return strings.Compare(fmt.Sprintf("%v", v1), fmt.Sprintf("%v", v2))
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
