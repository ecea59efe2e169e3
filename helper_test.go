package instantsearch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClient records query batches and answers with one response per query.
type fakeClient struct {
	mu      sync.Mutex
	batches [][]Query
	agents  []string
	clears  int
	release chan struct{}
	respond func([]Query) ([]Response, error)
}

func (f *fakeClient) AppID() string  { return "test-app" }
func (f *fakeClient) APIKey() string { return "test-key" }

func (f *fakeClient) ClearCache() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
}

func (f *fakeClient) AddAgent(agent string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agents = append(f.agents, agent)
}

func (f *fakeClient) Search(ctx context.Context, queries []Query) ([]Response, error) {
	f.mu.Lock()
	f.batches = append(f.batches, queries)
	release, respond := f.release, f.respond
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if respond != nil {
		return respond(queries)
	}

	responses := make([]Response, len(queries))
	for i, q := range queries {
		responses[i] = Response{
			Hits:        []map[string]interface{}{{"objectID": "1"}},
			NbHits:      1,
			NbPages:     1,
			Page:        q.Page,
			HitsPerPage: q.HitsPerPage,
			Query:       q.Text,
			Index:       q.IndexName,
		}
	}
	return responses, nil
}

func (f *fakeClient) searches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeClient) lastBatch() []Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) == 0 {
		return nil
	}
	return f.batches[len(f.batches)-1]
}

func (f *fakeClient) cacheClears() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clears
}

type searchOutcome struct {
	results *ResultSet
	err     error
}

// searchAndWait runs one search on h and returns what the helper reported.
func searchAndWait(t *testing.T, h *Helper) searchOutcome {
	t.Helper()

	outcome := make(chan searchOutcome, 2)
	h.Once(EventResult, func(ev Event) { outcome <- searchOutcome{results: ev.Results} })
	h.Once(EventError, func(ev Event) { outcome <- searchOutcome{err: ev.Err} })

	h.Search()

	select {
	case o := <-outcome:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for search outcome")
		return searchOutcome{}
	}
}

func TestHelper_SearchEmitsResult(t *testing.T) {
	client := &fakeClient{}
	h := NewHelper(client, SearchParameters{Index: "cars", Query: "bmw"})

	empty := make(chan struct{}, 1)
	h.Once(EventSearchQueueEmpty, func(Event) { empty <- struct{}{} })

	o := searchAndWait(t, h)
	if o.err != nil {
		t.Fatalf("Search failed: %v", o.err)
	}
	if o.results.Query != "bmw" || o.results.Index != "cars" {
		t.Errorf("Unexpected results: %+v", o.results)
	}

	select {
	case <-empty:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected a queue empty event")
	}
	if h.HasPendingRequests() {
		t.Error("Expected no pending request")
	}
	if h.LastResults() != o.results {
		t.Error("Expected LastResults to be the emitted results")
	}
}

func TestHelper_SearchErrors(t *testing.T) {
	tests := map[string]struct {
		client Client
		opts   []HelperOption
		want   error
	}{
		"no client": {
			client: nil,
			want:   ErrBackendUnavailable,
		},
		"response count mismatch": {
			client: &fakeClient{respond: func([]Query) ([]Response, error) { return nil, nil }},
			want:   ErrBackendUnavailable,
		},
		"backend error": {
			client: &fakeClient{respond: func([]Query) ([]Response, error) {
				return nil, ErrBackendUnavailable
			}},
			want: ErrBackendUnavailable,
		},
		"timeout": {
			client: &fakeClient{release: make(chan struct{})},
			opts:   []HelperOption{WithSearchTimeout(10 * time.Millisecond)},
			want:   ErrTimeout,
		},
		"canceled": {
			client: &fakeClient{release: make(chan struct{})},
			opts:   []HelperOption{WithBaseContext(canceledContext())},
			want:   ErrCanceled,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			h := NewHelper(tt.client, SearchParameters{Index: "cars"}, tt.opts...)
			o := searchAndWait(t, h)
			if !errors.Is(o.err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, o.err)
			}
			if h.LastResults() != nil {
				t.Error("Expected no results after a failed search")
			}
		})
	}
}

func canceledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

func TestHelper_MutationsResetPage(t *testing.T) {
	h := NewHelper(&fakeClient{}, SearchParameters{Index: "cars"}.AddFacet("color"))

	tests := map[string]struct {
		mutate    func()
		keepsPage bool
	}{
		"set page":          {mutate: func() { h.SetPage(7) }, keepsPage: true},
		"page parameter":    {mutate: func() { _ = h.SetQueryParameter("page", 4) }, keepsPage: true},
		"query":             {mutate: func() { h.SetQuery("audi") }},
		"index":             {mutate: func() { h.SetIndex("trucks") }},
		"facet refinement":  {mutate: func() { h.AddFacetRefinement("color", "Red") }},
		"clear refinements": {mutate: func() { h.ClearRefinements("") }},
		"hits per page":     {mutate: func() { _ = h.SetQueryParameter("hitsPerPage", 5) }},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			h.SetPage(3)
			tt.mutate()
			if tt.keepsPage && h.Page() == 0 {
				t.Errorf("Expected page kept, got %d", h.Page())
			}
			if !tt.keepsPage && h.Page() != 0 {
				t.Errorf("Expected page reset, got %d", h.Page())
			}
		})
	}
}

func TestHelper_ChangeEvents(t *testing.T) {
	h := NewHelper(&fakeClient{}, SearchParameters{})

	var changes []SearchParameters
	h.On(EventChange, func(ev Event) { changes = append(changes, ev.State) })

	h.SetQuery("bmw")
	if err := h.AddNumericRefinement("price", Operator("~"), 1); !errors.Is(err, ErrInvalidOperator) {
		t.Errorf("Expected ErrInvalidOperator, got %v", err)
	}
	if err := h.ToggleRefinement("unknown", "x"); !errors.Is(err, ErrFacetNotFound) {
		t.Errorf("Expected ErrFacetNotFound, got %v", err)
	}

	if len(changes) != 1 {
		t.Fatalf("Expected only the successful mutation to emit, got %d", len(changes))
	}
	if changes[0].Query != "bmw" {
		t.Errorf("Expected the new state in the event, got %+v", changes[0])
	}
}

func TestHelper_StateIsCopied(t *testing.T) {
	state := SearchParameters{}.AddFacet("color")
	h := NewHelper(&fakeClient{}, state)

	got := h.State()
	got.Facets[0] = "make"
	state.Facets[0] = "year"

	if !h.State().IsConjunctiveFacet("color") {
		t.Errorf("Expected helper state isolated, got %v", h.State().Facets)
	}
}

func TestHelper_ListenerBookkeeping(t *testing.T) {
	h := NewHelper(&fakeClient{}, SearchParameters{})
	id := h.On(EventResult, func(Event) {})
	h.Once(EventResult, func(Event) {})

	if n := h.ListenerCount(EventResult); n != 2 {
		t.Errorf("Expected 2 listeners, got %d", n)
	}
	if !h.RemoveListener(EventResult, id) {
		t.Error("Expected listener removed")
	}
	if n := h.ListenerCount(EventResult); n != 1 {
		t.Errorf("Expected 1 listener, got %d", n)
	}
}
