package instantsearch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// Helper owns the SearchParameters of a session, runs searches through a
// Client and notifies listeners about state changes and search outcomes.
// Searches run on their own goroutine; a newer search does not cancel an
// older one and whichever finishes last provides LastResults.
type Helper struct {
	mu          sync.Mutex
	client      Client
	state       SearchParameters
	lastResults *ResultSet
	pending     int

	events  emitter
	logger  *slog.Logger
	baseCtx context.Context
	timeout time.Duration
}

// HelperOption configures a Helper.
type HelperOption func(*Helper)

// WithHelperLogger sets the logger used for search outcomes.
func WithHelperLogger(logger *slog.Logger) HelperOption {
	return func(h *Helper) {
		h.logger = logger
	}
}

// WithSearchTimeout bounds every search dispatched by the helper.
func WithSearchTimeout(d time.Duration) HelperOption {
	return func(h *Helper) {
		h.timeout = d
	}
}

// WithBaseContext sets the context searches derive from. Canceling it
// fails searches that are still in flight.
func WithBaseContext(ctx context.Context) HelperOption {
	return func(h *Helper) {
		h.baseCtx = ctx
	}
}

// NewHelper creates a helper sending queries built from state through client.
func NewHelper(client Client, state SearchParameters, opts ...HelperOption) *Helper {
	h := &Helper{
		client:  client,
		state:   state.clone(),
		logger:  slog.Default(),
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// On registers a persistent listener.
func (h *Helper) On(t EventType, fn Listener) ListenerID {
	return h.events.add(t, fn, false)
}

// Once registers a listener detached after its first call.
func (h *Helper) Once(t EventType, fn Listener) ListenerID {
	return h.events.add(t, fn, true)
}

// RemoveListener detaches a listener. It reports whether one was found.
func (h *Helper) RemoveListener(t EventType, id ListenerID) bool {
	return h.events.remove(t, id)
}

// ListenerCount returns the number of listeners registered for t.
func (h *Helper) ListenerCount(t EventType) int {
	return h.events.count(t)
}

// Client returns the transport client.
func (h *Helper) Client() Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.client
}

// SetClient replaces the transport client. It does not emit a change event.
func (h *Helper) SetClient(client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.client = client
}

// State returns a copy of the current search parameters.
func (h *Helper) State() SearchParameters {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.clone()
}

// SetState replaces the search parameters as a whole.
func (h *Helper) SetState(state SearchParameters) {
	h.mutate(false, func(SearchParameters) (SearchParameters, error) {
		return state.clone(), nil
	})
}

// LastResults returns the results of the last completed search, or nil.
func (h *Helper) LastResults() *ResultSet {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastResults
}

// SetLastResults installs results as if their search had just completed,
// without emitting any event.
func (h *Helper) SetLastResults(results *ResultSet) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastResults = results
}

// HasPendingRequests reports whether a search is in flight.
func (h *Helper) HasPendingRequests() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pending > 0
}

// Index returns the targeted index name.
func (h *Helper) Index() string {
	return h.State().Index
}

// SetIndex targets another index and resets the page.
func (h *Helper) SetIndex(name string) {
	h.mutate(true, func(p SearchParameters) (SearchParameters, error) {
		p.Index = name
		return p, nil
	})
}

// SetQuery replaces the query text and resets the page.
func (h *Helper) SetQuery(query string) {
	h.mutate(true, func(p SearchParameters) (SearchParameters, error) {
		p.Query = query
		return p, nil
	})
}

// Page returns the 0-indexed page.
func (h *Helper) Page() int {
	return h.State().Page
}

// SetPage sets the 0-indexed page.
func (h *Helper) SetPage(page int) {
	h.mutate(false, func(p SearchParameters) (SearchParameters, error) {
		p.Page = page
		return p, nil
	})
}

// QueryParameter returns a named parameter from the flattened state.
func (h *Helper) QueryParameter(name string) interface{} {
	return h.State().QueryParameter(name)
}

// SetQueryParameter sets a named parameter and resets the page, unless the
// parameter is the page itself.
func (h *Helper) SetQueryParameter(name string, value interface{}) error {
	return h.mutate(name != "page", func(p SearchParameters) (SearchParameters, error) {
		return p.SetQueryParameter(name, value)
	})
}

// AddFacetRefinement refines a conjunctive facet.
func (h *Helper) AddFacetRefinement(attribute, value string) {
	h.mutate(true, func(p SearchParameters) (SearchParameters, error) {
		return p.AddFacetRefinement(attribute, value), nil
	})
}

// AddDisjunctiveFacetRefinement refines a disjunctive facet.
func (h *Helper) AddDisjunctiveFacetRefinement(attribute, value string) {
	h.mutate(true, func(p SearchParameters) (SearchParameters, error) {
		return p.AddDisjunctiveFacetRefinement(attribute, value), nil
	})
}

// AddHierarchicalFacetRefinement refines a hierarchical facet to path.
func (h *Helper) AddHierarchicalFacetRefinement(name, path string) {
	h.mutate(true, func(p SearchParameters) (SearchParameters, error) {
		return p.AddHierarchicalFacetRefinement(name, path), nil
	})
}

// ToggleRefinement adds or removes a refinement on a registered facet.
func (h *Helper) ToggleRefinement(attribute, value string) error {
	return h.mutate(true, func(p SearchParameters) (SearchParameters, error) {
		return p.ToggleRefinement(attribute, value)
	})
}

// ClearRefinements drops the refinements of attribute, or all of them.
func (h *Helper) ClearRefinements(attribute string) {
	h.mutate(true, func(p SearchParameters) (SearchParameters, error) {
		return p.ClearRefinements(attribute), nil
	})
}

// AddNumericRefinement adds a numeric condition.
func (h *Helper) AddNumericRefinement(attribute string, op Operator, value float64) error {
	return h.mutate(true, func(p SearchParameters) (SearchParameters, error) {
		return p.AddNumericRefinement(attribute, op, value)
	})
}

// RemoveNumericRefinement removes a numeric condition.
func (h *Helper) RemoveNumericRefinement(attribute string, op Operator, value float64) error {
	return h.mutate(true, func(p SearchParameters) (SearchParameters, error) {
		return p.RemoveNumericRefinement(attribute, op, value)
	})
}

// mutate applies fn to the state and emits a change event. Nothing changes
// and nothing is emitted when fn fails.
func (h *Helper) mutate(resetPage bool, fn func(SearchParameters) (SearchParameters, error)) error {
	h.mu.Lock()
	next, err := fn(h.state.clone())
	if err != nil {
		h.mu.Unlock()
		return err
	}
	if resetPage {
		next.Page = 0
	}
	h.state = next
	snapshot := next.clone()
	h.mu.Unlock()

	h.events.emit(Event{Type: EventChange, State: snapshot})
	return nil
}

// Search dispatches the queries derived from the current state. The outcome
// is reported through EventResult or EventError, followed by
// EventSearchQueueEmpty once no search is pending anymore.
func (h *Helper) Search() {
	h.mu.Lock()
	state := h.state.clone()
	client := h.client
	h.pending++
	h.mu.Unlock()

	go h.dispatch(state, client)
}

func (h *Helper) dispatch(state SearchParameters, client Client) {
	ctx := h.baseCtx
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	results, err := h.run(ctx, state, client)

	if err == nil {
		h.mu.Lock()
		h.lastResults = results
		h.mu.Unlock()
	}

	// the search stays pending until its listeners ran
	if err != nil {
		h.logger.WarnContext(ctx, "search failed", "index", state.Index, "query", state.Query, "error", err)
		h.events.emit(Event{Type: EventError, State: state, Err: err})
	} else {
		h.logger.DebugContext(ctx, "search completed",
			"index", state.Index,
			"query", state.Query,
			"nb_hits", results.NbHits,
			"processing_time_ms", results.ProcessingTimeMS,
		)
		h.events.emit(Event{Type: EventResult, State: state, Results: results})
	}

	h.mu.Lock()
	h.pending--
	idle := h.pending == 0
	h.mu.Unlock()

	if idle {
		h.events.emit(Event{Type: EventSearchQueueEmpty, State: state})
	}
}

func (h *Helper) run(ctx context.Context, state SearchParameters, client Client) (*ResultSet, error) {
	if client == nil {
		return nil, errors.Wrap(ErrBackendUnavailable, "no client configured")
	}

	queries := buildQueries(state)
	responses, err := client.Search(ctx, queries)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.WithSecondaryError(ErrTimeout, err)
		}
		if errors.Is(err, context.Canceled) {
			return nil, errors.WithSecondaryError(ErrCanceled, err)
		}
		return nil, err
	}
	if len(responses) != len(queries) {
		return nil, errors.Wrapf(ErrBackendUnavailable, "expected %d responses, got %d", len(queries), len(responses))
	}

	return NewResultSet(state, responses)
}
