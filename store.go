package instantsearch

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
)

const (
	// HighlightPreTag and HighlightPostTag are the delimiters the Store makes
	// the backend wrap matches in. Only text between them is trusted to
	// become markup; they never reach callers.
	HighlightPreTag  = "__ais-highlight__"
	HighlightPostTag = "__/ais-highlight__"

	// DefaultHighlightPreTag and DefaultHighlightPostTag are the display tags
	// used until the caller configures others.
	DefaultHighlightPreTag  = "<em>"
	DefaultHighlightPostTag = "</em>"

	// NoLimit makes FacetValues return every value.
	NoLimit = -1
)

// Store is the synchronized query state shared by every widget of a search
// session. Widgets read and write parameters through it; it forwards changes
// to its Helper and triggers a search whenever it is not paused.
//
// The Store starts paused once so that widgets can adjust the state while
// they are set up; the owner calls Resume and Refresh to issue the first
// search.
type Store struct {
	mu           sync.Mutex
	helper       *Helper
	changeID     ListenerID
	resultID     ListenerID
	stopped      int
	preTag       string
	postTag      string
	cacheEnabled bool
	results      []map[string]interface{}
	logger       *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger of the store.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a store on top of helper.
func NewStore(helper *Helper, opts ...StoreOption) (*Store, error) {
	if helper == nil {
		return nil, errors.Wrap(ErrInvalidHandle, "new store")
	}

	s := &Store{
		stopped:      1,
		preTag:       DefaultHighlightPreTag,
		postTag:      DefaultHighlightPostTag,
		cacheEnabled: true,
		results:      []map[string]interface{}{},
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.SetHelper(helper); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStoreFromClient creates a store with a fresh helper around client.
func NewStoreFromClient(client Client, opts ...StoreOption) (*Store, error) {
	return NewStore(NewHelper(client, SearchParameters{}), opts...)
}

// NewStoreFromSnapshot restores a store serialized with Store.Serialize.
func NewStoreFromSnapshot(snap Snapshot, factory ClientFactory, opts ...StoreOption) (*Store, error) {
	helper, err := Deserialize(snap.Helper, factory)
	if err != nil {
		return nil, err
	}

	s, err := NewStore(helper, opts...)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.preTag = snap.HighlightPreTag
	s.postTag = snap.HighlightPostTag
	s.mu.Unlock()
	if last := helper.LastResults(); last != nil {
		s.ingest(last)
	}

	return s, nil
}

// Helper returns the helper the store drives.
func (s *Store) Helper() *Helper {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.helper
}

// SetHelper makes the store drive helper, detaching it from the previous
// one. The transport highlight tags are forced to the internal delimiters
// while keeping the current page.
func (s *Store) SetHelper(helper *Helper) error {
	if helper == nil {
		return errors.Wrap(ErrInvalidHandle, "set helper")
	}

	s.detach()

	page := helper.Page()
	if err := helper.SetQueryParameter("highlightPreTag", HighlightPreTag); err != nil {
		return errors.Wrap(err, "failed to force highlight pre tag")
	}
	if err := helper.SetQueryParameter("highlightPostTag", HighlightPostTag); err != nil {
		return errors.Wrap(err, "failed to force highlight post tag")
	}
	helper.SetPage(page)

	s.mu.Lock()
	s.helper = helper
	s.results = []map[string]interface{}{}
	s.mu.Unlock()

	if last := helper.LastResults(); last != nil {
		s.ingest(last)
	}

	changeID := helper.On(EventChange, func(Event) { s.Refresh() })
	resultID := helper.On(EventResult, func(ev Event) { s.ingest(ev.Results) })

	s.mu.Lock()
	s.changeID = changeID
	s.resultID = resultID
	s.mu.Unlock()

	if client := helper.Client(); client != nil {
		client.AddAgent("instantsearch-go " + Version)
	}
	return nil
}

// Close detaches the store from its helper. The helper keeps its state.
func (s *Store) Close() {
	s.detach()
}

func (s *Store) detach() {
	s.mu.Lock()
	old, changeID, resultID := s.helper, s.changeID, s.resultID
	s.changeID, s.resultID = 0, 0
	s.mu.Unlock()

	if old != nil {
		old.RemoveListener(EventChange, changeID)
		old.RemoveListener(EventResult, resultID)
	}
}

func (s *Store) ingest(results *ResultSet) {
	if results == nil {
		return
	}

	s.mu.Lock()
	pre, post := s.preTag, s.postTag
	s.mu.Unlock()

	sanitized, err := SanitizeResults(results.Hits, HighlightPreTag, HighlightPostTag, pre, post)
	if err != nil {
		s.logger.Error("failed to sanitize results", "index", results.Index, "error", err)
		return
	}

	s.mu.Lock()
	s.results = sanitized
	s.mu.Unlock()
}

// Pause defers searches until a matching Resume. Pauses nest.
func (s *Store) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped++
}

// Resume undoes one Pause. It never searches by itself; call Refresh.
func (s *Store) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped < 1 {
		s.stopped = 0
		return
	}
	s.stopped--
}

// Paused reports whether searches are currently deferred.
func (s *Store) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped != 0
}

// Refresh runs a search with the current parameters unless the store is
// paused. With the cache disabled, the transport cache is cleared first.
func (s *Store) Refresh() {
	s.mu.Lock()
	if s.stopped != 0 {
		s.mu.Unlock()
		return
	}
	helper, clearCache := s.helper, !s.cacheEnabled
	s.mu.Unlock()

	if clearCache {
		s.ClearCache()
	}
	helper.Search()
}

// EnableCache lets the transport serve repeated queries from its cache.
func (s *Store) EnableCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheEnabled = true
}

// DisableCache makes every Refresh clear the transport cache first.
func (s *Store) DisableCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheEnabled = false
}

// ClearCache clears the transport cache.
func (s *Store) ClearCache() {
	if client := s.Client(); client != nil {
		client.ClearCache()
	}
}

// Client returns the transport client.
func (s *Store) Client() Client {
	return s.Helper().Client()
}

// SetClient swaps the transport client and runs the change path, since a
// client swap does not emit a change event on its own.
func (s *Store) SetClient(client Client) {
	s.Helper().SetClient(client)
	s.Refresh()
}

// AppID returns the application identifier of the transport client.
func (s *Store) AppID() string {
	if client := s.Client(); client != nil {
		return client.AppID()
	}
	return ""
}

// APIKey returns the API key of the transport client.
func (s *Store) APIKey() string {
	if client := s.Client(); client != nil {
		return client.APIKey()
	}
	return ""
}

// HighlightPreTag returns the display tag opening a highlighted match.
func (s *Store) HighlightPreTag() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preTag
}

// SetHighlightPreTag sets the display tag opening a highlighted match. It
// applies to results received afterwards.
func (s *Store) SetHighlightPreTag(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preTag = tag
}

// HighlightPostTag returns the display tag closing a highlighted match.
func (s *Store) HighlightPostTag() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.postTag
}

// SetHighlightPostTag sets the display tag closing a highlighted match.
func (s *Store) SetHighlightPostTag(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.postTag = tag
}

// IndexName returns the targeted index.
func (s *Store) IndexName() string {
	return s.Helper().Index()
}

// SetIndexName targets another index.
func (s *Store) SetIndexName(index string) {
	s.Helper().SetIndex(index)
}

// ResultsPerPage returns the configured page size, or the one the backend
// used for the last search when none is configured.
func (s *Store) ResultsPerPage() int {
	helper := s.Helper()
	if n := helper.State().HitsPerPage; n > 0 {
		return n
	}
	if last := helper.LastResults(); last != nil {
		return last.HitsPerPage
	}
	return 0
}

// SetResultsPerPage sets the page size.
func (s *Store) SetResultsPerPage(count int) error {
	return s.Helper().SetQueryParameter("hitsPerPage", count)
}

// Results returns the sanitized hits of the last search.
func (s *Store) Results() []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]interface{}, len(s.results))
	copy(out, s.results)
	return out
}

// Page returns the current page, 1-indexed.
func (s *Store) Page() int {
	return s.Helper().Page() + 1
}

// SetPage sets the current page, 1-indexed.
func (s *Store) SetPage(page int) {
	s.Helper().SetPage(page - 1)
}

// TotalPages returns the page count of the last search.
func (s *Store) TotalPages() int {
	if last := s.Helper().LastResults(); last != nil {
		return last.NbPages
	}
	return 0
}

// TotalResults returns the hit count of the last search.
func (s *Store) TotalResults() int {
	if last := s.Helper().LastResults(); last != nil {
		return last.NbHits
	}
	return 0
}

// ProcessingTimeMS returns the backend processing time of the last search.
func (s *Store) ProcessingTimeMS() int {
	if last := s.Helper().LastResults(); last != nil {
		return last.ProcessingTimeMS
	}
	return 0
}

// SetMaxValuesPerFacet raises the number of values fetched per facet to
// limit. It never lowers it, since other widgets may need more values.
func (s *Store) SetMaxValuesPerFacet(limit int) error {
	helper := s.Helper()
	current := helper.State().MaxValuesPerFacet
	return helper.SetQueryParameter("maxValuesPerFacet", max(current, limit))
}

// AddFacet registers attribute under kind. Registering an attribute under a
// new kind first removes its previous registration and refinements. The
// whole change results in at most one search.
func (s *Store) AddFacet(attribute string, kind FacetKind) error {
	if kind == FacetHierarchical {
		return s.AddHierarchicalFacet(HierarchicalFacet{Name: attribute})
	}

	has, err := s.HasFacet(attribute, kind)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	helper := s.Helper()
	s.Pause()
	s.RemoveFacet(attribute)
	state := helper.State()
	if kind == FacetConjunctive {
		state = state.AddFacet(attribute)
	} else {
		state = state.AddDisjunctiveFacet(attribute)
	}
	helper.SetState(state)
	s.Resume()
	s.Refresh()
	return nil
}

// AddHierarchicalFacet registers a hierarchical facet. Like AddFacet, it
// replaces any other registration of the same attribute.
func (s *Store) AddHierarchicalFacet(facet HierarchicalFacet) error {
	if facet.Name == "" {
		return errors.Wrap(ErrInvalidParameters, "hierarchical facet needs a name")
	}

	helper := s.Helper()
	if helper.State().IsHierarchicalFacet(facet.Name) {
		return nil
	}

	s.Pause()
	s.RemoveFacet(facet.Name)
	helper.SetState(helper.State().AddHierarchicalFacet(facet))
	s.Resume()
	s.Refresh()
	return nil
}

// RemoveFacet unregisters attribute, whichever kind it is registered under.
func (s *Store) RemoveFacet(attribute string) {
	helper := s.Helper()
	state := helper.State()

	switch {
	case state.IsConjunctiveFacet(attribute):
		helper.SetState(state.RemoveFacet(attribute))
	case state.IsDisjunctiveFacet(attribute):
		helper.SetState(state.RemoveDisjunctiveFacet(attribute))
	case state.IsHierarchicalFacet(attribute):
		helper.SetState(state.RemoveHierarchicalFacet(attribute))
	}
}

// HasFacet reports whether attribute is registered under kind.
func (s *Store) HasFacet(attribute string, kind FacetKind) (bool, error) {
	if !kind.Valid() {
		return false, errors.Wrapf(ErrInvalidFacetKind, "facet kind %q", kind)
	}

	state := s.Helper().State()
	switch kind {
	case FacetConjunctive:
		return state.IsConjunctiveFacet(attribute), nil
	case FacetDisjunctive:
		return state.IsDisjunctiveFacet(attribute), nil
	default:
		return state.IsHierarchicalFacet(attribute), nil
	}
}

// AddFacetRefinement refines attribute with value according to the kind it
// is registered under. Unregistered attributes are ignored.
func (s *Store) AddFacetRefinement(attribute, value string) {
	helper := s.Helper()
	kind, ok := helper.State().FacetKindOf(attribute)
	if !ok {
		return
	}

	switch kind {
	case FacetConjunctive:
		helper.AddFacetRefinement(attribute, value)
	case FacetDisjunctive:
		helper.AddDisjunctiveFacetRefinement(attribute, value)
	case FacetHierarchical:
		helper.AddHierarchicalFacetRefinement(attribute, value)
	}
}

// ToggleFacetRefinement adds value to attribute's refinements, or removes it
// when already refined.
func (s *Store) ToggleFacetRefinement(attribute, value string) error {
	return s.Helper().ToggleRefinement(attribute, value)
}

// ClearRefinements drops the refinements of attribute, or all refinements
// when attribute is empty.
func (s *Store) ClearRefinements(attribute string) {
	s.Helper().ClearRefinements(attribute)
}

// FacetValues returns up to limit values of attribute from the last results,
// sorted by sortBy (DefaultFacetSort when empty). It returns an empty list
// when there are no results yet or attribute is not faceted.
func (s *Store) FacetValues(attribute string, sortBy []string, limit int) []FacetValue {
	last := s.Helper().LastResults()
	if last == nil {
		return []FacetValue{}
	}

	values, err := last.FacetValues(attribute, sortBy)
	if err != nil {
		s.logger.Debug("facet values unavailable", "attribute", attribute, "error", err)
		return []FacetValue{}
	}

	if limit == NoLimit || limit >= len(values) {
		return values
	}
	if limit < 0 {
		limit = 0
	}
	return values[:limit]
}

// FacetStats returns the numeric stats of attribute from the last results,
// or the zero value when unavailable.
func (s *Store) FacetStats(attribute string) FacetStats {
	last := s.Helper().LastResults()
	if last == nil {
		return FacetStats{}
	}
	stats, _ := last.FacetStats(attribute)
	return stats
}

// ActiveRefinements lists the refinements of the last search.
func (s *Store) ActiveRefinements() []Refinement {
	last := s.Helper().LastResults()
	if last == nil {
		return []Refinement{}
	}
	return last.Refinements()
}

// AddNumericRefinement adds a numeric condition on attribute.
func (s *Store) AddNumericRefinement(attribute string, op Operator, value float64) error {
	return s.Helper().AddNumericRefinement(attribute, op, value)
}

// RemoveNumericRefinement removes a numeric condition from attribute.
func (s *Store) RemoveNumericRefinement(attribute string, op Operator, value float64) error {
	return s.Helper().RemoveNumericRefinement(attribute, op, value)
}

// Query returns the query text.
func (s *Store) Query() string {
	return s.Helper().State().Query
}

// SetQuery replaces the query text. Setting the current text is a no-op.
func (s *Store) SetQuery(query string) {
	helper := s.Helper()
	if helper.State().Query == query {
		return
	}
	helper.SetQuery(query)
}

// QueryParameters returns every search parameter in a flat map, with the
// page 1-indexed and the display highlight tags in place of the internal
// delimiters.
func (s *Store) QueryParameters() map[string]interface{} {
	params := s.Helper().State().Flatten()
	params["page"] = s.Page()
	params["highlightPreTag"] = s.HighlightPreTag()
	params["highlightPostTag"] = s.HighlightPostTag()
	return params
}

// SetQueryParameters merges params into the search parameters in a single
// state replacement. Highlight tags set the display tags, a nil value unsets
// the parameter and page is 1-indexed. Nothing is applied when any
// parameter fails to decode.
func (s *Store) SetQueryParameters(params map[string]interface{}) error {
	helper := s.Helper()
	merged := helper.State().Flatten()

	var preTag, postTag *string
	for key, value := range params {
		switch key {
		case "highlightPreTag", "highlightPostTag":
			tag, err := displayTag(key, value)
			if err != nil {
				return err
			}
			if key == "highlightPreTag" {
				preTag = &tag
			} else {
				postTag = &tag
			}
		case "page":
			if value == nil {
				delete(merged, key)
				continue
			}
			page, err := toInt(value)
			if err != nil {
				return errors.WithSecondaryError(errors.Wrapf(ErrInvalidParameters, "page %v", value), err)
			}
			merged[key] = page - 1
		default:
			if value == nil {
				delete(merged, key)
				continue
			}
			merged[key] = value
		}
	}

	state, err := MakeSearchParameters(merged)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if preTag != nil {
		s.preTag = *preTag
	}
	if postTag != nil {
		s.postTag = *postTag
	}
	s.mu.Unlock()

	helper.SetState(state)
	return nil
}

func displayTag(key string, value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		if key == "highlightPreTag" {
			return DefaultHighlightPreTag, nil
		}
		return DefaultHighlightPostTag, nil
	case string:
		return v, nil
	default:
		return "", errors.Wrapf(ErrInvalidParameters, "%s must be a string, got %T", key, value)
	}
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float32:
		return int(n), nil
	case float64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	case string:
		return strconv.Atoi(n)
	default:
		return 0, errors.Newf("unsupported type %T", v)
	}
}

// Serialize captures the store for persistence or hydration.
func (s *Store) Serialize() (Snapshot, error) {
	helper, err := Serialize(s.Helper())
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Helper:           helper,
		HighlightPreTag:  s.HighlightPreTag(),
		HighlightPostTag: s.HighlightPostTag(),
	}, nil
}

// WaitUntilInSync blocks until no search is pending. It returns the error of
// the next failed search, or ctx.Err() when ctx is done first.
func (s *Store) WaitUntilInSync(ctx context.Context) error {
	helper := s.Helper()

	done := make(chan struct{}, 1)
	failed := make(chan error, 1)
	emptyID := helper.Once(EventSearchQueueEmpty, func(Event) {
		done <- struct{}{}
	})
	errorID := helper.Once(EventError, func(ev Event) {
		failed <- ev.Err
	})
	defer func() {
		helper.RemoveListener(EventSearchQueueEmpty, emptyID)
		helper.RemoveListener(EventError, errorID)
	}()

	if !helper.HasPendingRequests() {
		return nil
	}

	select {
	case err := <-failed:
		return err
	case <-done:
		// an error emitted just before the queue drained still wins
		select {
		case err := <-failed:
			return err
		default:
			return nil
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}
