package instantsearch

import "github.com/cockroachdb/errors"

// HelperSnapshot is the persisted form of a helper: its parameters, the
// credentials needed to rebuild its client and the raw responses of its
// last search (nil when no search completed yet).
type HelperSnapshot struct {
	SearchParameters map[string]interface{} `json:"searchParameters"`
	AppID            string                 `json:"appId"`
	APIKey           string                 `json:"apiKey"`
	Response         []Response             `json:"response"`
}

// Snapshot is the persisted form of a Store.
type Snapshot struct {
	Helper           HelperSnapshot `json:"helper"`
	HighlightPreTag  string         `json:"highlightPreTag"`
	HighlightPostTag string         `json:"highlightPostTag"`
}

// Serialize captures h for persistence or server-side rendering hydration.
func Serialize(h *Helper) (HelperSnapshot, error) {
	if h == nil {
		return HelperSnapshot{}, errors.Wrap(ErrInvalidHandle, "serialize")
	}

	snap := HelperSnapshot{
		SearchParameters: h.State().Flatten(),
	}
	if client := h.Client(); client != nil {
		snap.AppID = client.AppID()
		snap.APIKey = client.APIKey()
	}
	if last := h.LastResults(); last != nil {
		snap.Response = last.Raw()
	}

	return snap, nil
}

// Deserialize rebuilds a helper from a snapshot. The client is built by
// factory from the embedded credentials. When the snapshot carries
// responses, the helper starts with the matching results installed, so it
// behaves as if that search had just completed; no request is sent.
func Deserialize(snap HelperSnapshot, factory ClientFactory, opts ...HelperOption) (*Helper, error) {
	if factory == nil {
		return nil, errors.New("instantsearch: deserialize requires a client factory")
	}

	client, err := factory(snap.AppID, snap.APIKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build client from snapshot credentials")
	}

	state, err := MakeSearchParameters(snap.SearchParameters)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode snapshot parameters")
	}

	h := NewHelper(client, state, opts...)
	if len(snap.Response) > 0 {
		results, err := NewResultSet(state, snap.Response)
		if err != nil {
			return nil, errors.Wrap(err, "failed to rebuild snapshot results")
		}
		h.SetLastResults(results)
	}

	return h, nil
}
