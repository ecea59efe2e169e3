package instantsearch

import "context"

// Client is the transport a Helper sends its queries through.
type Client interface {
	// AppID returns the application identifier the client authenticates with.
	AppID() string

	// APIKey returns the API key the client authenticates with.
	APIKey() string

	// ClearCache drops any cached responses.
	ClearCache()

	// AddAgent tags subsequent requests with an additional user agent segment.
	AddAgent(agent string)

	// Search executes a batch of queries and returns one response per query,
	// in order.
	Search(ctx context.Context, queries []Query) ([]Response, error)
}

// ClientFactory builds a Client from credentials. It is used when restoring
// a snapshot, which only carries the application identifier and API key.
type ClientFactory func(appID, apiKey string) (Client, error)
