// Package algolia implements the instantsearch transport on top of the
// Algolia search API, with lazily resolved credentials and a response cache.
package algolia

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/algolia/algoliasearch-client-go/v3/algolia/search"
	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/letmevibethatforyou/instantsearch"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// DefaultCacheSize is the number of responses kept by a client.
const DefaultCacheSize = 256

// Client implements instantsearch.Client against Algolia.
type Client struct {
	secrets   func() (Secrets, error)
	getClient func() (*search.Client, error)
	tracer    trace.Tracer
	logger    *slog.Logger
	cacheSize int

	mu     sync.Mutex
	cache  *lru.Cache[string, instantsearch.Response]
	agents []string
}

var _ instantsearch.Client = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithCacheSize sets how many responses are cached. Zero disables caching.
func WithCacheSize(n int) Option {
	return func(c *Client) {
		c.cacheSize = n
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client. Credentials are fetched on first use.
func NewClient(fetchSecrets FetchSecrets, opts ...Option) *Client {
	secrets := sync.OnceValues(func() (Secrets, error) {
		secrets, err := fetchSecrets()
		if err != nil {
			return Secrets{}, fmt.Errorf("failed to fetch secrets: %w", err)
		}

		if secrets.AppID == "" {
			return Secrets{}, fmt.Errorf("AppID is empty")
		}

		if secrets.APIKey == "" {
			return Secrets{}, fmt.Errorf("APIKey is empty")
		}

		return secrets, nil
	})

	getClient := sync.OnceValues(func() (*search.Client, error) {
		s, err := secrets()
		if err != nil {
			return nil, err
		}
		return search.NewClient(s.AppID, s.APIKey), nil
	})

	c := &Client{
		secrets:   secrets,
		getClient: getClient,
		tracer:    otel.Tracer("instantsearch-algolia"),
		logger:    slog.Default(),
		cacheSize: DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.cacheSize > 0 {
		cache, err := lru.New[string, instantsearch.Response](c.cacheSize)
		if err == nil {
			c.cache = cache
		}
	}

	return c
}

// Factory returns a ClientFactory building clients with opts, for restoring
// serialized sessions.
func Factory(opts ...Option) instantsearch.ClientFactory {
	return func(appID, apiKey string) (instantsearch.Client, error) {
		if appID == "" || apiKey == "" {
			return nil, errors.New("algolia: snapshot carries no credentials")
		}
		return NewClient(StaticSecrets(appID, apiKey), opts...), nil
	}
}

// NewStore creates a search session store from raw credentials.
func NewStore(appID, apiKey string, opts ...instantsearch.StoreOption) (*instantsearch.Store, error) {
	return instantsearch.NewStoreFromClient(NewClient(StaticSecrets(appID, apiKey)), opts...)
}

// AppID returns the application ID, or "" when credentials are unavailable.
func (c *Client) AppID() string {
	s, err := c.secrets()
	if err != nil {
		c.logger.Warn("algolia credentials unavailable", "error", err)
		return ""
	}
	return s.AppID
}

// APIKey returns the API key, or "" when credentials are unavailable.
func (c *Client) APIKey() string {
	s, err := c.secrets()
	if err != nil {
		c.logger.Warn("algolia credentials unavailable", "error", err)
		return ""
	}
	return s.APIKey
}

// ClearCache drops every cached response.
func (c *Client) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cache != nil {
		c.cache.Purge()
	}
}

// AddAgent appends a segment to the X-Algolia-Agent sent with searches.
// Adding the same segment twice has no effect.
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
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.agents...)
}

func (c *Client) agentHeader() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.agents, "; ")
}

// Search runs the queries concurrently and returns their responses in
// order. Responses are served from the cache when an identical query was
// answered before.
func (c *Client) Search(ctx context.Context, queries []instantsearch.Query) ([]instantsearch.Response, error) {
	ctx, span := c.tracer.Start(ctx, "algolia.search",
		trace.WithAttributes(
			attribute.Int("algolia.query_count", len(queries)),
		),
	)
	defer span.End()

	select {
	case <-ctx.Done():
		span.SetStatus(codes.Error, "context done before search")
		return nil, errors.WithSecondaryError(instantsearch.ErrCanceled, ctx.Err())
	default:
	}

	algoliaClient, err := c.getClient()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get Algolia client")
		return nil, errors.WithSecondaryError(
			instantsearch.ErrBackendUnavailable,
			errors.Wrapf(err, "failed to get Algolia client"),
		)
	}

	agent := c.agentHeader()
	responses := make([]instantsearch.Response, len(queries))
	g, gctx := errgroup.WithContext(ctx)

	for i, q := range queries {
		key := cacheKey(q)
		if resp, ok := c.cached(key); ok {
			responses[i] = resp
			continue
		}

		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			params := buildSearchParams(q, agent)
			res, err := algoliaClient.InitIndex(q.IndexName).Search(q.Text, params...)
			if err != nil {
				return errors.Wrapf(err, "search on index %s failed", q.IndexName)
			}

			resp, err := convertResponse(q.IndexName, res)
			if err != nil {
				return err
			}

			c.store(key, resp)
			responses[i] = resp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Algolia search failed")

		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.WithSecondaryError(instantsearch.ErrTimeout, err)
		}
		if errors.Is(err, context.Canceled) {
			return nil, errors.WithSecondaryError(instantsearch.ErrCanceled, err)
		}
		return nil, errors.WithSecondaryError(instantsearch.ErrBackendUnavailable, err)
	}

	span.SetStatus(codes.Ok, "search completed")
	return responses, nil
}

func (c *Client) cached(key string) (instantsearch.Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cache == nil {
		return instantsearch.Response{}, false
	}
	return c.cache.Get(key)
}

func (c *Client) store(key string, resp instantsearch.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cache != nil {
		c.cache.Add(key, resp)
	}
}

// convertResponse maps an Algolia response onto the wire shape snapshots
// embed. Both share Algolia's JSON field names.
func convertResponse(indexName string, res search.QueryRes) (instantsearch.Response, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return instantsearch.Response{}, errors.Wrap(err, "failed to encode Algolia response")
	}

	var resp instantsearch.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return instantsearch.Response{}, errors.Wrap(err, "failed to decode Algolia response")
	}
	if resp.Index == "" {
		resp.Index = indexName
	}
	return resp, nil
}
