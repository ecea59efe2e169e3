package algolia

import (
	"context"
	"testing"

	cerrors "github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/instantsearch"
)

func TestNewClient(t *testing.T) {
	client := NewClient(StaticSecrets("test-app", "test-key"))

	if client.AppID() != "test-app" {
		t.Errorf("Expected AppID 'test-app', got '%s'", client.AppID())
	}
	if client.APIKey() != "test-key" {
		t.Errorf("Expected APIKey 'test-key', got '%s'", client.APIKey())
	}
	if client.cache == nil {
		t.Error("Expected the response cache to be enabled by default")
	}
}

func TestNewClient_WithoutCache(t *testing.T) {
	client := NewClient(StaticSecrets("test-app", "test-key"), WithCacheSize(0))
	if client.cache != nil {
		t.Error("Expected no cache with size 0")
	}
	// must not panic
	client.ClearCache()
}

func TestClient_SecretsAreFetchedOnce(t *testing.T) {
	calls := 0
	client := NewClient(func() (Secrets, error) {
		calls++
		return Secrets{AppID: "app", APIKey: "key"}, nil
	})

	if calls != 0 {
		t.Fatalf("Expected lazy secrets, got %d calls", calls)
	}
	client.AppID()
	client.APIKey()
	client.AppID()
	if calls != 1 {
		t.Errorf("Expected 1 secrets call, got %d", calls)
	}
}

func TestClient_MissingSecrets(t *testing.T) {
	client := NewClient(StaticSecrets("", "key"))

	if client.AppID() != "" {
		t.Errorf("Expected empty AppID, got '%s'", client.AppID())
	}

	_, err := client.Search(context.Background(), []instantsearch.Query{instantsearch.NewQuery("cars", "")})
	if !cerrors.Is(err, instantsearch.ErrBackendUnavailable) {
		t.Errorf("Expected ErrBackendUnavailable, got %v", err)
	}
}

func TestClient_AddAgent(t *testing.T) {
	client := NewClient(StaticSecrets("app", "key"))
	client.AddAgent("instantsearch-go 1.3.0")
	client.AddAgent("cli")
	client.AddAgent("instantsearch-go 1.3.0")

	agents := client.Agents()
	if len(agents) != 2 {
		t.Fatalf("Expected 2 agents, got %v", agents)
	}
	if got := client.agentHeader(); got != "instantsearch-go 1.3.0; cli" {
		t.Errorf("Unexpected agent header '%s'", got)
	}
}

func TestClient_SearchServesCachedResponses(t *testing.T) {
	client := NewClient(StaticSecrets("app", "key"))
	q := instantsearch.NewQuery("cars", "bmw", instantsearch.WithHitsPerPage(5))
	cached := instantsearch.Response{Index: "cars", Query: "bmw", NbHits: 42}
	client.store(cacheKey(q), cached)

	responses, err := client.Search(context.Background(), []instantsearch.Query{q})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(responses) != 1 || responses[0].NbHits != 42 {
		t.Errorf("Expected the cached response, got %+v", responses)
	}

	client.ClearCache()
	if _, ok := client.cached(cacheKey(q)); ok {
		t.Error("Expected ClearCache to drop the cached response")
	}
}

func TestClient_SearchCanceledContext(t *testing.T) {
	client := NewClient(StaticSecrets("app", "key"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Search(ctx, []instantsearch.Query{instantsearch.NewQuery("cars", "")})
	if !cerrors.Is(err, instantsearch.ErrCanceled) {
		t.Errorf("Expected ErrCanceled, got %v", err)
	}
}

func TestFactory(t *testing.T) {
	factory := Factory(WithCacheSize(8))

	client, err := factory("app", "key")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if client.AppID() != "app" || client.APIKey() != "key" {
		t.Errorf("Unexpected credentials %s/%s", client.AppID(), client.APIKey())
	}

	if _, err := factory("", ""); err == nil {
		t.Error("Expected error for empty credentials")
	}
}

func TestNewStore(t *testing.T) {
	store, err := NewStore("app", "key")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer store.Close()

	if store.AppID() != "app" {
		t.Errorf("Expected AppID 'app', got '%s'", store.AppID())
	}

	client, ok := store.Client().(*Client)
	if !ok {
		t.Fatalf("Expected *Client, got %T", store.Client())
	}
	if agents := client.Agents(); len(agents) != 1 || agents[0] != "instantsearch-go "+instantsearch.Version {
		t.Errorf("Expected the store agent, got %v", agents)
	}
}
