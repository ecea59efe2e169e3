package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/letmevibethatforyou/instantsearch"
	"github.com/letmevibethatforyou/instantsearch/algolia"
	"github.com/letmevibethatforyou/instantsearch/inmemory"
	"github.com/letmevibethatforyou/instantsearch/internal/snapshots"
	"github.com/urfave/cli/v2"
)

const (
	defaultHitsPerPage = 10
	defaultTimeout     = 5 * time.Second
)

func main() {
	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" || os.Getenv("AWS_REGION") != "" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	}

	app := &cli.App{
		Name:  "query",
		Usage: "Run a synchronized search session against Algolia or a local fixture",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "index",
				Aliases:  []string{"i"},
				Usage:    "Index name",
				EnvVars:  []string{"ALGOLIA_INDEX"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "algolia-secret-arn",
				Usage:   "ARN of AWS Secrets Manager secret containing Algolia credentials",
				EnvVars: []string{"ALGOLIA_SECRET_ARN"},
			},
			&cli.StringFlag{
				Name:  "fixture",
				Usage: "Search a JSON array of objects (see the generator command) instead of Algolia",
			},
			&cli.StringFlag{
				Name:    "query",
				Aliases: []string{"q"},
				Usage:   "Query string to search for; positional arg is a fallback",
			},
			&cli.IntFlag{
				Name:    "hits-per-page",
				Aliases: []string{"n"},
				Usage:   "Number of hits per page",
				Value:   defaultHitsPerPage,
			},
			&cli.IntFlag{
				Name:    "page",
				Aliases: []string{"p"},
				Usage:   "Page to fetch, starting at 1",
				Value:   1,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Timeout for the search session to get in sync",
				Value: defaultTimeout,
			},
			&cli.StringSliceFlag{
				Name:  "facet",
				Usage: "Conjunctive facet attribute; repeatable",
			},
			&cli.StringSliceFlag{
				Name:  "disjunctive-facet",
				Usage: "Disjunctive facet attribute; repeatable",
			},
			&cli.StringSliceFlag{
				Name:  "hierarchical-facet",
				Usage: "Hierarchical facet as name=attr0,attr1,...; repeatable",
			},
			&cli.StringFlag{
				Name:  "hierarchical-separator",
				Usage: "Separator between levels of hierarchical values",
				Value: instantsearch.DefaultHierarchicalSeparator,
			},
			&cli.StringSliceFlag{
				Name:  "refine",
				Usage: "Facet refinement in attribute=value format; repeatable",
			},
			&cli.StringSliceFlag{
				Name:  "numeric",
				Usage: "Numeric refinement such as price>=1000; repeatable",
			},
			&cli.IntFlag{
				Name:  "max-values-per-facet",
				Usage: "Number of values to fetch per facet",
				Value: 10,
			},
			&cli.StringFlag{
				Name:  "highlight-pre-tag",
				Usage: "Tag opening highlighted matches in the output",
				Value: instantsearch.DefaultHighlightPreTag,
			},
			&cli.StringFlag{
				Name:  "highlight-post-tag",
				Usage: "Tag closing highlighted matches in the output",
				Value: instantsearch.DefaultHighlightPostTag,
			},
			&cli.StringFlag{
				Name:  "snapshot-file",
				Usage: "Write the serialized session to this file",
			},
			&cli.StringFlag{
				Name:    "snapshot-table",
				Usage:   "Store the serialized session in this DynamoDB table",
				EnvVars: []string{"SNAPSHOT_TABLE"},
			},
		},
		Action: runAction,
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

type options struct {
	index         string
	query         string
	hitsPerPage   int
	page          int
	maxValues     int
	facets        []string
	disjunctive   []string
	hierarchical  []instantsearch.HierarchicalFacet
	refinements   []refinement
	numeric       []numericFilter
	preTag        string
	postTag       string
	timeout       time.Duration
	snapshotFile  string
	snapshotTable string
	fixture       string
	secretArn     string
}

func readOptions(c *cli.Context) (options, error) {
	ctx := c.Context
	opts := options{
		index:         strings.TrimSpace(c.String("index")),
		query:         strings.TrimSpace(c.String("query")),
		hitsPerPage:   c.Int("hits-per-page"),
		page:          c.Int("page"),
		maxValues:     c.Int("max-values-per-facet"),
		facets:        c.StringSlice("facet"),
		disjunctive:   c.StringSlice("disjunctive-facet"),
		preTag:        c.String("highlight-pre-tag"),
		postTag:       c.String("highlight-post-tag"),
		timeout:       c.Duration("timeout"),
		snapshotFile:  strings.TrimSpace(c.String("snapshot-file")),
		snapshotTable: strings.TrimSpace(c.String("snapshot-table")),
		fixture:       strings.TrimSpace(c.String("fixture")),
		secretArn:     strings.TrimSpace(c.String("algolia-secret-arn")),
	}

	if opts.query == "" && c.NArg() > 0 {
		opts.query = strings.TrimSpace(c.Args().First())
	}

	if opts.hitsPerPage <= 0 {
		slog.WarnContext(ctx, "hits-per-page must be positive; falling back to default", "hits_per_page", opts.hitsPerPage, "default", defaultHitsPerPage)
		opts.hitsPerPage = defaultHitsPerPage
	}

	if opts.page < 1 {
		slog.WarnContext(ctx, "page starts at 1; resetting to 1", "page", opts.page)
		opts.page = 1
	}

	if opts.timeout <= 0 {
		slog.WarnContext(ctx, "timeout must be positive; using default", "timeout", opts.timeout, "default", defaultTimeout)
		opts.timeout = defaultTimeout
	}

	for _, raw := range c.StringSlice("hierarchical-facet") {
		facet, err := parseHierarchicalFacet(raw, c.String("hierarchical-separator"))
		if err != nil {
			return options{}, err
		}
		opts.hierarchical = append(opts.hierarchical, facet)
	}

	var err error
	if opts.refinements, err = parseRefinements(c.StringSlice("refine")); err != nil {
		return options{}, fmt.Errorf("invalid refinement: %w", err)
	}
	if opts.numeric, err = parseNumericFilters(c.StringSlice("numeric")); err != nil {
		return options{}, fmt.Errorf("invalid numeric refinement: %w", err)
	}

	return opts, nil
}

func runAction(c *cli.Context) error {
	ctx := c.Context

	opts, err := readOptions(c)
	if err != nil {
		return err
	}

	client, err := newClient(ctx, opts)
	if err != nil {
		return err
	}

	store, err := instantsearch.NewStoreFromClient(client, instantsearch.WithLogger(slog.Default()))
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer store.Close()

	if err := configure(store, opts); err != nil {
		return err
	}

	slog.InfoContext(ctx, "executing query",
		"index", opts.index,
		"query", opts.query,
		"page", opts.page,
		"hits_per_page", opts.hitsPerPage,
		"refinement_count", len(opts.refinements)+len(opts.numeric),
		"timeout", opts.timeout,
	)

	syncCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	store.Resume()
	store.Refresh()
	if err := store.WaitUntilInSync(syncCtx); err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if err := printResults(store, opts); err != nil {
		return fmt.Errorf("failed to serialize results: %w", err)
	}

	return saveSnapshot(ctx, store, opts)
}

func newClient(ctx context.Context, opts options) (instantsearch.Client, error) {
	if opts.fixture != "" {
		data, err := os.ReadFile(opts.fixture)
		if err != nil {
			return nil, fmt.Errorf("failed to read fixture: %w", err)
		}

		client := inmemory.New()
		n, err := client.LoadJSON(opts.index, data)
		if err != nil {
			return nil, fmt.Errorf("failed to load fixture: %w", err)
		}
		slog.InfoContext(ctx, "using in-memory fixture", "path", opts.fixture, "documents", n)
		return client, nil
	}

	var fetchSecrets algolia.FetchSecrets
	if opts.secretArn != "" {
		slog.InfoContext(ctx, "using AWS Secrets Manager for Algolia credentials", "secret_arn", opts.secretArn)
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		secretsClient := secretsmanager.NewFromConfig(cfg)
		fetchSecrets = algolia.AWSSecretsFromARN(ctx, secretsClient, opts.secretArn)
	} else {
		fetchSecrets = algolia.EnvSecrets()
	}

	return algolia.NewClient(fetchSecrets, algolia.WithLogger(slog.Default())), nil
}

// configure applies the session parameters while the store is paused, so
// that they result in a single search.
func configure(store *instantsearch.Store, opts options) error {
	store.SetIndexName(opts.index)
	store.SetQuery(opts.query)
	store.SetHighlightPreTag(opts.preTag)
	store.SetHighlightPostTag(opts.postTag)

	for _, attr := range opts.facets {
		if err := store.AddFacet(attr, instantsearch.FacetConjunctive); err != nil {
			return fmt.Errorf("failed to add facet %s: %w", attr, err)
		}
	}
	for _, attr := range opts.disjunctive {
		if err := store.AddFacet(attr, instantsearch.FacetDisjunctive); err != nil {
			return fmt.Errorf("failed to add disjunctive facet %s: %w", attr, err)
		}
	}
	for _, facet := range opts.hierarchical {
		if err := store.AddHierarchicalFacet(facet); err != nil {
			return fmt.Errorf("failed to add hierarchical facet %s: %w", facet.Name, err)
		}
	}

	for _, r := range opts.refinements {
		if !isFacet(store, r.attribute) {
			// refining an unknown attribute makes it a conjunctive facet
			if err := store.AddFacet(r.attribute, instantsearch.FacetConjunctive); err != nil {
				return fmt.Errorf("failed to add facet %s: %w", r.attribute, err)
			}
		}
		store.AddFacetRefinement(r.attribute, r.value)
	}
	for _, n := range opts.numeric {
		if err := store.AddNumericRefinement(n.attribute, n.op, n.value); err != nil {
			return fmt.Errorf("failed to add numeric refinement on %s: %w", n.attribute, err)
		}
	}

	if err := store.SetMaxValuesPerFacet(opts.maxValues); err != nil {
		return fmt.Errorf("failed to set max values per facet: %w", err)
	}
	if err := store.SetResultsPerPage(opts.hitsPerPage); err != nil {
		return fmt.Errorf("failed to set hits per page: %w", err)
	}
	store.SetPage(opts.page)
	return nil
}

func isFacet(store *instantsearch.Store, attribute string) bool {
	for _, kind := range []instantsearch.FacetKind{
		instantsearch.FacetConjunctive,
		instantsearch.FacetDisjunctive,
		instantsearch.FacetHierarchical,
	} {
		if ok, _ := store.HasFacet(attribute, kind); ok {
			return true
		}
	}
	return false
}

func facetAttributes(opts options) []string {
	attrs := append([]string(nil), opts.facets...)
	attrs = append(attrs, opts.disjunctive...)
	for _, f := range opts.hierarchical {
		attrs = append(attrs, f.Name)
	}
	for _, r := range opts.refinements {
		attrs = append(attrs, r.attribute)
	}
	return attrs
}

type facetOutput struct {
	Values []instantsearch.FacetValue `json:"values"`
	Stats  *instantsearch.FacetStats  `json:"stats,omitempty"`
}

func printResults(store *instantsearch.Store, opts options) error {
	facets := make(map[string]facetOutput)
	for _, attr := range facetAttributes(opts) {
		if _, done := facets[attr]; done {
			continue
		}
		out := facetOutput{Values: store.FacetValues(attr, nil, instantsearch.NoLimit)}
		if stats := store.FacetStats(attr); stats != (instantsearch.FacetStats{}) {
			out.Stats = &stats
		}
		facets[attr] = out
	}

	payload := struct {
		Query            string                     `json:"query"`
		Page             int                        `json:"page"`
		TotalPages       int                        `json:"total_pages"`
		TotalResults     int                        `json:"total_results"`
		ProcessingTimeMS int                        `json:"processing_time_ms"`
		Refinements      []instantsearch.Refinement `json:"refinements"`
		Facets           map[string]facetOutput     `json:"facets,omitempty"`
		Hits             []map[string]interface{}   `json:"hits"`
	}{
		Query:            store.Query(),
		Page:             store.Page(),
		TotalPages:       store.TotalPages(),
		TotalResults:     store.TotalResults(),
		ProcessingTimeMS: store.ProcessingTimeMS(),
		Refinements:      store.ActiveRefinements(),
		Facets:           facets,
		Hits:             store.Results(),
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	fmt.Println(string(data))
	return nil
}

func saveSnapshot(ctx context.Context, store *instantsearch.Store, opts options) error {
	if opts.snapshotFile == "" && opts.snapshotTable == "" {
		return nil
	}

	snap, err := store.Serialize()
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}

	if opts.snapshotFile != "" {
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal snapshot: %w", err)
		}
		if err := os.WriteFile(opts.snapshotFile, data, 0o644); err != nil {
			return fmt.Errorf("failed to write snapshot: %w", err)
		}
		slog.InfoContext(ctx, "snapshot written", "path", opts.snapshotFile)
	}

	if opts.snapshotTable != "" {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}
		repo := snapshots.NewRepository(dynamodb.NewFromConfig(cfg), opts.snapshotTable)
		id, err := repo.Save(ctx, "", snap)
		if err != nil {
			return fmt.Errorf("failed to store snapshot: %w", err)
		}
		slog.InfoContext(ctx, "snapshot stored", "table", opts.snapshotTable, "id", id)
	}

	return nil
}
