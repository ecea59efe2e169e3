package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/instantsearch"
	"github.com/letmevibethatforyou/instantsearch/algolia"
	"github.com/letmevibethatforyou/instantsearch/internal/snapshots"
	"github.com/urfave/cli/v2"
)

// SnapshotSaver stores hydrated sessions.
type SnapshotSaver interface {
	Save(ctx context.Context, id string, snap instantsearch.Snapshot) (string, error)
}

// Handler turns hydration requests written to the snapshots table into
// stored snapshots: it replays the requested search in a fresh Store, waits
// until the Store is in sync and saves its serialized form under the
// request ID.
type Handler struct {
	client  instantsearch.Client
	saver   SnapshotSaver
	timeout time.Duration
}

func NewHandler(client instantsearch.Client, saver SnapshotSaver, timeout time.Duration) *Handler {
	return &Handler{
		client:  client,
		saver:   saver,
		timeout: timeout,
	}
}

func (h *Handler) HandleDynamoDBEvent(ctx context.Context, e events.DynamoDBEvent) error {
	slog.InfoContext(ctx, "Processing DynamoDB stream records", "record_count", len(e.Records))

	for _, record := range e.Records {
		if err := h.processRecord(ctx, record); err != nil {
			slog.ErrorContext(ctx, "Error processing record", "event_id", record.EventID, "error", err)
			return err
		}
	}

	return nil
}

func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	if snapshots.OperationType(record.EventName) != snapshots.OperationInsert {
		slog.InfoContext(ctx, "Ignoring event type", "event_type", record.EventName)
		return nil
	}

	if record.Change.NewImage == nil {
		slog.WarnContext(ctx, "No new image for insert operation, skipping record")
		return nil
	}

	req, err := snapshots.RequestFromStream(record.Change.NewImage)
	if err != nil {
		slog.WarnContext(ctx, "Failed to unmarshal record, skipping", "error", err)
		return nil
	}

	// snapshots written by this function land in the same table
	if req.Kind != snapshots.KindRequest {
		return nil
	}

	if req.ID == "" || req.Index == "" {
		slog.WarnContext(ctx, "Missing ID or index in hydration request, skipping record", "id", req.ID)
		return nil
	}

	snap, err := h.hydrate(ctx, req)
	if err != nil {
		if errors.Is(err, instantsearch.ErrInvalidParameters) || errors.Is(err, instantsearch.ErrInvalidOperator) {
			slog.WarnContext(ctx, "Invalid hydration request, skipping", "id", req.ID, "error", err)
			return nil
		}
		return err
	}

	if _, err := h.saver.Save(ctx, req.ID, snap); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Stored hydrated session",
		"id", req.ID,
		"index", req.Index,
		"nb_hits", nbHits(snap),
	)
	return nil
}

// hydrate runs the requested search and returns the synchronized session.
func (h *Handler) hydrate(ctx context.Context, req snapshots.Request) (instantsearch.Snapshot, error) {
	store, err := instantsearch.NewStoreFromClient(h.client, instantsearch.WithLogger(slog.Default()))
	if err != nil {
		return instantsearch.Snapshot{}, err
	}
	defer store.Close()

	params := make(map[string]interface{}, len(req.Params)+1)
	for k, v := range req.Params {
		params[k] = v
	}
	params["index"] = req.Index

	if err := store.SetQueryParameters(params); err != nil {
		return instantsearch.Snapshot{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	store.Resume()
	store.Refresh()
	if err := store.WaitUntilInSync(ctx); err != nil {
		return instantsearch.Snapshot{}, errors.Wrapf(err, "search for request %s failed", req.ID)
	}

	return store.Serialize()
}

func nbHits(snap instantsearch.Snapshot) int {
	if len(snap.Helper.Response) == 0 {
		return 0
	}
	return snap.Helper.Response[0].NbHits
}

func main() {
	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" || os.Getenv("AWS_REGION") != "" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	}

	app := &cli.App{
		Name:  "hydrate",
		Usage: "Hydrate search sessions requested through the snapshots table stream",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "table-name",
				Usage:    "DynamoDB table holding hydration requests and snapshots",
				EnvVars:  []string{"TABLE_NAME"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "env",
				Usage:   "Environment name for AWS Secrets Manager (takes precedence over API key/ID flags)",
				EnvVars: []string{"ENV", "ENVIRONMENT"},
			},
			&cli.StringFlag{
				Name:    "algolia-app-id",
				Usage:   "Algolia application ID",
				EnvVars: []string{"ALGOLIA_APP_ID"},
			},
			&cli.StringFlag{
				Name:    "algolia-api-key",
				Usage:   "Algolia search API key",
				EnvVars: []string{"ALGOLIA_API_KEY"},
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Usage:   "Time a session gets to reach sync",
				EnvVars: []string{"HYDRATE_TIMEOUT"},
				Value:   5 * time.Second,
			},
		},
		Action: runAction,
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func runAction(c *cli.Context) error {
	ctx := c.Context
	tableName := c.String("table-name")
	env := c.String("env")
	algoliaAppID := c.String("algolia-app-id")
	algoliaAPIKey := c.String("algolia-api-key")

	slog.InfoContext(ctx, "Starting session hydration", "table", tableName, "environment", env)

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load AWS config", "error", err)
		return err
	}

	var fetchSecrets algolia.FetchSecrets

	// Prioritize environment-based AWS Secrets Manager if env is provided
	if env != "" {
		slog.InfoContext(ctx, "Using AWS Secrets Manager for credentials", "environment", env)
		fetchSecrets = algolia.AWSSecrets(ctx, secretsmanager.NewFromConfig(cfg), env)
	} else if algoliaAppID != "" && algoliaAPIKey != "" {
		slog.InfoContext(ctx, "Using static credentials from flags")
		fetchSecrets = algolia.StaticSecrets(algoliaAppID, algoliaAPIKey)
	} else {
		slog.InfoContext(ctx, "Using environment variables for credentials")
		fetchSecrets = algolia.EnvSecrets()
	}

	handler := NewHandler(
		algolia.NewClient(fetchSecrets),
		snapshots.NewRepository(dynamodb.NewFromConfig(cfg), tableName),
		c.Duration("timeout"),
	)

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		slog.InfoContext(ctx, "Running in Lambda environment")
		lambda.Start(handler.HandleDynamoDBEvent)
	} else {
		slog.InfoContext(ctx, "Function cannot run outside of AWS Lambda environment")
	}

	return nil
}
