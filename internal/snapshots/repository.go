// Package snapshots persists serialized search sessions in DynamoDB so that
// pages rendered on the server can hand them to clients for hydration.
package snapshots

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/instantsearch"
	"github.com/segmentio/ksuid"
)

const (
	// KindRequest marks hydration request items.
	KindRequest = "request"
	// KindSnapshot marks stored snapshot items.
	KindSnapshot = "snapshot"
)

// ErrNotFound is returned by Load when no snapshot is stored under an ID.
var ErrNotFound = errors.New("snapshots: not found")

// DynamoDBClient is the subset of the DynamoDB API the repository uses.
type DynamoDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// Record is a stored snapshot.
type Record struct {
	ID        string    `dynamodbav:"pk"`
	Kind      string    `dynamodbav:"sk"`
	Index     string    `dynamodbav:"index"`
	Query     string    `dynamodbav:"query"`
	NbHits    int       `dynamodbav:"nb_hits"`
	CreatedAt time.Time `dynamodbav:"created_at"`
	// Snapshot is the JSON encoding of an instantsearch.Snapshot.
	Snapshot string `dynamodbav:"snapshot"`
}

// Repository reads and writes snapshot records in a single table keyed by
// pk (KSUID) and sk (item kind).
type Repository struct {
	client    DynamoDBClient
	tableName string
	now       func() time.Time
}

// NewRepository creates a repository over tableName.
func NewRepository(client DynamoDBClient, tableName string) *Repository {
	return &Repository{
		client:    client,
		tableName: tableName,
		now:       time.Now,
	}
}

// NewID returns a fresh, time-ordered record ID.
func NewID() string {
	return ksuid.New().String()
}

// Save stores snap under id. An empty id gets a fresh KSUID. It returns the
// ID the snapshot was stored under.
func (r *Repository) Save(ctx context.Context, id string, snap instantsearch.Snapshot) (string, error) {
	if id == "" {
		id = NewID()
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode snapshot")
	}

	record := Record{
		ID:        id,
		Kind:      KindSnapshot,
		CreatedAt: r.now().UTC(),
		Snapshot:  string(data),
	}
	if index, ok := snap.Helper.SearchParameters["index"].(string); ok {
		record.Index = index
	}
	if query, ok := snap.Helper.SearchParameters["query"].(string); ok {
		record.Query = query
	}
	if len(snap.Helper.Response) > 0 {
		record.NbHits = snap.Helper.Response[0].NbHits
	}

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal snapshot record")
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	}); err != nil {
		return "", errors.Wrapf(err, "failed to put snapshot %s into table %s", id, r.tableName)
	}

	return id, nil
}

// Load returns the snapshot stored under id.
func (r *Repository) Load(ctx context.Context, id string) (instantsearch.Snapshot, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: id},
			"sk": &types.AttributeValueMemberS{Value: KindSnapshot},
		},
	})
	if err != nil {
		return instantsearch.Snapshot{}, errors.Wrapf(err, "failed to get snapshot %s from table %s", id, r.tableName)
	}
	if len(out.Item) == 0 {
		return instantsearch.Snapshot{}, errors.Wrapf(ErrNotFound, "snapshot %s", id)
	}

	var record Record
	if err := attributevalue.UnmarshalMap(out.Item, &record); err != nil {
		return instantsearch.Snapshot{}, errors.Wrap(err, "failed to unmarshal snapshot record")
	}

	var snap instantsearch.Snapshot
	if err := json.Unmarshal([]byte(record.Snapshot), &snap); err != nil {
		return instantsearch.Snapshot{}, errors.Wrapf(err, "failed to decode snapshot %s", id)
	}
	return snap, nil
}

// Enqueue stores a hydration request and returns its ID.
func (r *Repository) Enqueue(ctx context.Context, index string, params map[string]any) (string, error) {
	req := Request{
		ID:     NewID(),
		Kind:   KindRequest,
		Index:  index,
		Params: params,
	}

	item, err := attributevalue.MarshalMap(req)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal hydration request")
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	}); err != nil {
		return "", errors.Wrapf(err, "failed to put hydration request into table %s", r.tableName)
	}

	return req.ID, nil
}
