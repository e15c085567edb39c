package record

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/justapithecus/glean/log"
	"github.com/justapithecus/glean/types"
)

// DynamoDBAPI is the subset of the DynamoDB client used by DynamoDB.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoDB records into a table whose partition key is job_key.
// PutItem replaces the whole item, which gives upsert semantics.
type DynamoDB struct {
	client DynamoDBAPI
	table  string
	logger *log.Logger
}

// NewDynamoDB creates a recorder over client.
func NewDynamoDB(client DynamoDBAPI, table string, logger *log.Logger) *DynamoDB {
	return &DynamoDB{client: client, table: table, logger: logger}
}

// NewDynamoDBFromConfig creates a recorder from a resolved aws.Config.
func NewDynamoDBFromConfig(cfg aws.Config, table string, logger *log.Logger) *DynamoDB {
	return NewDynamoDB(dynamodb.NewFromConfig(cfg), table, logger)
}

// Upsert writes rec, replacing any item with the same job key.
func (d *DynamoDB) Upsert(ctx context.Context, rec *types.ProcessingRecord) error {
	if err := validate(rec); err != nil {
		return &PersistError{Backend: BackendDynamoDB, Err: err}
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return &PersistError{Backend: BackendDynamoDB, JobKey: rec.JobKey, Err: fmt.Errorf("marshal item: %w", err)}
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	})
	if err != nil {
		return &PersistError{Backend: BackendDynamoDB, JobKey: rec.JobKey, Err: err}
	}
	d.logger.Debug("record upserted", map[string]any{"job_key": rec.JobKey, "table": d.table})
	return nil
}

// Close is a no-op; the client holds no resources.
func (d *DynamoDB) Close() error { return nil }

var _ Recorder = (*DynamoDB)(nil)
