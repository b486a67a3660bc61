package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jeezy05/researchmate/blobstore"
)

// ErrConcurrentModification is returned when another writer committed a
// newer snapshot first.
var ErrConcurrentModification = errors.New("concurrent snapshot commit detected")

// DDBClient is the subset of the DynamoDB API used by the commit store.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// CommitStore tracks the latest committed snapshot per index in DynamoDB.
//
// S3 lacks compare-and-swap, so publishing "which snapshot is current" via a
// plain object would race between concurrent writers. A DynamoDB conditional
// write provides the missing atomic pointer update.
//
// Table schema: partition key index_name (S); attributes seq (N) and
// snapshot_key (S).
type CommitStore struct {
	client    DDBClient
	tableName string
}

// NewCommitStore creates a commit store over an existing DynamoDB table.
func NewCommitStore(client DDBClient, tableName string) *CommitStore {
	return &CommitStore{client: client, tableName: tableName}
}

// Commit atomically publishes snapshotKey as the latest snapshot for
// indexName, provided seq is newer than the current pointer. Returns
// ErrConcurrentModification if another writer already committed an equal or
// newer sequence.
func (c *CommitStore) Commit(ctx context.Context, indexName, snapshotKey string, seq uint64) error {
	_, err := c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]ddbtypes.AttributeValue{
			"index_name":   &ddbtypes.AttributeValueMemberS{Value: indexName},
			"seq":          &ddbtypes.AttributeValueMemberN{Value: strconv.FormatUint(seq, 10)},
			"snapshot_key": &ddbtypes.AttributeValueMemberS{Value: snapshotKey},
		},
		ConditionExpression: aws.String("attribute_not_exists(index_name) OR seq < :seq"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":seq": &ddbtypes.AttributeValueMemberN{Value: strconv.FormatUint(seq, 10)},
		},
	})
	if err != nil {
		var conditionFailed *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return fmt.Errorf("%w: index %s seq %d", ErrConcurrentModification, indexName, seq)
		}
		return fmt.Errorf("failed to commit snapshot pointer: %w", err)
	}
	return nil
}

// Latest returns the snapshot key and sequence of the newest committed
// snapshot for indexName. Returns blobstore.ErrNotFound when nothing has
// been committed yet.
func (c *CommitStore) Latest(ctx context.Context, indexName string) (string, uint64, error) {
	resp, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		ConsistentRead: aws.Bool(true),
		Key: map[string]ddbtypes.AttributeValue{
			"index_name": &ddbtypes.AttributeValueMemberS{Value: indexName},
		},
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to read snapshot pointer: %w", err)
	}
	if len(resp.Item) == 0 {
		return "", 0, fmt.Errorf("%w: no committed snapshot for index %s", blobstore.ErrNotFound, indexName)
	}

	keyAttr, ok := resp.Item["snapshot_key"].(*ddbtypes.AttributeValueMemberS)
	if !ok {
		return "", 0, errors.New("invalid snapshot_key attribute")
	}
	seqAttr, ok := resp.Item["seq"].(*ddbtypes.AttributeValueMemberN)
	if !ok {
		return "", 0, errors.New("invalid seq attribute")
	}
	seq, err := strconv.ParseUint(seqAttr.Value, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("failed to parse seq: %w", err)
	}

	return keyAttr.Value, seq, nil
}
