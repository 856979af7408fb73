package db

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/stretchr/testify/require"
)

// fakeDynamoClient is a hand-rolled dynamoClient substitute, in the same spirit as the
// interface itself: GetItem returns a fixed item so Document's read-before-write methods
// succeed, while deleteErr lets a test force the write half of a call to fail.
type fakeDynamoClient struct {
	item      docItem
	deleteErr error
}

func (f *fakeDynamoClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	av, err := attributevalue.MarshalMap(f.item)
	if err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: av}, nil
}

func (f *fakeDynamoClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamoClient) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamoClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamoClient) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	return &dynamodb.ScanOutput{}, nil
}

func (f *fakeDynamoClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return &dynamodb.QueryOutput{}, nil
}

func newFailingReplica(itemID string, deleteErr error) *Document {
	return &Document{
		client: &fakeDynamoClient{
			item:      docItem{ItemID: itemID, Artifacts: map[string]docArtifact{}},
			deleteErr: deleteErr,
		},
		table: "webkeep-test",
	}
}

func TestDual_DeleteArtifactsByItem_StrictPropagatesReplicaFailure(t *testing.T) {
	primary := newTestRelational(t)
	ctx := context.Background()

	article, err := primary.CreateArticle(ctx, ArchivedURL{URL: "https://example.org/h", ItemID: "item-h"})
	require.NoError(t, err)
	_, err = primary.UpsertPendingArtifact(ctx, article.ID, "monolith", "task-1")
	require.NoError(t, err)

	replica := newFailingReplica("item-h", errors.New("dynamodb: throttled"))
	dual := NewDual(primary, replica, FailureModeStrict)

	deleted, err := dual.DeleteArtifactsByItem(ctx, "item-h")
	require.Error(t, err, "strict mode must propagate a replica delete failure")
	require.Len(t, deleted, 1, "the primary's deleted rows are still returned alongside the error")

	remaining, err := primary.ListArtifacts(ctx, "item-h")
	require.NoError(t, err)
	require.Empty(t, remaining, "the primary delete is not rolled back by a replica failure")
}

func TestDual_DeleteArtifactsByItem_BestEffortSwallowsReplicaFailure(t *testing.T) {
	primary := newTestRelational(t)
	ctx := context.Background()

	article, err := primary.CreateArticle(ctx, ArchivedURL{URL: "https://example.org/i", ItemID: "item-i"})
	require.NoError(t, err)
	_, err = primary.UpsertPendingArtifact(ctx, article.ID, "monolith", "task-1")
	require.NoError(t, err)

	replica := newFailingReplica("item-i", errors.New("dynamodb: throttled"))
	dual := NewDual(primary, replica, FailureModeBestEffort)

	deleted, err := dual.DeleteArtifactsByItem(ctx, "item-i")
	require.NoError(t, err, "best_effort mode must swallow a replica delete failure")
	require.Len(t, deleted, 1)
}

func TestDual_DeleteArtifactByRowID_StrictPropagatesReplicaFailure(t *testing.T) {
	primary := newTestRelational(t)
	ctx := context.Background()

	article, err := primary.CreateArticle(ctx, ArchivedURL{URL: "https://example.org/j", ItemID: "item-j"})
	require.NoError(t, err)
	artifact, err := primary.UpsertPendingArtifact(ctx, article.ID, "monolith", "task-1")
	require.NoError(t, err)

	replica := newFailingReplica("item-j", errors.New("dynamodb: throttled"))
	dual := NewDual(primary, replica, FailureModeStrict)

	_, err = dual.DeleteArtifactByRowID(ctx, artifact.ID)
	require.Error(t, err, "strict mode must propagate a replica delete failure")

	remaining, err := primary.ListArtifacts(ctx, "item-j")
	require.NoError(t, err)
	require.Empty(t, remaining, "the primary delete is not rolled back by a replica failure")
}
