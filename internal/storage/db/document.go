package db

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// dynamoClient is the minimal surface Document needs from *dynamodb.Client, narrowed the
// way gurre-ddb-pitr's aws/interfaces.go narrows its AWS SDK clients: a hand-rolled
// interface plus a compile-time assertion that the real SDK client satisfies it, so tests
// can substitute a fake without an SDK-provided mock.
type dynamoClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

var _ dynamoClient = (*dynamodb.Client)(nil)
var _ Provider = (*Document)(nil)

// Document is the denormalized, item_id-keyed Database Storage Provider backed by
// DynamoDB: one item per ArchivedURL, with its artifacts nested as a map attribute keyed
// by archiver name. It trails the relational catalog when used as a dual replica (spec
// §4.4's "mobile-facing denormalized store").
type Document struct {
	client dynamoClient
	table  string
}

// NewDocument constructs a Document provider over an existing *dynamodb.Client.
func NewDocument(client *dynamodb.Client, table string) *Document {
	return &Document{client: client, table: table}
}

// docArtifact is the nested, per-archiver shape stored under the item's artifacts map.
type docArtifact struct {
	ArchivedURLID       int64                 `dynamodbav:"archived_url_id"`
	Archiver            string                `dynamodbav:"archiver"`
	Success             bool                  `dynamodbav:"success"`
	ExitCode            *int                  `dynamodbav:"exit_code,omitempty"`
	SavedPath           string                `dynamodbav:"saved_path,omitempty"`
	SizeBytes           *int64                `dynamodbav:"size_bytes,omitempty"`
	Status              string                `dynamodbav:"status"`
	TaskID              string                `dynamodbav:"task_id,omitempty"`
	UploadedToStorage   bool                  `dynamodbav:"uploaded_to_storage"`
	StorageUploads      []StorageUploadRecord `dynamodbav:"storage_uploads,omitempty"`
	AllUploadsSucceeded bool                  `dynamodbav:"all_uploads_succeeded"`
	LocalFileDeleted    bool                  `dynamodbav:"local_file_deleted"`
	LocalFileDeletedAt  *time.Time            `dynamodbav:"local_file_deleted_at,omitempty"`
	CreatedAt           time.Time             `dynamodbav:"created_at"`
	UpdatedAt           *time.Time            `dynamodbav:"updated_at,omitempty"`
}

// docItem is the full DynamoDB item for one ArchivedURL.
type docItem struct {
	ItemID         string                 `dynamodbav:"item_id"`
	URL            string                 `dynamodbav:"url"`
	Name           string                 `dynamodbav:"name,omitempty"`
	CreatedAt      time.Time              `dynamodbav:"created_at"`
	TotalSizeBytes int64                  `dynamodbav:"total_size_bytes"`
	Artifacts      map[string]docArtifact `dynamodbav:"artifacts,omitempty"`
	Metadata       *URLMetadata           `dynamodbav:"metadata,omitempty"`
}

func (d *Document) getItem(ctx context.Context, itemID string) (docItem, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table),
		Key:       map[string]types.AttributeValue{"item_id": &types.AttributeValueMemberS{Value: itemID}},
	})
	if err != nil {
		return docItem{}, fmt.Errorf("document: GetItem(%s) failed: %w", itemID, err)
	}
	if out.Item == nil {
		return docItem{}, ErrNotFound
	}
	var item docItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return docItem{}, fmt.Errorf("document: failed to unmarshal item %s: %w", itemID, err)
	}
	return item, nil
}

func (d *Document) putItem(ctx context.Context, item docItem) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("document: failed to marshal item %s: %w", item.ItemID, err)
	}
	if _, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: aws.String(d.table), Item: av}); err != nil {
		return fmt.Errorf("document: PutItem(%s) failed: %w", item.ItemID, err)
	}
	return nil
}

func (d *Document) CreateArticle(ctx context.Context, article ArchivedURL) (ArchivedURL, error) {
	if existing, err := d.getItem(ctx, article.ItemID); err == nil {
		return toArchivedURL(existing), nil
	} else if err != ErrNotFound {
		return ArchivedURL{}, err
	}

	item := docItem{
		ItemID:    article.ItemID,
		URL:       article.URL,
		Name:      article.Name,
		CreatedAt: time.Now(),
		Artifacts: map[string]docArtifact{},
	}
	if err := d.putItem(ctx, item); err != nil {
		return ArchivedURL{}, err
	}
	return toArchivedURL(item), nil
}

func toArchivedURL(item docItem) ArchivedURL {
	return ArchivedURL{
		URL:            item.URL,
		ItemID:         item.ItemID,
		Name:           item.Name,
		CreatedAt:      item.CreatedAt,
		TotalSizeBytes: item.TotalSizeBytes,
	}
}

func (d *Document) GetArticle(ctx context.Context, itemID string) (ArchivedURL, error) {
	item, err := d.getItem(ctx, itemID)
	if err != nil {
		return ArchivedURL{}, err
	}
	return toArchivedURL(item), nil
}

// GetArticleByURL requires a table scan: the document store is keyed by item_id, not url.
// Used by admin lookups and by the execution-time dedup fallback for wrapped URLs.
func (d *Document) GetArticleByURL(ctx context.Context, url string) (ArchivedURL, error) {
	out, err := d.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(d.table),
		FilterExpression: aws.String("#u = :url"),
		ExpressionAttributeNames: map[string]string{
			"#u": "url",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":url": &types.AttributeValueMemberS{Value: url},
		},
	})
	if err != nil {
		return ArchivedURL{}, fmt.Errorf("document: scan by url failed: %w", err)
	}
	if len(out.Items) == 0 {
		return ArchivedURL{}, ErrNotFound
	}
	var item docItem
	if err := attributevalue.UnmarshalMap(out.Items[0], &item); err != nil {
		return ArchivedURL{}, fmt.Errorf("document: failed to unmarshal scanned item: %w", err)
	}
	return toArchivedURL(item), nil
}

// GetArticleByID always fails: the document store keys items by item_id and never
// assigns the numeric surrogate id the relational catalog does.
func (d *Document) GetArticleByID(ctx context.Context, id int64) (ArchivedURL, error) {
	return ArchivedURL{}, ErrNotFound
}

func (d *Document) ListArticles(ctx context.Context, limit, offset int) ([]ArchivedURL, error) {
	out, err := d.client.Scan(ctx, &dynamodb.ScanInput{TableName: aws.String(d.table)})
	if err != nil {
		return nil, fmt.Errorf("document: scan failed: %w", err)
	}
	var items []docItem
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, fmt.Errorf("document: failed to unmarshal scanned items: %w", err)
	}
	var out2 []ArchivedURL
	for i, item := range items {
		if i < offset {
			continue
		}
		if len(out2) >= limit && limit > 0 {
			break
		}
		out2 = append(out2, toArchivedURL(item))
	}
	return out2, nil
}

func (d *Document) GetArtifact(ctx context.Context, itemID, archiver string) (ArchiveArtifact, error) {
	item, err := d.getItem(ctx, itemID)
	if err != nil {
		return ArchiveArtifact{}, err
	}
	a, ok := item.Artifacts[archiver]
	if !ok {
		return ArchiveArtifact{}, ErrNotFound
	}
	return toArchiveArtifact(archiver, a), nil
}

func toArchiveArtifact(archiver string, a docArtifact) ArchiveArtifact {
	return ArchiveArtifact{
		Archiver:            archiver,
		Success:             a.Success,
		ExitCode:            a.ExitCode,
		SavedPath:           a.SavedPath,
		SizeBytes:           a.SizeBytes,
		Status:              a.Status,
		TaskID:              a.TaskID,
		UploadedToStorage:   a.UploadedToStorage,
		StorageUploads:      a.StorageUploads,
		AllUploadsSucceeded: a.AllUploadsSucceeded,
		LocalFileDeleted:    a.LocalFileDeleted,
		LocalFileDeletedAt:  a.LocalFileDeletedAt,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
}

func (d *Document) ListArtifacts(ctx context.Context, itemID string) ([]ArchiveArtifact, error) {
	item, err := d.getItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	var out []ArchiveArtifact
	for archiver, a := range item.Artifacts {
		out = append(out, toArchiveArtifact(archiver, a))
	}
	return out, nil
}

func (d *Document) UpsertPendingArtifact(ctx context.Context, archivedURLID int64, archiver, taskID string) (ArchiveArtifact, error) {
	return ArchiveArtifact{}, fmt.Errorf("document: UpsertPendingArtifact requires item_id, not archived_url_id; unsupported standalone %w", errUnsupportedByKey)
}

var errUnsupportedByKey = fmt.Errorf("document provider is keyed by item_id")

// UpsertPendingArtifactByItem is the document-native equivalent of UpsertPendingArtifact,
// used directly by the dual provider (which always has the item_id on hand).
func (d *Document) UpsertPendingArtifactByItem(ctx context.Context, itemID, archiver, taskID string) (ArchiveArtifact, error) {
	item, err := d.getItem(ctx, itemID)
	if err != nil {
		return ArchiveArtifact{}, err
	}
	if existing, ok := item.Artifacts[archiver]; ok {
		return toArchiveArtifact(archiver, existing), nil
	}
	if item.Artifacts == nil {
		item.Artifacts = map[string]docArtifact{}
	}
	item.Artifacts[archiver] = docArtifact{
		Archiver:  archiver,
		Status:    StatusPending,
		TaskID:    taskID,
		CreatedAt: time.Now(),
	}
	if err := d.putItem(ctx, item); err != nil {
		return ArchiveArtifact{}, err
	}
	return toArchiveArtifact(archiver, item.Artifacts[archiver]), nil
}

func (d *Document) UpdateArtifactStatus(ctx context.Context, u ArtifactStatusUpdate) error {
	return fmt.Errorf("document: UpdateArtifactStatus by artifact id is unsupported: %w", errUnsupportedByKey)
}

// UpdateArtifactStatusByItem is the document-native equivalent used by the dual provider.
func (d *Document) UpdateArtifactStatusByItem(ctx context.Context, itemID, archiver string, u ArtifactStatusUpdate) error {
	item, err := d.getItem(ctx, itemID)
	if err != nil {
		return err
	}
	a := item.Artifacts[archiver]
	a.Archiver = archiver
	a.Status = u.Status
	a.Success = u.Success
	a.ExitCode = u.ExitCode
	if u.SavedPath != "" {
		a.SavedPath = u.SavedPath
	}
	if u.SizeBytes != nil {
		a.SizeBytes = u.SizeBytes
	}
	if u.UploadedToStorage != nil {
		a.UploadedToStorage = *u.UploadedToStorage
	}
	now := time.Now()
	a.UpdatedAt = &now
	if item.Artifacts == nil {
		item.Artifacts = map[string]docArtifact{}
	}
	item.Artifacts[archiver] = a

	item.TotalSizeBytes = 0
	for _, art := range item.Artifacts {
		if art.Status == StatusSuccess && art.SizeBytes != nil {
			item.TotalSizeBytes += *art.SizeBytes
		}
	}
	return d.putItem(ctx, item)
}

func (d *Document) RecordStorageUploads(ctx context.Context, artifactID int64, uploads []StorageUploadRecord) error {
	return fmt.Errorf("document: RecordStorageUploads by artifact id is unsupported: %w", errUnsupportedByKey)
}

// RecordStorageUploadsByItem is the document-native equivalent used by the dual provider.
func (d *Document) RecordStorageUploadsByItem(ctx context.Context, itemID, archiver string, uploads []StorageUploadRecord) error {
	item, err := d.getItem(ctx, itemID)
	if err != nil {
		return err
	}
	a := item.Artifacts[archiver]
	a.StorageUploads = uploads
	allOK := len(uploads) > 0
	for _, u := range uploads {
		allOK = allOK && u.Success
	}
	a.UploadedToStorage = len(uploads) > 0
	a.AllUploadsSucceeded = allOK
	if item.Artifacts == nil {
		item.Artifacts = map[string]docArtifact{}
	}
	item.Artifacts[archiver] = a
	return d.putItem(ctx, item)
}

func (d *Document) MarkLocalFileDeleted(ctx context.Context, artifactID int64) error {
	return fmt.Errorf("document: MarkLocalFileDeleted by artifact id is unsupported: %w", errUnsupportedByKey)
}

func (d *Document) RequeueArtifact(ctx context.Context, artifactID int64) error {
	return fmt.Errorf("document: RequeueArtifact by artifact id is unsupported: %w", errUnsupportedByKey)
}

func (d *Document) UpdateArticleMetadata(ctx context.Context, meta URLMetadata) error {
	return fmt.Errorf("document: UpdateArticleMetadata by archived_url_id is unsupported: %w", errUnsupportedByKey)
}

// UpdateArticleMetadataByItem is the document-native equivalent used by the dual provider.
func (d *Document) UpdateArticleMetadataByItem(ctx context.Context, itemID string, meta URLMetadata) error {
	item, err := d.getItem(ctx, itemID)
	if err != nil {
		return err
	}
	item.Metadata = &meta
	return d.putItem(ctx, item)
}

func (d *Document) DeleteArtifactByRowID(ctx context.Context, rowid int64) (ArchiveArtifact, error) {
	return ArchiveArtifact{}, fmt.Errorf("document: DeleteArtifactByRowID is unsupported: %w", errUnsupportedByKey)
}

func (d *Document) DeleteArtifactsByItem(ctx context.Context, itemID string) ([]ArchiveArtifact, error) {
	item, err := d.getItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	var out []ArchiveArtifact
	for archiver, a := range item.Artifacts {
		out = append(out, toArchiveArtifact(archiver, a))
	}
	if _, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.table),
		Key:       map[string]types.AttributeValue{"item_id": &types.AttributeValueMemberS{Value: itemID}},
	}); err != nil {
		return nil, fmt.Errorf("document: DeleteItem(%s) failed: %w", itemID, err)
	}
	return out, nil
}

func (d *Document) DeleteArtifactsByURL(ctx context.Context, url string) ([]ArchiveArtifact, error) {
	article, err := d.GetArticleByURL(ctx, url)
	if err != nil {
		return nil, err
	}
	return d.DeleteArtifactsByItem(ctx, article.ItemID)
}
