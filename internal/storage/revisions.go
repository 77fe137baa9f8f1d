// Package storage archives pre-rewrite content bodies. Bodies go to S3; an
// optional DynamoDB table indexes them per content item so revisions can be
// listed without an S3 prefix scan.
package storage

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/autolink/internal/domain"
	"github.com/ignite/autolink/internal/pkg/logger"
)

// S3API is the subset of the S3 client used here.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// DynamoAPI is the subset of the DynamoDB client used here.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// RevisionItem is the DynamoDB index row for one archived body.
type RevisionItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Key       string `dynamodbav:"Key"`
	Bytes     int    `dynamodbav:"Bytes"`
	Timestamp string `dynamodbav:"Timestamp"`
	TTL       int64  `dynamodbav:"TTL,omitempty"`
}

// Revision describes one archived body.
type Revision struct {
	ContentID  string    `json:"content_id"`
	Key        string    `json:"key"`
	Bytes      int       `json:"bytes"`
	ArchivedAt time.Time `json:"archived_at"`
}

// Options configures a RevisionArchive.
type Options struct {
	Bucket string
	// Prefix is prepended to every object key. Defaults to "revisions/".
	Prefix string
	// Table enables the DynamoDB index when non-empty.
	Table string
	// Retention sets the index TTL. Zero keeps index rows forever.
	Retention time.Duration
}

// RevisionArchive implements suggestion.Archiver.
type RevisionArchive struct {
	s3     S3API
	dynamo DynamoAPI
	opts   Options
	now    func() time.Time
}

// NewRevisionArchive builds an archive on the given clients. dynamo may be
// nil, which disables the index.
func NewRevisionArchive(s3Client S3API, dynamo DynamoAPI, opts Options) *RevisionArchive {
	if opts.Prefix == "" {
		opts.Prefix = "revisions/"
	}
	if !strings.HasSuffix(opts.Prefix, "/") {
		opts.Prefix += "/"
	}
	if opts.Table == "" {
		dynamo = nil
	}
	return &RevisionArchive{s3: s3Client, dynamo: dynamo, opts: opts, now: time.Now}
}

// Archive stores body under <prefix><contentID>/<unix-nano>.html and returns
// the object key. An index write failure is logged, not returned: the body
// itself is safely stored.
func (a *RevisionArchive) Archive(ctx context.Context, contentID, body string) (string, error) {
	now := a.now().UTC()
	key := fmt.Sprintf("%s%s/%d.html", a.opts.Prefix, contentID, now.UnixNano())

	_, err := a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.opts.Bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(body),
		ContentType: aws.String("text/html; charset=utf-8"),
	})
	if err != nil {
		return "", fmt.Errorf("putting revision to S3: %w", err)
	}

	if a.dynamo != nil {
		if err := a.index(ctx, contentID, key, len(body), now); err != nil {
			logger.Warn("revision index write failed", "content_id", contentID, "key", key, "error", err)
		}
	}
	return key, nil
}

func (a *RevisionArchive) index(ctx context.Context, contentID, key string, size int, at time.Time) error {
	item := RevisionItem{
		PK:        "CONTENT#" + contentID,
		SK:        strconv.FormatInt(at.UnixNano(), 10),
		Key:       key,
		Bytes:     size,
		Timestamp: at.Format(time.RFC3339Nano),
	}
	if a.opts.Retention > 0 {
		item.TTL = at.Add(a.opts.Retention).Unix()
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshaling item: %w", err)
	}
	_, err = a.dynamo.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(a.opts.Table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting item to DynamoDB: %w", err)
	}
	return nil
}

// ListRevisions returns the newest revisions of a content item first. It
// returns nil when the index is disabled.
func (a *RevisionArchive) ListRevisions(ctx context.Context, contentID string, limit int) ([]Revision, error) {
	if a.dynamo == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	result, err := a.dynamo.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(a.opts.Table),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "CONTENT#" + contentID},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("querying DynamoDB: %w", err)
	}

	out := make([]Revision, 0, len(result.Items))
	for _, raw := range result.Items {
		var item RevisionItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			continue
		}
		at, _ := time.Parse(time.RFC3339Nano, item.Timestamp)
		out = append(out, Revision{ContentID: contentID, Key: item.Key, Bytes: item.Bytes, ArchivedAt: at})
	}
	return out, nil
}

// Fetch returns an archived body by object key. Keys outside contentID's
// revision prefix are reported as domain.ErrNotFound.
func (a *RevisionArchive) Fetch(ctx context.Context, contentID, key string) (string, error) {
	if contentID == "" || !strings.HasPrefix(key, a.opts.Prefix+contentID+"/") {
		return "", fmt.Errorf("revision %q: %w", key, domain.ErrNotFound)
	}
	result, err := a.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("getting revision from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return "", fmt.Errorf("reading S3 object body: %w", err)
	}
	return string(data), nil
}
