package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"

	"github.com/quantfold/tip/internal/schema"
)

// uploader is the slice of the S3 client the store depends on.
type uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store uploads gzip-compressed JSON blobs to a single bucket.
type Store struct {
	client uploader
	bucket string
}

// NewStore returns a Store writing to bucket through client.
func NewStore(client *s3.Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// PutJSON gzips the JSON encoding of v and uploads it under key, returning
// the blob URI.
func (s *Store) PutJSON(ctx context.Context, key string, v any) (string, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal blob body: %w", err)
	}
	return s.putCompressed(ctx, key, body)
}

func (s *Store) putCompressed(ctx context.Context, key string, body []byte) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return "", fmt.Errorf("compress blob body: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("finish blob compression: %w", err)
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(buf.Bytes()),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return "", fmt.Errorf("put blob %s: %w", key, err)
	}
	return s.URI(key), nil
}

// URI renders the s3:// URI for a key in the store's bucket.
func (s *Store) URI(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}

// WriteRaw archives the verbatim upstream record for an event, partitioned
// by the event timestamp.
func (s *Store) WriteRaw(ctx context.Context, source schema.Source, eventID string, ts time.Time, record map[string]any) (string, error) {
	return s.PutJSON(ctx, RawKey(source, eventID, ts), record)
}

// WriteEvent archives the canonical encoding of evt under the events prefix.
func (s *Store) WriteEvent(ctx context.Context, evt schema.EventV1) (string, error) {
	body, err := schema.Encode(evt)
	if err != nil {
		return "", fmt.Errorf("encode canonical event: %w", err)
	}
	return s.putCompressed(ctx, EventKey(evt.EventType, evt.EventID, evt.TsEvent), body)
}
