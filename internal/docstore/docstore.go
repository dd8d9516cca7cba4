// Package docstore is the downstream Document Store client: a separate
// bucket from the input containers, keyed by envelope so a document from
// one archive can never collide with another's. It wraps
// github.com/minio/minio-go/v7 the same way internal/blobstore does, since
// both are MinIO buckets under the hood, just serving different roles.
package docstore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"

	"github.com/caseflow/bulkscan-processor/internal/config"
)

// Store is the downstream Document Store: PDFs go in, public/internal URLs
// come out, one per uploaded filename.
type Store struct {
	client *minio.Client
	bucket string
	region string
}

// New constructs a Store bound to cfg.DocumentBucket, ensuring the bucket
// exists.
func New(ctx context.Context, cfg *config.Config, client *minio.Client) (*Store, error) {
	s := &Store{client: client, bucket: cfg.DocumentBucket, region: cfg.S3Region}
	exists, err := client.BucketExists(ctx, s.bucket)
	if err != nil {
		return nil, fmt.Errorf("check document bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return nil, fmt.Errorf("make document bucket: %w", err)
		}
	}
	return s, nil
}

// Document is one PDF to push to the store, keyed by its declared filename.
type Document struct {
	FileName string
	Data     []byte
}

// Upload pushes each document under a key namespaced by envelopeID, and
// returns a map from filename to the storage URL the Envelope & Event Store
// should record against the matching scannable item.
func (s *Store) Upload(ctx context.Context, envelopeID string, docs []Document) (map[string]string, error) {
	urls := make(map[string]string, len(docs))
	for _, doc := range docs {
		key := objectKey(envelopeID, doc.FileName)
		_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(doc.Data), int64(len(doc.Data)), minio.PutObjectOptions{
			ContentType: "application/pdf",
		})
		if err != nil {
			return nil, fmt.Errorf("upload %s: %w", doc.FileName, err)
		}
		urls[doc.FileName] = fmt.Sprintf("s3://%s/%s", s.bucket, key)
	}
	return urls, nil
}

func objectKey(envelopeID, fileName string) string {
	return envelopeID + "/" + fileName
}
