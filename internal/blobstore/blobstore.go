// Package blobstore implements the Blob Store Gateway: it lists input
// containers and their archives, leases archives for exclusive processing,
// and reads/moves/deletes them. It wraps github.com/minio/minio-go/v7
// exactly as the teacher's internal/s3storage wraps it, with one MinIO
// bucket standing in for each per-jurisdiction container.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/caseflow/bulkscan-processor/internal/config"
	"github.com/caseflow/bulkscan-processor/internal/lease"
)

// Attributes mirrors the subset of blob metadata the coordinator needs to
// decide whether an archive is still being written.
type Attributes struct {
	LastModified time.Time
	Size         int64
}

// Gateway is the Blob Store Gateway described in the spec: list, lease,
// read, delete, and move-to-rejected, scoped to a fixed set of input
// containers known up front via configuration.
type Gateway struct {
	client     *minio.Client
	leases     *lease.Manager
	containers []string
	region     string
}

// New constructs a Gateway from configuration. containers is the list of
// input container (bucket) names this gateway serves.
func New(cfg *config.Config, client *minio.Client, leases *lease.Manager, containers []string) *Gateway {
	return &Gateway{client: client, leases: leases, containers: containers, region: cfg.S3Region}
}

// NewMinioClient builds the MinIO client used by both the Gateway and the
// downstream Document Store, following the teacher's internal/s3storage.New.
func NewMinioClient(cfg *config.Config) (*minio.Client, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return client, nil
}

// ListContainers returns the configured input containers, ensuring each one
// (and its rejected sibling) exists.
func (g *Gateway) ListContainers(ctx context.Context) ([]string, error) {
	for _, c := range g.containers {
		if err := g.ensureBucket(ctx, c); err != nil {
			return nil, err
		}
		if err := g.ensureBucket(ctx, rejectedName(c)); err != nil {
			return nil, err
		}
	}
	out := make([]string, len(g.containers))
	copy(out, g.containers)
	return out, nil
}

func (g *Gateway) ensureBucket(ctx context.Context, bucket string) error {
	exists, err := g.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := g.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: g.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", bucket, err)
		}
	}
	return nil
}

// ListArchives enumerates the archive filenames currently in container.
// Order is unspecified, as MinIO's listing does not guarantee one.
func (g *Gateway) ListArchives(ctx context.Context, container string) ([]string, error) {
	var names []string
	for obj := range g.client.ListObjects(ctx, container, minio.ListObjectsOptions{}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", container, obj.Err)
		}
		names = append(names, obj.Key)
	}
	return names, nil
}

// Attributes fetches blob attributes without downloading its contents.
func (g *Gateway) Attributes(ctx context.Context, container, name string) (Attributes, error) {
	info, err := g.client.StatObject(ctx, container, name, minio.StatObjectOptions{})
	if err != nil {
		return Attributes{}, fmt.Errorf("stat %s/%s: %w", container, name, err)
	}
	return Attributes{LastModified: info.LastModified, Size: info.Size}, nil
}

// Lease is an opaque token proving exclusive ownership of one archive.
type Lease struct {
	token     lease.Token
	container string
	name      string
}

// AcquireLease attempts to claim container/name for ttl. The boolean return
// is the "busy" signal: false with a nil error means another replica
// currently holds the lease.
func (g *Gateway) AcquireLease(ctx context.Context, container, name string, ttl time.Duration) (Lease, bool, error) {
	tok, ok, err := g.leases.Acquire(ctx, container, name, ttl)
	if err != nil || !ok {
		return Lease{}, ok, err
	}
	return Lease{token: tok, container: container, name: name}, true, nil
}

// ReleaseLease gives the lease up early; callers are not required to call
// it, since the TTL guarantees eventual release.
func (g *Gateway) ReleaseLease(ctx context.Context, l Lease) error {
	return g.leases.Release(ctx, l.token)
}

// OpenRead returns a stream over the archive's bytes.
func (g *Gateway) OpenRead(ctx context.Context, container, name string) (*minio.Object, error) {
	obj, err := g.client.GetObject(ctx, container, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("open %s/%s: %w", container, name, err)
	}
	return obj, nil
}

// ReadAll is a convenience used by callers that need the whole archive in
// memory (outer ZIPs are small enough that this is acceptable; the pipeline
// bounds memory by processing one archive at a time, never a whole batch).
func (g *Gateway) ReadAll(ctx context.Context, container, name string) ([]byte, error) {
	obj, err := g.OpenRead(ctx, container, name)
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

// DeleteIfExists removes the archive, succeeding if it is already absent.
func (g *Gateway) DeleteIfExists(ctx context.Context, container, name string) error {
	err := g.client.RemoveObject(ctx, container, name, minio.RemoveObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("delete %s/%s: %w", container, name, err)
	}
	return nil
}

// MoveToRejected copies the archive into <container>-rejected, overwriting
// any same-named blob already there, then deletes the source.
func (g *Gateway) MoveToRejected(ctx context.Context, container, name string) error {
	dest := rejectedName(container)
	if err := g.ensureBucket(ctx, dest); err != nil {
		return err
	}
	src := minio.CopySrcOptions{Bucket: container, Object: name}
	dst := minio.CopyDestOptions{Bucket: dest, Object: name}
	if _, err := g.client.CopyObject(ctx, dst, src); err != nil {
		return fmt.Errorf("copy %s/%s to rejected: %w", container, name, err)
	}
	return g.DeleteIfExists(ctx, container, name)
}

func rejectedName(container string) string {
	return container + "-rejected"
}
