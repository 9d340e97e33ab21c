package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/theapemachine/recall/pkg/config"
	"github.com/theapemachine/recall/pkg/errors"
)

/*
Bucket is the slice of object storage the snapshot store needs. Conn
implements it against any S3 compatible endpoint.
*/
type Bucket interface {
	Put(ctx context.Context, key string, body []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// Conn is a connection to one bucket of an S3 compatible object store.
type Conn struct {
	Client *minio.Client
	bucket string
}

/*
NewConn dials the configured endpoint. The bucket is not touched until
EnsureBucket or the first request.
*/
func NewConn(cfg config.Snapshot) (*Conn, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("snapshot endpoint and bucket are required: %w", errors.ErrInvalidConfig)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})

	if err != nil {
		return nil, fmt.Errorf("snapshot client: %w", err)
	}

	return &Conn{Client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (conn *Conn) EnsureBucket(ctx context.Context) error {
	exists, err := conn.Client.BucketExists(ctx, conn.bucket)

	if err != nil {
		return fmt.Errorf("bucket %s: %w", conn.bucket, errors.Join(errors.ErrUnavailable, err))
	}

	if exists {
		return nil
	}

	log.Info("creating snapshot bucket", "bucket", conn.bucket)

	return conn.Client.MakeBucket(ctx, conn.bucket, minio.MakeBucketOptions{})
}

func (conn *Conn) Put(ctx context.Context, key string, body []byte) error {
	_, err := conn.Client.PutObject(
		ctx, conn.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/json"},
	)

	return err
}

func (conn *Conn) Get(ctx context.Context, key string) ([]byte, error) {
	object, err := conn.Client.GetObject(ctx, conn.bucket, key, minio.GetObjectOptions{})

	if err != nil {
		return nil, mapError(key, err)
	}

	defer object.Close()

	buf, err := io.ReadAll(object)

	if err != nil {
		return nil, mapError(key, err)
	}

	return buf, nil
}

func (conn *Conn) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	for info := range conn.Client.ListObjects(ctx, conn.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, mapError(prefix, info.Err)
		}

		keys = append(keys, info.Key)
	}

	return keys, nil
}

func mapError(key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("object %s: %w", key, errors.ErrNotFound)
	}

	return fmt.Errorf("object %s: %w", key, err)
}
