package workingcopy

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore mirrors working copies into an S3-compatible bucket, one object
// per project.
type ObjectStore struct {
	client *minio.Client
	bucket string
}

func NewObjectStore(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*ObjectStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return &ObjectStore{client: client, bucket: bucket}, nil
}

func (o *ObjectStore) Write(ctx context.Context, projectID int64, body string) error {
	reader := strings.NewReader(body)
	_, err := o.client.PutObject(ctx, o.bucket, objectKey(projectID), reader, int64(reader.Len()), minio.PutObjectOptions{
		ContentType: "application/xml",
	})
	if err != nil {
		return fmt.Errorf("put working copy %d: %w", projectID, err)
	}
	return nil
}

func (o *ObjectStore) Read(ctx context.Context, projectID int64) (string, error) {
	object, err := o.client.GetObject(ctx, o.bucket, objectKey(projectID), minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("get working copy %d: %w", projectID, err)
	}
	defer object.Close()

	body, err := io.ReadAll(object)
	if err != nil {
		// GetObject defers the request; missing keys surface on first read.
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("read working copy %d: %w", projectID, err)
	}
	return string(body), nil
}

func (o *ObjectStore) Delete(ctx context.Context, projectID int64) error {
	if err := o.client.RemoveObject(ctx, o.bucket, objectKey(projectID), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete working copy %d: %w", projectID, err)
	}
	return nil
}

func objectKey(projectID int64) string {
	return fmt.Sprintf("projects/%d.ftml", projectID)
}
