package s3

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Capitan-Parrot/clever-camera/internal/models"
)

const exportPrefix = "exports"

// Client replicates snapshots and export archives to a MinIO bucket.
type Client struct {
	client *minio.Client
	bucket string
}

func NewMinioClient(endpoint, accessKey, secretKey, bucket string, secure bool) (*Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &Client{client: client, bucket: bucket}, nil
}

func (c *Client) EnsureBucketExists(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", c.bucket, err)
	}
	return nil
}

// ObjectKey maps a local snapshot path to <camera>/<day>/<basename>.
func ObjectKey(camera, localPath string) string {
	day := filepath.Base(filepath.Dir(localPath))
	return path.Join(camera, day, filepath.Base(localPath))
}

// MirrorEvent uploads the event image and thumbnail.
func (c *Client) MirrorEvent(ctx context.Context, ev models.Event) error {
	for _, p := range []string{ev.ImagePath, ev.ThumbnailPath} {
		if p == "" {
			continue
		}
		if err := c.uploadFile(ctx, ObjectKey(ev.CameraName, p), p, "image/jpeg"); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) uploadFile(ctx context.Context, key, localPath, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", localPath, err)
	}
	return c.UploadFileStream(ctx, key, f, info.Size(), contentType)
}

func (c *Client) UploadFileStream(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := c.client.PutObject(ctx, c.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// UploadArchive stores an export archive and returns its object key.
func (c *Client) UploadArchive(ctx context.Context, name string, r io.Reader, size int64) (string, error) {
	key := path.Join(exportPrefix, name)
	if err := c.UploadFileStream(ctx, key, r, size, "application/zip"); err != nil {
		return "", err
	}
	return key, nil
}

// CountArchives counts the uploaded export archives.
func (c *Client) CountArchives(ctx context.Context) (int, error) {
	return c.CountObjects(ctx, exportPrefix+"/")
}

// CountObjects counts the objects stored under prefix.
func (c *Client) CountObjects(ctx context.Context, prefix string) (int, error) {
	count := 0
	for object := range c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return 0, fmt.Errorf("error listing objects: %w", object.Err)
		}
		count++
	}
	return count, nil
}
