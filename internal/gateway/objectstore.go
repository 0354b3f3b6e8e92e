package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/example/certverify/internal/certificate"
)

// ObjectStoreConfig contains the information required to talk to an object store.
type ObjectStoreConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// ObjectStore is the subset of object storage the uploader needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, metadata map[string]string) error
}

type minioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore creates an S3-compatible object store client.
func NewMinioStore(cfg ObjectStoreConfig) (ObjectStore, error) {
	cl, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	return &minioStore{client: cl, bucket: cfg.Bucket}, nil
}

func (m *minioStore) Put(ctx context.Context, key string, reader io.Reader, size int64, metadata map[string]string) error {
	opts := minio.PutObjectOptions{UserMetadata: metadata, ContentType: metadata["content_type"]}
	_, err := m.client.PutObject(ctx, m.bucket, key, reader, size, opts)
	return err
}

// ObjectStoreUploader registers files by writing them straight into the
// bucket the registry service reads from; the object key is the upload id.
type ObjectStoreUploader struct {
	store   ObjectStore
	timeout time.Duration
	now     func() time.Time
}

// NewObjectStoreUploader wraps store as an Uploader.
func NewObjectStoreUploader(store ObjectStore, timeout time.Duration) *ObjectStoreUploader {
	if timeout <= 0 {
		timeout = DefaultTimeouts().Upload
	}
	return &ObjectStoreUploader{store: store, timeout: timeout, now: time.Now}
}

// Upload stores the file under a dated, unique key.
func (u *ObjectStoreUploader) Upload(ctx context.Context, file certificate.UploadedFile) (*UploadResult, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	key := fmt.Sprintf("certificates/%s/%s%s",
		u.now().UTC().Format("2006/01/02"),
		uuid.NewString(),
		strings.ToLower(path.Ext(file.Name)),
	)
	metadata := map[string]string{
		"original_filename": file.Name,
		"content_type":      file.MediaType,
	}

	size := int64(len(file.Content))
	if err := u.store.Put(ctx, key, bytes.NewReader(file.Content), size, metadata); err != nil {
		return nil, NewUploadError(transportKind(err), 0, fmt.Errorf("put object: %w", err))
	}
	return &UploadResult{ID: key}, nil
}
