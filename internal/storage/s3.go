package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// contentType is the single MIME type every hosted object is stored with.
const contentType = "image/png"

// S3 talks to an S3-compatible object store. Every operation builds a fresh
// client from the immutable configuration, so no connection state outlives a
// single call.
type S3 struct {
	cfg S3Config
}

// NewS3 returns an S3 backend for cfg. The connection settings are fixed for
// the backend's lifetime.
func NewS3(cfg S3Config) *S3 {
	return &S3{cfg: cfg}
}

func (s *S3) newClient() (*minio.Client, error) {
	host, secure, err := endpointHost(s.cfg.EndpointURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(s.cfg.AccessKeyID, s.cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: s.cfg.Region,
	})
	if err != nil {
		return nil, backendErr("connect", err)
	}
	return client, nil
}

// endpointHost reduces an endpoint URL to the host:port form the client
// expects, reporting whether the scheme asks for TLS.
func endpointHost(endpoint string) (string, bool, error) {
	if endpoint == "" {
		return "", false, fmt.Errorf("endpoint cannot be empty")
	}

	// Bare host:port is accepted as-is and assumed to be TLS.
	if !strings.Contains(endpoint, "://") {
		if strings.Contains(endpoint, "/") {
			return "", false, fmt.Errorf("endpoint contains a path but no scheme")
		}
		return endpoint, true, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("parse endpoint URL: %w", err)
	}
	if u.Path != "" && u.Path != "/" {
		return "", false, fmt.Errorf("endpoint URL cannot carry a path (got %q)", u.Path)
	}
	return u.Host, u.Scheme == "https", nil
}

// Save uploads content under key. Re-saving a key overwrites the object, so
// retrying a put is safe.
func (s *S3) Save(ctx context.Context, key string, content []byte) (string, error) {
	client, err := s.newClient()
	if err != nil {
		return "", err
	}

	_, err = client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", backendErr("save "+key, err)
	}
	return key, nil
}

// Open streams the object stored under key.
func (s *S3) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	client, err := s.newClient()
	if err != nil {
		return nil, err
	}

	obj, err := client.GetObject(ctx, s.cfg.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateRemote("open "+key, err)
	}
	// GetObject defers the request; Stat forces it so a missing key
	// surfaces here rather than on the first read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, translateRemote("open "+key, err)
	}
	return obj, nil
}

// Delete removes the object stored under key.
func (s *S3) Delete(ctx context.Context, key string) error {
	client, err := s.newClient()
	if err != nil {
		return err
	}

	// Removing an absent key succeeds on S3, so check existence first to
	// keep delete-of-missing observable.
	if _, err := client.StatObject(ctx, s.cfg.Bucket, key, minio.StatObjectOptions{}); err != nil {
		return translateRemote("delete "+key, err)
	}
	if err := client.RemoveObject(ctx, s.cfg.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return translateRemote("delete "+key, err)
	}
	return nil
}

// ResolveURL maps key to its public URL without touching the network. A
// custom domain wins, then the configured endpoint in path style, then the
// canonical AWS virtual-hosted form.
func (s *S3) ResolveURL(key string) string {
	if s.cfg.CustomDomain != "" {
		return strings.TrimRight(s.cfg.CustomDomain, "/") + "/" + key
	}
	if s.cfg.EndpointURL != "" {
		return strings.TrimRight(s.cfg.EndpointURL, "/") + "/" + s.cfg.Bucket + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}

// List enumerates the bucket once, mapping each key to its size. Pagination
// is handled inside the client; the sentinel entry is skipped.
func (s *S3) List(ctx context.Context) (map[string]int64, error) {
	client, err := s.newClient()
	if err != nil {
		return nil, err
	}

	objects := make(map[string]int64)
	for obj := range client.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, translateRemote("list", obj.Err)
		}
		if obj.Key == SentinelKey {
			continue
		}
		objects[obj.Key] = obj.Size
	}
	return objects, nil
}

// Count reports the number of stored objects.
func (s *S3) Count(ctx context.Context) (int, error) {
	objects, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(objects), nil
}

// TotalSize reports the summed size of all stored objects.
func (s *S3) TotalSize(ctx context.Context) (int64, error) {
	objects, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, size := range objects {
		total += size
	}
	return total, nil
}

// translateRemote maps a remote failure onto the storage taxonomy: missing
// keys and buckets become ErrNotFound, everything else keeps the remote
// detail inside a BackendError.
func translateRemote(op string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket":
		return ErrNotFound
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return backendErr(op, err)
}
