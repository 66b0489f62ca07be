package storage

import (
	"context"
	"io"
)

// SentinelKey is the bookkeeping entry that keeps an otherwise empty backend
// root under version control. It never appears in listings, counts, or size
// totals.
const SentinelKey = ".gitkeep"

// Kind selects a backend implementation.
type Kind string

const (
	KindLocal Kind = "local"
	KindS3    Kind = "s3"
)

// Provider is the storage contract shared by all backends. Keys are opaque
// unique identifiers; no operation interprets them.
type Provider interface {
	// Save writes content under key, overwriting any previous content, and
	// returns the stored object's location key.
	Save(ctx context.Context, key string, content []byte) (string, error)

	// Open streams the bytes stored under key. A missing key yields
	// ErrNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object stored under key. A missing key yields
	// ErrNotFound.
	Delete(ctx context.Context, key string) error

	// ResolveURL maps a key to its public location. It performs no I/O and
	// does not check that the object exists.
	ResolveURL(key string) string

	// List enumerates every stored object as a key to byte-size mapping,
	// excluding the sentinel entry. A missing backend root yields
	// ErrNotFound; an empty root yields an empty map.
	List(ctx context.Context) (map[string]int64, error)

	// Count reports the number of stored objects.
	Count(ctx context.Context) (int, error)

	// TotalSize reports the summed byte size of all stored objects.
	TotalSize(ctx context.Context) (int64, error)
}

// S3Config holds the connection settings of an S3-compatible backend. The
// value is fixed at construction and never mutated afterwards.
type S3Config struct {
	EndpointURL     string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Region          string
	CustomDomain    string
}

// Config selects and parameterizes a backend.
type Config struct {
	Kind      Kind
	LocalPath string
	S3        S3Config
}
