package storage

import "fmt"

// New selects and constructs the configured backend. Object-store settings
// are checked here so that a bad deployment fails before any I/O happens.
func New(cfg Config) (Provider, error) {
	switch cfg.Kind {
	case KindLocal:
		if cfg.LocalPath == "" {
			return nil, fmt.Errorf("%w: local storage requires a root directory", ErrConfig)
		}
		return NewLocal(cfg.LocalPath), nil

	case KindS3:
		s3 := cfg.S3
		if s3.EndpointURL == "" || s3.AccessKeyID == "" || s3.SecretAccessKey == "" || s3.Bucket == "" {
			return nil, fmt.Errorf("%w: s3 storage requires endpoint, access key id, secret access key, and bucket name", ErrConfig)
		}
		if s3.Region == "" {
			s3.Region = "auto"
		}
		return NewS3(s3), nil

	default:
		return nil, fmt.Errorf("%w: unknown storage kind %q", ErrConfig, cfg.Kind)
	}
}
