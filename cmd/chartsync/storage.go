package main

import (
	"os"

	"github.com/vango-dev/chartsync/internal/config"
	"github.com/vango-dev/chartsync/internal/errors"
	"github.com/vango-dev/chartsync/pkg/pref"
)

// openStorage builds the preference backend named by the storage section.
// S3 credentials come from the standard AWS environment variables.
func openStorage(cfg *config.Config) (pref.Storage, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return pref.NewMemoryStorage(), nil

	case config.BackendFile:
		return pref.NewFileStorage(cfg.StoragePath()), nil

	case config.BackendS3:
		region := cfg.Storage.Region
		if region == "" {
			region = os.Getenv("AWS_REGION")
		}
		if region == "" {
			return nil, errors.New("E201").
				WithDetail("no region for the s3 backend").
				WithSuggestion("Set storage.region or AWS_REGION.")
		}
		client := pref.NewS3Client(pref.S3ClientConfig{
			Region:          region,
			Endpoint:        cfg.Storage.Endpoint,
			UsePathStyle:    cfg.Storage.UsePathStyle,
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		})
		return pref.NewS3Storage(client, cfg.Storage.Bucket, cfg.Storage.Prefix), nil

	default:
		return nil, errors.New("E104").WithDetail("backend " + cfg.Storage.Backend)
	}
}
