package persist

import (
	"context"
	"fmt"

	"gridroom/internal/configs"
)

// Open returns the backend selected by cfg.PersistenceBackend.
func Open(ctx context.Context, cfg *configs.AppConfig) (Store, error) {
	switch cfg.PersistenceBackend {
	case "", configs.BackendMemory:
		return NewMemory(), nil

	case configs.BackendPostgres:
		return NewPostgres(ctx, cfg.DatabaseDSN)

	case configs.BackendS3:
		return NewS3(ctx, S3Config{
			Bucket:          cfg.S3BucketName,
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Key:             cfg.S3ObjectKey,
		})
	}
	return nil, fmt.Errorf("unknown persistence backend %q", cfg.PersistenceBackend)
}
