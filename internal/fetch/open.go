package fetch

import (
	"context"
	"fmt"
	"log/slog"

	"allenpipe/internal/config"
	"allenpipe/internal/fetch/release"
	"allenpipe/internal/fetch/warehouse"
	"allenpipe/internal/logging"
	"allenpipe/internal/services"
)

// Open builds the metadata source selected by cfg.Source. Callers should
// Close the result when it implements Closer.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (API, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "fetch", "open", "config is nil", nil)
	}
	switch cfg.Source.Driver {
	case config.SourceRelease:
		bucket, err := openBucket(ctx, cfg.Source.Release)
		if err != nil {
			return nil, err
		}
		logging.NewComponentLogger(logger, "fetch").Debug("release source ready", logging.String("location", bucket.Location()))
		return release.New(bucket, logger), nil
	case config.SourceWarehouse:
		store, err := warehouse.Open(ctx, cfg.Source.Warehouse.Driver, cfg.Source.Warehouse.DSN, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "fetch", "open", fmt.Sprintf("unsupported source driver %q", cfg.Source.Driver), nil)
	}
}

func openBucket(ctx context.Context, rel config.Release) (release.Bucket, error) {
	if rel.Root != "" {
		return release.NewDirBucket(rel.Root), nil
	}
	return release.NewS3Bucket(ctx, release.S3Options{
		Bucket:          rel.Bucket,
		Prefix:          rel.Prefix,
		Region:          rel.Region,
		Endpoint:        rel.Endpoint,
		PathStyle:       rel.PathStyle,
		AccessKeyID:     rel.AccessKeyID,
		SecretAccessKey: rel.SecretAccessKey,
	})
}

// CloseSource closes src when it holds resources.
func CloseSource(src API) error {
	if closer, ok := src.(Closer); ok {
		return closer.Close()
	}
	return nil
}
