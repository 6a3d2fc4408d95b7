package clientstore

import (
	"fmt"
	"log/slog"
)

// Config selects and configures a backend.
type Config struct {
	// Backend is "memory", "sql" or "s3". Empty means "memory".
	Backend string

	// SQL backend.
	Driver string
	DSN    string
	Table  string

	// S3 backend.
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	PathStyle bool
}

// Open creates the store described by cfg.
func Open(cfg Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil

	case "sql":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("clientstore: sql backend requires a dsn")
		}
		opts := []SQLStoreOption{WithSQLLogger(logger)}
		if cfg.Table != "" {
			opts = append(opts, WithSQLTableName(cfg.Table))
		}
		return OpenSQL(cfg.Driver, cfg.DSN, opts...)

	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("clientstore: s3 backend requires a bucket")
		}
		client := NewS3Client(S3Options{
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			PathStyle: cfg.PathStyle,
		})
		return NewS3Store(client, cfg.Bucket, cfg.Prefix), nil

	default:
		return nil, fmt.Errorf("clientstore: unknown backend %q", cfg.Backend)
	}
}
