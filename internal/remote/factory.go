package remote

import (
	"fmt"

	"snapsync/internal/config"
	"snapsync/internal/snap"
)

// NewConnectorFromConfig creates the Connector selected by cfg.Type.
func NewConnectorFromConfig(cfg config.RemoteConfig, clock snap.Clock, ids snap.IDGenerator) (snap.Connector, error) {
	switch cfg.Type {
	case "gdrive":
		return NewGDriveConnector(cfg.GDriveFolderID, cfg.GDriveChunkSize), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 remote requires s3_bucket to be set")
		}
		return NewS3Connector(cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region, cfg.S3Endpoint), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem remote requires fs_root to be set")
		}
		store, err := NewFileSystemStore(cfg.FSRoot, clock, ids)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown remote type: %s", cfg.Type)
	}
}
