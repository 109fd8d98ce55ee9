package archive

import (
	"context"
	"fmt"

	"github.com/s1ren-78/beiduoduo/internal/config"
	"github.com/s1ren-78/beiduoduo/internal/mirror"
)

// NewArchiveFromConfig creates an Archive implementation based on the
// archive config type. A "none" or empty type disables archiving.
func NewArchiveFromConfig(cfg config.ArchiveConfig, enc mirror.Encryptor) (mirror.Archive, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryArchive(), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem archive requires fs_root to be set")
		}
		return NewFileSystemArchive(cfg.FSRoot, enc)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 archive requires s3_bucket to be set")
		}
		return NewS3Archive(context.Background(), S3Options{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		}, enc)
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
}
