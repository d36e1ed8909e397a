package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// WithEnv reads configuration from environment variables through cleanenv.
// Unset variables fall back to their env-default tag.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("read environment: %w", err)
		}
		return nil
	}
}

// WithHTTPAddr sets the listen address.
func WithHTTPAddr(addr string) Option {
	return func(c *ServerConfig) error {
		if addr == "" {
			return errors.New("http address cannot be empty")
		}
		c.HTTPAddr = addr
		return nil
	}
}

// WithDatabase sets the metadata store type and connection URL.
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the Postgres search_path schema.
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithMemoryStorage stores blobs in process memory.
func WithMemoryStorage() Option {
	return func(c *ServerConfig) error {
		c.StorageBackend = "memory"
		return nil
	}
}

// WithFilesystemStorage stores blobs under baseDir.
func WithFilesystemStorage(baseDir string) Option {
	return func(c *ServerConfig) error {
		c.StorageBackend = "fs"
		c.FSBaseDir = baseDir
		return nil
	}
}

// WithS3Storage stores blobs in an S3 bucket.
func WithS3Storage(s3 S3Config) Option {
	return func(c *ServerConfig) error {
		c.StorageBackend = "s3"
		c.S3 = s3
		return nil
	}
}

// WithMinioStorage stores blobs in a MinIO bucket.
func WithMinioStorage(m MinioConfig) Option {
	return func(c *ServerConfig) error {
		c.StorageBackend = "minio"
		c.Minio = m
		return nil
	}
}

// WithUploadLimits sets the media and thumbnail size ceilings.
func WithUploadLimits(maxUpload, maxThumbnail int64) Option {
	return func(c *ServerConfig) error {
		c.MaxUploadBytes = maxUpload
		c.MaxThumbnailBytes = maxThumbnail
		return nil
	}
}

// WithAllowedThumbnailTypes replaces the accepted thumbnail content types.
func WithAllowedThumbnailTypes(types ...string) Option {
	return func(c *ServerConfig) error {
		c.AllowedThumbnailTypes = types
		return nil
	}
}

// WithSweep sets the sweep interval and draft retention window.
func WithSweep(interval, retention time.Duration) Option {
	return func(c *ServerConfig) error {
		c.Sweep.Enabled = true
		c.Sweep.Interval = interval
		c.Sweep.Retention = retention
		return nil
	}
}

// WithoutSweep disables the background sweeper.
func WithoutSweep() Option {
	return func(c *ServerConfig) error {
		c.Sweep.Enabled = false
		return nil
	}
}

// WithRedisLock guards sweeps with a lock in the Redis server at addr.
func WithRedisLock(addr string) Option {
	return func(c *ServerConfig) error {
		c.RedisAddr = addr
		return nil
	}
}
