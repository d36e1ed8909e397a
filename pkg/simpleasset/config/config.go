package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/simple-asset/pkg/simpleasset"
	"github.com/tendant/simple-asset/pkg/simpleasset/repo/memory"
	repopg "github.com/tendant/simple-asset/pkg/simpleasset/repo/postgres"
	fsstorage "github.com/tendant/simple-asset/pkg/simpleasset/storage/fs"
	memorystorage "github.com/tendant/simple-asset/pkg/simpleasset/storage/memory"
	miniostorage "github.com/tendant/simple-asset/pkg/simpleasset/storage/minio"
	s3storage "github.com/tendant/simple-asset/pkg/simpleasset/storage/s3"
	"github.com/tendant/simple-asset/pkg/simpleasset/sweeper"
	"github.com/tendant/simple-asset/pkg/simpleasset/sweeper/redislock"
	"github.com/tendant/simple-asset/pkg/simpleasset/thumbnail"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		HTTPAddr:              ":8080",
		DatabaseType:          "memory",
		DBSchema:              "asset",
		StorageBackend:        "memory",
		FSBaseDir:             "./data/storage",
		S3:                    S3Config{Region: "us-east-1"},
		MaxUploadBytes:        simpleasset.DefaultMaxUploadBytes,
		MaxThumbnailBytes:     simpleasset.DefaultMaxThumbnailBytes,
		AllowedThumbnailTypes: append([]string(nil), simpleasset.DefaultThumbnailTypes...),
		Sweep: SweepConfig{
			Enabled:     true,
			Interval:    10 * time.Minute,
			Retention:   24 * time.Hour,
			BatchSize:   100,
			Concurrency: 1,
		},
		FFmpegPath:         "ffmpeg",
		FFprobePath:        "ffprobe",
		ThumbnailTimeout:   30 * time.Second,
		ThumbnailMaxWidth:  1280,
		ThumbnailMaxPixels: thumbnail.DefaultMaxPixels,
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// ServerConfig represents the configuration of the asset server.
// Field tags are read by cleanenv; see WithEnv.
type ServerConfig struct {
	HTTPAddr string `env:"HTTP_ADDR" env-default:":8080"`

	// Metadata store
	DatabaseType  string `env:"DATABASE_TYPE" env-default:"memory"` // "memory", "postgres"
	DatabaseURL   string `env:"DATABASE_URL"`
	DBSchema      string `env:"DB_SCHEMA" env-default:"asset"`
	DBApplySchema bool   `env:"DB_APPLY_SCHEMA"` // create missing tables at startup

	// Blob store
	StorageBackend string      `env:"STORAGE_BACKEND" env-default:"memory"` // "memory", "fs", "s3", "minio"
	FSBaseDir      string      `env:"FS_BASE_DIR" env-default:"./data/storage"`
	S3             S3Config    `env-prefix:"S3_"`
	Minio          MinioConfig `env-prefix:"MINIO_"`

	// Upload limits
	MaxUploadBytes        int64    `env:"MAX_UPLOAD_BYTES" env-default:"524288000"`
	MaxThumbnailBytes     int64    `env:"MAX_THUMBNAIL_BYTES" env-default:"2097152"`
	AllowedThumbnailTypes []string `env:"ALLOWED_THUMBNAIL_TYPES" env-separator:"," env-default:"image/jpeg,image/png"`

	Sweep     SweepConfig
	RedisAddr string `env:"REDIS_ADDR"`

	// Thumbnail generation
	FFmpegPath         string        `env:"FFMPEG_PATH" env-default:"ffmpeg"`
	FFprobePath        string        `env:"FFPROBE_PATH" env-default:"ffprobe"`
	ThumbnailTimeout   time.Duration `env:"THUMBNAIL_TIMEOUT" env-default:"30s"`
	ThumbnailMaxWidth  int           `env:"THUMBNAIL_MAX_WIDTH" env-default:"1280"`
	ThumbnailMaxPixels int64         `env:"THUMBNAIL_MAX_PIXELS" env-default:"40000000"`

	// Request layer
	JWTSecret         string `env:"JWT_SECRET"`
	AdminAPIKeySHA256 string `env:"ADMIN_API_KEY_SHA256"`

	LogLevel  string `env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `env:"LOG_FORMAT" env-default:"text"` // "text", "json"
}

// S3Config configures the s3 blob store.
type S3Config struct {
	Region          string `env:"REGION" env-default:"us-east-1"`
	Bucket          string `env:"BUCKET"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	Endpoint        string `env:"ENDPOINT"`
	UsePathStyle    bool   `env:"USE_PATH_STYLE"`
	KeyPrefix       string `env:"KEY_PREFIX"`
	CreateBucket    bool   `env:"CREATE_BUCKET"`
}

// MinioConfig configures the minio blob store.
type MinioConfig struct {
	Endpoint        string `env:"ENDPOINT"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	Bucket          string `env:"BUCKET"`
	Region          string `env:"REGION"`
	UseSSL          bool   `env:"USE_SSL"`
	CreateBucket    bool   `env:"CREATE_BUCKET"`
}

// SweepConfig configures the expiry sweeper.
type SweepConfig struct {
	Enabled     bool          `env:"SWEEP_ENABLED" env-default:"true"`
	Interval    time.Duration `env:"SWEEP_INTERVAL" env-default:"10m"`
	Retention   time.Duration `env:"DRAFT_RETENTION" env-default:"24h"`
	BatchSize   int           `env:"SWEEP_BATCH_SIZE" env-default:"100"`
	Concurrency int           `env:"SWEEP_CONCURRENCY" env-default:"1"`
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("http address is required")
	}

	switch c.DatabaseType {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("database_url is required when using postgres")
		}
	default:
		return errors.New("database_type must be 'memory' or 'postgres'")
	}

	switch c.StorageBackend {
	case "memory":
	case "fs":
		if c.FSBaseDir == "" {
			return errors.New("fs_base_dir is required for fs storage")
		}
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("s3 bucket is required for s3 storage")
		}
	case "minio":
		if c.Minio.Endpoint == "" || c.Minio.Bucket == "" {
			return errors.New("minio endpoint and bucket are required for minio storage")
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s", c.StorageBackend)
	}

	if c.MaxUploadBytes <= 0 {
		return errors.New("max upload bytes must be positive")
	}
	if c.MaxThumbnailBytes <= 0 {
		return errors.New("max thumbnail bytes must be positive")
	}
	if len(c.AllowedThumbnailTypes) == 0 {
		return errors.New("at least one thumbnail content type must be allowed")
	}
	if c.ThumbnailMaxPixels <= 0 {
		return errors.New("thumbnail max pixels must be positive")
	}

	if c.Sweep.Enabled {
		if c.Sweep.Interval <= 0 {
			return errors.New("sweep interval must be positive")
		}
		if c.Sweep.Retention <= 0 {
			return errors.New("draft retention must be positive")
		}
		if c.Sweep.BatchSize <= 0 || c.Sweep.Concurrency <= 0 {
			return errors.New("sweep batch size and concurrency must be positive")
		}
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log format must be 'text' or 'json', got %q", c.LogFormat)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLogLevel maps debug, info, warn and error to slog levels.
func ParseLogLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return l, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

// BuildService creates a Service from the configuration. The returned cleanup
// releases the database pool, if any.
func (c *ServerConfig) BuildService(ctx context.Context, extra ...simpleasset.Option) (simpleasset.Service, func(), error) {
	repo, closeRepo, err := c.buildRepository(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build repository: %w", err)
	}

	store, err := c.buildStorageBackend(ctx)
	if err != nil {
		closeRepo()
		return nil, nil, fmt.Errorf("failed to build storage backend %s: %w", c.StorageBackend, err)
	}

	options := []simpleasset.Option{
		simpleasset.WithRepository(repo),
		simpleasset.WithBlobStore(store),
		simpleasset.WithThumbnailGenerator(c.buildThumbnailGenerator()),
		simpleasset.WithMaxUploadSize(c.MaxUploadBytes),
		simpleasset.WithMaxThumbnailSize(c.MaxThumbnailBytes),
		simpleasset.WithAllowedThumbnailTypes(c.AllowedThumbnailTypes...),
	}
	options = append(options, extra...)

	svc, err := simpleasset.New(options...)
	if err != nil {
		closeRepo()
		return nil, nil, err
	}
	return svc, closeRepo, nil
}

// BuildSweeper creates the expiry sweeper for svc. When RedisAddr is set the sweep
// is guarded by a Redis lock; the returned cleanup closes that client.
func (c *ServerConfig) BuildSweeper(ctx context.Context, svc simpleasset.Service, extra ...sweeper.Option) (*sweeper.Sweeper, func(), error) {
	options := []sweeper.Option{
		sweeper.WithConfig(sweeper.Config{
			Interval:    c.Sweep.Interval,
			Retention:   c.Sweep.Retention,
			BatchSize:   c.Sweep.BatchSize,
			Concurrency: c.Sweep.Concurrency,
		}),
	}
	cleanup := func() {}

	if c.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping failed: %w", err)
		}
		lock, err := redislock.New(client, redislock.WithTTL(c.Sweep.Interval))
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		options = append(options, sweeper.WithLocker(lock))
		cleanup = func() { _ = client.Close() }
	}
	options = append(options, extra...)

	sw, err := sweeper.New(svc, options...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return sw, cleanup, nil
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context) (simpleasset.Repository, func(), error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), func() {}, nil
	case "postgres":
		pool, err := NewPool(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, nil, err
		}
		if c.DBApplySchema {
			if err := repopg.EnsureSchema(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("failed to apply schema: %w", err)
			}
		}
		return repopg.NewWithPool(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// NewPool opens a pgx pool whose sessions use schema as search_path, and pings it.
func NewPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("database_url is required")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

// buildStorageBackend creates a BlobStore based on the configuration
func (c *ServerConfig) buildStorageBackend(ctx context.Context) (simpleasset.BlobStore, error) {
	switch c.StorageBackend {
	case "memory":
		return memorystorage.New(), nil
	case "fs":
		return fsstorage.New(fsstorage.Config{BaseDir: c.FSBaseDir})
	case "s3":
		return s3storage.New(s3storage.Config{
			Region:                 c.S3.Region,
			Bucket:                 c.S3.Bucket,
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               c.S3.Endpoint,
			UsePathStyle:           c.S3.UsePathStyle,
			KeyPrefix:              c.S3.KeyPrefix,
			CreateBucketIfNotExist: c.S3.CreateBucket,
		})
	case "minio":
		return miniostorage.New(ctx, miniostorage.Config{
			Endpoint:               c.Minio.Endpoint,
			AccessKeyID:            c.Minio.AccessKeyID,
			SecretAccessKey:        c.Minio.SecretAccessKey,
			Bucket:                 c.Minio.Bucket,
			Region:                 c.Minio.Region,
			UseSSL:                 c.Minio.UseSSL,
			CreateBucketIfNotExist: c.Minio.CreateBucket,
		})
	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", c.StorageBackend)
	}
}

func (c *ServerConfig) buildThumbnailGenerator() simpleasset.ThumbnailGenerator {
	return thumbnail.NewRouter(
		thumbnail.NewFFmpeg(c.FFmpegPath, c.FFprobePath, c.ThumbnailTimeout),
		thumbnail.NewImage(c.ThumbnailMaxWidth, c.ThumbnailMaxPixels),
	)
}
