package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-asset/pkg/simpleasset"
)

// Schema creates the tables used by the repository. Migrations are managed elsewhere;
// this is applied by tests and local setups.
//
//go:embed schema.sql
var Schema string

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// DB is a DBTX that can open transactions, such as *pgxpool.Pool or *pgx.Conn.
type DB interface {
	DBTX
	Begin(context.Context) (pgx.Tx, error)
}

// Repository implements simpleasset.Repository using PostgreSQL
type Repository struct {
	db DB
}

var _ simpleasset.Repository = (*Repository)(nil)

// New creates a new PostgreSQL repository
func New(db DB) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return handlePostgresError("ensure schema", err)
	}
	return nil
}

// Error handling helper
func handlePostgresError(operation string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return simpleasset.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505": // unique_violation
			return fmt.Errorf("%w: duplicate entry (%s)", simpleasset.ErrInvalidInput, pgErr.ConstraintName)
		case pgErr.Code == "23503": // foreign_key_violation
			return fmt.Errorf("%w: referenced record not found (%s)", simpleasset.ErrInvalidInput, pgErr.ConstraintName)
		case pgErr.Code == "23502": // not_null_violation
			return fmt.Errorf("%w: required field %s is missing", simpleasset.ErrInvalidInput, pgErr.ColumnName)
		case pgErr.Code == "23514": // check_violation
			return fmt.Errorf("%w: value rejected by %s", simpleasset.ErrInvalidInput, pgErr.ConstraintName)
		case pgErr.Code == "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		case pgErr.Code == "40001", pgErr.Code == "40P01", pgErr.Code == "57P01",
			strings.HasPrefix(pgErr.Code, "08"):
			return fmt.Errorf("%w: %s: %s (code: %s)", simpleasset.ErrTransientStore, operation, pgErr.Message, pgErr.Code)
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %s: %v", simpleasset.ErrTransientStore, operation, err)
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

const assetColumns = `id, container_id, title, description, media_locator, thumbnail_locator,
	duration_seconds, resolution, size_bytes, process_status, privacy_status, created_at, updated_at`

func scanAsset(row pgx.Row) (*simpleasset.Asset, error) {
	var a simpleasset.Asset
	var media, thumb *string
	if err := row.Scan(&a.ID, &a.ContainerID, &a.Title, &a.Description, &media, &thumb,
		&a.DurationSeconds, &a.Resolution, &a.SizeBytes, &a.ProcessStatus, &a.PrivacyStatus,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if media != nil {
		a.MediaLocator = *media
	}
	if thumb != nil {
		a.ThumbnailLocator = *thumb
	}
	return &a, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Asset operations

func (r *Repository) CreateAsset(ctx context.Context, asset *simpleasset.Asset) error {
	query := `
		INSERT INTO assets (
			container_id, title, description, media_locator, thumbnail_locator,
			duration_seconds, resolution, size_bytes, process_status, privacy_status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		asset.ContainerID, asset.Title, asset.Description,
		nullable(asset.MediaLocator), nullable(asset.ThumbnailLocator),
		asset.DurationSeconds, asset.Resolution, asset.SizeBytes,
		asset.ProcessStatus, asset.PrivacyStatus, asset.CreatedAt, asset.UpdatedAt,
	).Scan(&asset.ID)
	if err != nil {
		return handlePostgresError("create asset", err)
	}
	return nil
}

func (r *Repository) GetAsset(ctx context.Context, id simpleasset.AssetID) (*simpleasset.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = $1`

	asset, err := scanAsset(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, handlePostgresError("get asset", err)
	}
	return asset, nil
}

func (r *Repository) ListExpiredDrafts(ctx context.Context, q simpleasset.ExpiredDraftQuery) ([]*simpleasset.Asset, error) {
	query := `
		SELECT ` + assetColumns + `
		FROM assets
		WHERE process_status IN ('uploading', 'uploaded')
		  AND created_at < $1
		  AND id > $2
		ORDER BY id
		LIMIT $3`

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, query, q.CreatedBefore, q.AfterID, limit)
	if err != nil {
		return nil, handlePostgresError("list expired drafts", err)
	}
	defer rows.Close()

	var assets []*simpleasset.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, handlePostgresError("scan expired draft", err)
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("list expired drafts", err)
	}
	return assets, nil
}

func (r *Repository) CountDependents(ctx context.Context, id simpleasset.AssetID) (simpleasset.DependentCounts, error) {
	query := `
		SELECT
			(SELECT count(*) FROM comment_likes cl JOIN comments c ON c.id = cl.comment_id WHERE c.asset_id = $1),
			(SELECT count(*) FROM comments WHERE asset_id = $1),
			(SELECT count(*) FROM likes WHERE asset_id = $1),
			(SELECT count(*) FROM views WHERE asset_id = $1)`

	var c simpleasset.DependentCounts
	if err := r.db.QueryRow(ctx, query, id).Scan(&c.CommentLikes, &c.Comments, &c.Likes, &c.Views); err != nil {
		return c, handlePostgresError("count dependents", err)
	}
	return c, nil
}

func (r *Repository) WasReclaimed(ctx context.Context, id simpleasset.AssetID) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reclaimed_assets WHERE asset_id = $1)`, id).Scan(&ok)
	if err != nil {
		return false, handlePostgresError("check reclaimed", err)
	}
	return ok, nil
}

func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx simpleasset.Tx) error) error {
	err := pgx.BeginFunc(ctx, r.db, func(t pgx.Tx) error {
		return fn(ctx, &txRepo{db: t})
	})
	if err == nil {
		return nil
	}
	// Errors from fn are already classified; only wrap driver failures.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) || errors.Is(err, pgx.ErrTxClosed) {
		return handlePostgresError("transaction", err)
	}
	return err
}

// txRepo implements simpleasset.Tx inside a pgx transaction.
type txRepo struct {
	db DBTX
}

func (t *txRepo) LockAsset(ctx context.Context, id simpleasset.AssetID) (*simpleasset.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = $1 FOR UPDATE`

	asset, err := scanAsset(t.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, handlePostgresError("lock asset", err)
	}
	return asset, nil
}

func (t *txRepo) UpdateAsset(ctx context.Context, asset *simpleasset.Asset) error {
	query := `
		UPDATE assets SET
			title = $2, description = $3, media_locator = $4, thumbnail_locator = $5,
			duration_seconds = $6, resolution = $7, size_bytes = $8,
			process_status = $9, privacy_status = $10, updated_at = $11
		WHERE id = $1`

	tag, err := t.db.Exec(ctx, query,
		asset.ID, asset.Title, asset.Description,
		nullable(asset.MediaLocator), nullable(asset.ThumbnailLocator),
		asset.DurationSeconds, asset.Resolution, asset.SizeBytes,
		asset.ProcessStatus, asset.PrivacyStatus, asset.UpdatedAt,
	)
	if err != nil {
		return handlePostgresError("update asset", err)
	}
	if tag.RowsAffected() == 0 {
		return simpleasset.ErrNotFound
	}
	return nil
}

func (t *txRepo) exec(ctx context.Context, operation, query string, id simpleasset.AssetID) (int64, error) {
	tag, err := t.db.Exec(ctx, query, id)
	if err != nil {
		return 0, handlePostgresError(operation, err)
	}
	return tag.RowsAffected(), nil
}

func (t *txRepo) DeleteCommentLikes(ctx context.Context, id simpleasset.AssetID) (int64, error) {
	return t.exec(ctx, "delete comment likes",
		`DELETE FROM comment_likes WHERE comment_id IN (SELECT id FROM comments WHERE asset_id = $1)`, id)
}

// DeleteComments clears reply links first so the self-reference never blocks the delete.
func (t *txRepo) DeleteComments(ctx context.Context, id simpleasset.AssetID) (int64, error) {
	if _, err := t.exec(ctx, "unlink comment replies",
		`UPDATE comments SET parent_id = NULL WHERE asset_id = $1 AND parent_id IS NOT NULL`, id); err != nil {
		return 0, err
	}
	return t.exec(ctx, "delete comments", `DELETE FROM comments WHERE asset_id = $1`, id)
}

func (t *txRepo) DeleteLikes(ctx context.Context, id simpleasset.AssetID) (int64, error) {
	return t.exec(ctx, "delete likes", `DELETE FROM likes WHERE asset_id = $1`, id)
}

func (t *txRepo) DeleteViews(ctx context.Context, id simpleasset.AssetID) (int64, error) {
	return t.exec(ctx, "delete views", `DELETE FROM views WHERE asset_id = $1`, id)
}

func (t *txRepo) DeleteAsset(ctx context.Context, id simpleasset.AssetID) error {
	n, err := t.exec(ctx, "delete asset", `DELETE FROM assets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return simpleasset.ErrNotFound
	}
	_, err = t.exec(ctx, "record reclaimed asset",
		`INSERT INTO reclaimed_assets (asset_id) VALUES ($1) ON CONFLICT (asset_id) DO NOTHING`, id)
	return err
}
