package simpleasset

import (
	"context"
	"io"
	"time"
)

// Repository defines the Metadata Store used by the service.
type Repository interface {
	// CreateAsset inserts a new asset and assigns its ID.
	CreateAsset(ctx context.Context, asset *Asset) error
	GetAsset(ctx context.Context, id AssetID) (*Asset, error)
	// ListExpiredDrafts returns drafts created before q.CreatedBefore with ID > q.AfterID,
	// ordered by ID, at most q.Limit rows.
	ListExpiredDrafts(ctx context.Context, q ExpiredDraftQuery) ([]*Asset, error)
	CountDependents(ctx context.Context, id AssetID) (DependentCounts, error)
	// WasReclaimed reports whether a hard reclaim removed the asset row.
	WasReclaimed(ctx context.Context, id AssetID) (bool, error)
	// WithinTx runs fn in one transaction. A returned error rolls everything back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of writes available inside a Repository transaction.
type Tx interface {
	// LockAsset reads an asset and holds its row lock until the transaction ends.
	LockAsset(ctx context.Context, id AssetID) (*Asset, error)
	UpdateAsset(ctx context.Context, asset *Asset) error
	DeleteCommentLikes(ctx context.Context, id AssetID) (int64, error)
	DeleteComments(ctx context.Context, id AssetID) (int64, error)
	DeleteLikes(ctx context.Context, id AssetID) (int64, error)
	DeleteViews(ctx context.Context, id AssetID) (int64, error)
	// DeleteAsset removes the row and leaves a tombstone for WasReclaimed.
	DeleteAsset(ctx context.Context, id AssetID) error
}

// ExpiredDraftQuery pages through expiry candidates by ID.
type ExpiredDraftQuery struct {
	CreatedBefore time.Time
	AfterID       AssetID
	Limit         int
}

// BlobStore defines the storage of media and thumbnail files.
// Locators are store-relative paths such as /videos/<uuid>.mp4.
type BlobStore interface {
	// Write stores r under locator and returns the number of bytes written.
	Write(ctx context.Context, locator string, r io.Reader) (int64, error)
	// Delete removes a blob. It reports false when the blob was already absent.
	Delete(ctx context.Context, locator string) (bool, error)
	Exists(ctx context.Context, locator string) (bool, error)
	Open(ctx context.Context, locator string) (io.ReadCloser, error)
}

// LocalPathResolver is implemented by blob stores backed by the local filesystem.
// It lets the thumbnail generator read media in place instead of from a temp copy.
type LocalPathResolver interface {
	LocalPath(locator string) (string, error)
}

// ThumbnailGenerator extracts a still frame and technical metadata from a media file.
type ThumbnailGenerator interface {
	ExtractThumbnail(ctx context.Context, mediaPath string) (*Thumbnail, error)
}

// ThumbnailGeneratorFunc adapts a function to ThumbnailGenerator.
type ThumbnailGeneratorFunc func(ctx context.Context, mediaPath string) (*Thumbnail, error)

func (f ThumbnailGeneratorFunc) ExtractThumbnail(ctx context.Context, mediaPath string) (*Thumbnail, error) {
	return f(ctx, mediaPath)
}

// Authorizer is the pass/fail gate applied before a reclaim.
type Authorizer interface {
	CanReclaim(ctx context.Context, p Principal, asset *Asset) bool
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, p Principal, asset *Asset) bool

func (f AuthorizerFunc) CanReclaim(ctx context.Context, p Principal, asset *Asset) bool {
	return f(ctx, p, asset)
}

// OwnerOrAdmin allows the owning channel, administrators and the system principal.
// A channel ID equals its owner's user ID.
var OwnerOrAdmin Authorizer = AuthorizerFunc(func(_ context.Context, p Principal, asset *Asset) bool {
	if p.System || p.Admin {
		return true
	}
	return p.UserID != 0 && ContainerID(p.UserID) == asset.ContainerID
})

// EventSink receives lifecycle events. Errors are logged and never fail the operation.
type EventSink interface {
	DraftCreated(ctx context.Context, asset *Asset) error
	MediaAttached(ctx context.Context, asset *Asset, warning string) error
	ThumbnailReplaced(ctx context.Context, asset *Asset) error
	AssetPublished(ctx context.Context, asset *Asset) error
	// AssetReclaimed follows every reclaim attempt, whatever its outcome.
	AssetReclaimed(ctx context.Context, id AssetID, mode ReclaimMode, result ReclaimResult) error
	SweepCompleted(ctx context.Context, summary SweepSummary) error
}
