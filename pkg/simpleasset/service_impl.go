package simpleasset

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const (
	DefaultMaxUploadBytes    int64 = 500 << 20
	DefaultMaxThumbnailBytes int64 = 2 << 20
	defaultListLimit               = 100
	sniffLen                       = 3072
)

// DefaultThumbnailTypes are the raster formats accepted by ReplaceThumbnail.
var DefaultThumbnailTypes = []string{"image/jpeg", "image/png"}

// service implements the Service interface
type service struct {
	repository Repository
	blobStore  BlobStore
	thumbnails ThumbnailGenerator
	authorizer Authorizer
	eventSink  EventSink
	logger     *slog.Logger
	now        func() time.Time
	newName    func() string

	maxUploadBytes    int64
	maxThumbnailBytes int64
	thumbnailTypes    map[string]bool
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the blob store holding media and thumbnails
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithThumbnailGenerator sets the generator invoked after each media upload
func WithThumbnailGenerator(gen ThumbnailGenerator) Option {
	return func(s *service) {
		s.thumbnails = gen
	}
}

// WithAuthorizer sets the gate applied before a reclaim
func WithAuthorizer(a Authorizer) Option {
	return func(s *service) {
		s.authorizer = a
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithLogger sets the logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// WithMaxUploadSize sets the media size ceiling in bytes
func WithMaxUploadSize(n int64) Option {
	return func(s *service) {
		s.maxUploadBytes = n
	}
}

// WithMaxThumbnailSize sets the thumbnail size ceiling in bytes
func WithMaxThumbnailSize(n int64) Option {
	return func(s *service) {
		s.maxThumbnailBytes = n
	}
}

// WithAllowedThumbnailTypes replaces the accepted thumbnail content types
func WithAllowedThumbnailTypes(types ...string) Option {
	return func(s *service) {
		s.thumbnailTypes = make(map[string]bool, len(types))
		for _, t := range types {
			s.thumbnailTypes[NormalizeContentType(t)] = true
		}
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		authorizer:        OwnerOrAdmin,
		eventSink:         NewNoopEventSink(),
		now:               func() time.Time { return time.Now().UTC() },
		newName:           uuid.NewString,
		maxUploadBytes:    DefaultMaxUploadBytes,
		maxThumbnailBytes: DefaultMaxThumbnailBytes,
	}
	WithAllowedThumbnailTypes(DefaultThumbnailTypes...)(s)

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.maxUploadBytes <= 0 || s.maxThumbnailBytes <= 0 {
		return nil, fmt.Errorf("size limits must be positive")
	}
	if len(s.thumbnailTypes) == 0 {
		return nil, fmt.Errorf("at least one thumbnail content type is required")
	}

	return s, nil
}

// Lifecycle operations

func (s *service) CreateDraft(ctx context.Context, containerID ContainerID) (AssetID, error) {
	now := s.now()
	asset := &Asset{
		ContainerID:   containerID,
		ProcessStatus: StatusUploading,
		PrivacyStatus: PrivacyPrivate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repository.CreateAsset(ctx, asset); err != nil {
		return 0, &AssetError{Op: "create_draft", Err: err}
	}

	s.emit(ctx, "draft_created", s.eventSink.DraftCreated(ctx, asset))
	return asset.ID, nil
}

func (s *service) AttachMedia(ctx context.Context, req AttachMediaRequest) (*AttachMediaResult, error) {
	if req.Body == nil || req.DeclaredSize <= 0 {
		return nil, fmt.Errorf("%w: a non-empty body with a declared size is required", ErrInvalidInput)
	}
	if req.DeclaredSize > s.maxUploadBytes {
		return nil, fmt.Errorf("%w: declared size %d exceeds %d bytes", ErrPayloadTooLarge, req.DeclaredSize, s.maxUploadBytes)
	}

	asset, err := s.repository.GetAsset(ctx, req.AssetID)
	if err != nil {
		return nil, &AssetError{AssetID: req.AssetID, Op: "attach_media", Err: err}
	}
	if _, err := canAttachMedia(asset.ProcessStatus); err != nil {
		return nil, &AssetError{AssetID: req.AssetID, Op: "attach_media", Err: err}
	}

	br := bufio.NewReaderSize(req.Body, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, &AssetError{AssetID: req.AssetID, Op: "attach_media", Err: err}
	}
	mediaLocator := MediaPrefix + s.newName() + mediaExtension(head, req.FileName)

	written, err := s.blobStore.Write(ctx, mediaLocator, io.LimitReader(br, req.DeclaredSize+1))
	if err != nil {
		s.discard(ctx, mediaLocator)
		return nil, &AssetError{AssetID: req.AssetID, Op: "attach_media",
			Err: &StorageError{Locator: mediaLocator, Op: "write", Err: err}}
	}
	if written > req.DeclaredSize {
		s.discard(ctx, mediaLocator)
		return nil, fmt.Errorf("%w: body is larger than the declared %d bytes", ErrPayloadTooLarge, req.DeclaredSize)
	}

	thumb, warning := s.generateThumbnail(ctx, asset.ID, mediaLocator)
	thumbLocator := ""
	if thumb != nil {
		thumbLocator = ThumbnailPrefix + s.newName() + imageExtension(thumb.ContentType, thumb.Image)
		if _, err := s.blobStore.Write(ctx, thumbLocator, bytes.NewReader(thumb.Image)); err != nil {
			s.discard(ctx, thumbLocator)
			warning = fmt.Sprintf("thumbnail could not be stored: %v", err)
			thumbLocator = ""
		}
	}

	var previous [2]string
	var updated *Asset
	err = s.repository.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		locked, err := tx.LockAsset(ctx, req.AssetID)
		if err != nil {
			return err
		}
		if _, err := canAttachMedia(locked.ProcessStatus); err != nil {
			return err
		}
		previous = [2]string{locked.MediaLocator, locked.ThumbnailLocator}

		locked.MediaLocator = mediaLocator
		locked.ThumbnailLocator = thumbLocator
		locked.SizeBytes = written
		locked.DurationSeconds = 0
		locked.Resolution = ""
		if thumbLocator != "" {
			locked.DurationSeconds = int(thumb.Duration / time.Second)
			locked.Resolution = thumb.Resolution()
		}
		locked.ProcessStatus = StatusUploaded
		locked.UpdatedAt = s.now()
		if err := tx.UpdateAsset(ctx, locked); err != nil {
			return err
		}
		updated = locked
		return nil
	})
	if err != nil {
		s.discard(ctx, mediaLocator)
		if thumbLocator != "" {
			s.discard(ctx, thumbLocator)
		}
		return nil, &AssetError{AssetID: req.AssetID, Op: "attach_media", Err: err}
	}

	// Re-upload of a draft: the old files are no longer referenced.
	for _, loc := range previous {
		if loc != "" {
			s.discard(ctx, loc)
		}
	}

	if warning != "" {
		s.logger.WarnContext(ctx, "media attached without thumbnail", "asset_id", updated.ID, "warning", warning)
	}
	s.emit(ctx, "media_attached", s.eventSink.MediaAttached(ctx, updated, warning))

	return &AttachMediaResult{
		Asset:            updated,
		MediaLocator:     updated.MediaLocator,
		ThumbnailLocator: updated.ThumbnailLocator,
		Metadata: TechnicalMetadata{
			DurationSeconds: updated.DurationSeconds,
			Resolution:      updated.Resolution,
			SizeBytes:       updated.SizeBytes,
		},
		Warning: warning,
	}, nil
}

func (s *service) UpdateMetadata(ctx context.Context, req UpdateMetadataRequest) (*Asset, error) {
	if req.Privacy != nil {
		if _, err := ParsePrivacyStatus(string(*req.Privacy)); err != nil {
			return nil, err
		}
	}

	var updated *Asset
	err := s.repository.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		asset, err := tx.LockAsset(ctx, req.AssetID)
		if err != nil {
			return err
		}
		if _, err := canEdit(asset.ProcessStatus); err != nil {
			return err
		}
		if req.Title != nil {
			asset.Title = *req.Title
		}
		if req.Description != nil {
			asset.Description = *req.Description
		}
		if req.Privacy != nil {
			asset.PrivacyStatus = *req.Privacy
		}
		asset.UpdatedAt = s.now()
		if err := tx.UpdateAsset(ctx, asset); err != nil {
			return err
		}
		updated = asset
		return nil
	})
	if err != nil {
		return nil, &AssetError{AssetID: req.AssetID, Op: "update_metadata", Err: err}
	}
	return updated, nil
}

func (s *service) ReplaceThumbnail(ctx context.Context, req ReplaceThumbnailRequest) (string, error) {
	if len(req.Image) == 0 {
		return "", fmt.Errorf("%w: thumbnail image is empty", ErrInvalidInput)
	}
	if int64(len(req.Image)) > s.maxThumbnailBytes {
		return "", fmt.Errorf("%w: thumbnail is %d bytes, limit is %d", ErrPayloadTooLarge, len(req.Image), s.maxThumbnailBytes)
	}
	contentType := NormalizeContentType(mimetype.Detect(req.Image).String())
	if !s.thumbnailTypes[contentType] {
		return "", fmt.Errorf("%w: %s is not an accepted thumbnail type", ErrUnsupportedMediaType, contentType)
	}

	locator := ThumbnailPrefix + s.newName() + imageExtension(contentType, req.Image)
	var updated *Asset
	var writeErr error
	err := s.repository.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		asset, err := tx.LockAsset(ctx, req.AssetID)
		if err != nil {
			return err
		}
		if _, err := canEdit(asset.ProcessStatus); err != nil {
			return err
		}
		if asset.ThumbnailLocator != "" {
			s.discard(ctx, asset.ThumbnailLocator)
		}
		asset.ThumbnailLocator = locator
		if _, err := s.blobStore.Write(ctx, locator, bytes.NewReader(req.Image)); err != nil {
			// The old file is already gone; commit the row without a thumbnail.
			writeErr = &StorageError{Locator: locator, Op: "write", Err: err}
			asset.ThumbnailLocator = ""
		}
		asset.UpdatedAt = s.now()
		if err := tx.UpdateAsset(ctx, asset); err != nil {
			return err
		}
		updated = asset
		return nil
	})
	if err == nil {
		err = writeErr
	}
	if err != nil {
		s.discard(ctx, locator)
		return "", &AssetError{AssetID: req.AssetID, Op: "replace_thumbnail", Err: err}
	}

	s.emit(ctx, "thumbnail_replaced", s.eventSink.ThumbnailReplaced(ctx, updated))
	return locator, nil
}

func (s *service) Publish(ctx context.Context, id AssetID) error {
	var published *Asset
	err := s.repository.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		asset, err := tx.LockAsset(ctx, id)
		if err != nil {
			return err
		}
		if _, err := canPublish(asset.ProcessStatus); err != nil {
			return err
		}
		if asset.ProcessStatus == StatusPublished {
			return nil
		}
		asset.ProcessStatus = StatusPublished
		asset.UpdatedAt = s.now()
		if err := tx.UpdateAsset(ctx, asset); err != nil {
			return err
		}
		published = asset
		return nil
	})
	if err != nil {
		return &AssetError{AssetID: id, Op: "publish", Err: err}
	}

	if published != nil {
		s.emit(ctx, "asset_published", s.eventSink.AssetPublished(ctx, published))
	}
	return nil
}

func (s *service) AbandonDraft(ctx context.Context, id AssetID, requestedBy Principal) (ReclaimResult, error) {
	asset, err := s.repository.GetAsset(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return ReclaimResult{Outcome: OutcomeNotFound, Message: "asset not found"}, nil
	}
	if err != nil {
		return ReclaimResult{}, &AssetError{AssetID: id, Op: "abandon_draft", Err: err}
	}
	if asset.ProcessStatus != StatusDeleted {
		if _, err := canAbandon(asset.ProcessStatus); err != nil {
			return ReclaimResult{}, &AssetError{AssetID: id, Op: "abandon_draft", Err: err}
		}
	}

	result := s.Reclaim(ctx, ReclaimRequest{
		AssetID:     id,
		Mode:        ReclaimHard,
		RequestedBy: requestedBy,
		DraftsOnly:  true,
	})
	if result.Outcome == OutcomeAlreadyDeleted && result.ObservedStatus == StatusPublished {
		return result, &AssetError{AssetID: id, Op: "abandon_draft",
			Err: fmt.Errorf("%w: asset was published concurrently", ErrInvalidState)}
	}
	return result, nil
}

// Read operations

func (s *service) GetAsset(ctx context.Context, id AssetID) (*Asset, error) {
	asset, err := s.repository.GetAsset(ctx, id)
	if err != nil {
		return nil, &AssetError{AssetID: id, Op: "get", Err: err}
	}
	return asset, nil
}

func (s *service) ListExpiredDrafts(ctx context.Context, q ExpiredDraftQuery) ([]*Asset, error) {
	if q.Limit <= 0 {
		q.Limit = defaultListLimit
	}
	return s.repository.ListExpiredDrafts(ctx, q)
}

func (s *service) DependentCounts(ctx context.Context, id AssetID) (DependentCounts, error) {
	return s.repository.CountDependents(ctx, id)
}

// Helper methods

// generateThumbnail runs the generator against the stored media. Any failure is
// returned as a warning.
func (s *service) generateThumbnail(ctx context.Context, id AssetID, mediaLocator string) (thumb *Thumbnail, warning string) {
	if s.thumbnails == nil {
		return nil, "thumbnail generation is not configured"
	}

	path, cleanup, err := s.localMediaPath(ctx, mediaLocator)
	if err != nil {
		return nil, fmt.Sprintf("thumbnail generation failed: %v", err)
	}
	defer cleanup()

	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "thumbnail generator panicked", "asset_id", id, "panic", r)
			thumb, warning = nil, fmt.Sprintf("thumbnail generation failed: %v", r)
		}
	}()

	thumb, err = s.thumbnails.ExtractThumbnail(ctx, path)
	if err != nil {
		return nil, fmt.Sprintf("thumbnail generation failed: %v", err)
	}
	if thumb == nil || len(thumb.Image) == 0 {
		return nil, "thumbnail generation produced no image"
	}
	return thumb, ""
}

// localMediaPath returns a filesystem path for a stored blob, copying it to a temp
// file when the store is not local.
func (s *service) localMediaPath(ctx context.Context, locator string) (string, func(), error) {
	if r, ok := s.blobStore.(LocalPathResolver); ok {
		path, err := r.LocalPath(locator)
		return path, func() {}, err
	}

	rc, err := s.blobStore.Open(ctx, locator)
	if err != nil {
		return "", func() {}, err
	}
	defer rc.Close()

	f, err := os.CreateTemp("", "simpleasset-*"+filepath.Ext(locator))
	if err != nil {
		return "", func() {}, err
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		cleanup()
		return "", func() {}, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, err
	}
	return f.Name(), cleanup, nil
}

// discard removes a blob that is no longer referenced. Failures are logged only.
func (s *service) discard(ctx context.Context, locator string) {
	if _, err := s.blobStore.Delete(ctx, locator); err != nil {
		s.logger.WarnContext(ctx, "failed to delete blob", "locator", locator, "err", err)
	}
}

func (s *service) emit(ctx context.Context, event string, err error) {
	if err != nil {
		s.logger.WarnContext(ctx, "event sink failed", "event", event, "err", err)
	}
}

func mediaExtension(head []byte, fileName string) string {
	if len(head) > 0 {
		if ext := normalizeExtension(mimetype.Detect(head).Extension()); ext != "" {
			return ext
		}
	}
	return normalizeExtension(filepath.Ext(fileName))
}

func imageExtension(contentType string, data []byte) string {
	switch NormalizeContentType(contentType) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	}
	if ext := normalizeExtension(mimetype.Detect(data).Extension()); ext != "" {
		return ext
	}
	return ".jpg"
}
