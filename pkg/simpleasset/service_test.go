package simpleasset_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-asset/pkg/simpleasset"
	memoryrepo "github.com/tendant/simple-asset/pkg/simpleasset/repo/memory"
	memorystorage "github.com/tendant/simple-asset/pkg/simpleasset/storage/memory"
)

var owner = simpleasset.Principal{UserID: 7}

type testEnv struct {
	svc   simpleasset.Service
	repo  *memoryrepo.Repository
	blobs *memorystorage.Backend
}

func setupTestService(t *testing.T, opts ...simpleasset.Option) *testEnv {
	t.Helper()
	env := &testEnv{repo: memoryrepo.New(), blobs: memorystorage.New()}
	base := []simpleasset.Option{
		simpleasset.WithRepository(env.repo),
		simpleasset.WithBlobStore(env.blobs),
		simpleasset.WithThumbnailGenerator(fakeGenerator(t)),
	}
	svc, err := simpleasset.New(append(base, opts...)...)
	require.NoError(t, err)
	env.svc = svc
	return env
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4)), nil))
	return buf.Bytes()
}

func mp4Bytes(size int) []byte {
	head := append([]byte{0, 0, 0, 0x18}, []byte("ftypmp42")...)
	head = append(head, 0, 0, 0, 0)
	head = append(head, []byte("mp42isom")...)
	if size < len(head) {
		size = len(head)
	}
	return append(head, make([]byte, size-len(head))...)
}

func fakeGenerator(t *testing.T) simpleasset.ThumbnailGenerator {
	frame := jpegBytes(t)
	return simpleasset.ThumbnailGeneratorFunc(func(ctx context.Context, mediaPath string) (*simpleasset.Thumbnail, error) {
		return &simpleasset.Thumbnail{
			Image:       frame,
			ContentType: "image/jpeg",
			Duration:    12 * time.Second,
			Width:       1280,
			Height:      720,
		}, nil
	})
}

func failingGenerator() simpleasset.ThumbnailGenerator {
	return simpleasset.ThumbnailGeneratorFunc(func(ctx context.Context, mediaPath string) (*simpleasset.Thumbnail, error) {
		return nil, errors.New("invalid data found when processing input")
	})
}

func (e *testEnv) uploadedAsset(t *testing.T) simpleasset.AssetID {
	t.Helper()
	ctx := context.Background()
	id, err := e.svc.CreateDraft(ctx, 7)
	require.NoError(t, err)
	body := mp4Bytes(1024)
	_, err = e.svc.AttachMedia(ctx, simpleasset.AttachMediaRequest{AssetID: id, Body: bytes.NewReader(body), DeclaredSize: int64(len(body))})
	require.NoError(t, err)
	return id
}

func (e *testEnv) publishedAsset(t *testing.T) simpleasset.AssetID {
	t.Helper()
	id := e.uploadedAsset(t)
	require.NoError(t, e.svc.Publish(context.Background(), id))
	return id
}

func (e *testEnv) addDependents(t *testing.T, id simpleasset.AssetID, comments, likes, views int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < comments; i++ {
		cid, err := e.repo.AddComment(ctx, memoryrepo.Comment{AssetID: id, UserID: int64(i + 1), Body: "comment"})
		require.NoError(t, err)
		require.NoError(t, e.repo.AddCommentLike(ctx, memoryrepo.CommentLike{CommentID: cid, UserID: 99}))
	}
	for i := 0; i < likes; i++ {
		require.NoError(t, e.repo.AddLike(ctx, memoryrepo.Like{AssetID: id, UserID: int64(i + 1)}))
	}
	for i := 0; i < views; i++ {
		require.NoError(t, e.repo.AddView(ctx, memoryrepo.View{AssetID: id, UserID: int64(i + 1)}))
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := simpleasset.New(simpleasset.WithBlobStore(memorystorage.New()))
	assert.Error(t, err)

	_, err = simpleasset.New(simpleasset.WithRepository(memoryrepo.New()))
	assert.Error(t, err)

	_, err = simpleasset.New(
		simpleasset.WithRepository(memoryrepo.New()),
		simpleasset.WithBlobStore(memorystorage.New()),
		simpleasset.WithMaxUploadSize(0),
	)
	assert.Error(t, err)
}

func TestCreateDraft(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	id, err := env.svc.CreateDraft(ctx, 7)
	require.NoError(t, err)

	asset, err := env.svc.GetAsset(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, simpleasset.ContainerID(7), asset.ContainerID)
	assert.Equal(t, simpleasset.StatusUploading, asset.ProcessStatus)
	assert.Equal(t, simpleasset.PrivacyPrivate, asset.PrivacyStatus)
	assert.Empty(t, asset.MediaLocator)
	assert.Empty(t, asset.ThumbnailLocator)
	assert.Zero(t, asset.DurationSeconds)
	assert.False(t, asset.CreatedAt.IsZero())
}

func TestAttachMedia(t *testing.T) {
	t.Run("StoresMediaAndThumbnail", func(t *testing.T) {
		env := setupTestService(t)
		ctx := context.Background()
		id, err := env.svc.CreateDraft(ctx, 7)
		require.NoError(t, err)

		body := mp4Bytes(4096)
		res, err := env.svc.AttachMedia(ctx, simpleasset.AttachMediaRequest{
			AssetID: id, Body: bytes.NewReader(body), DeclaredSize: int64(len(body)), FileName: "../../etc/passwd",
		})
		require.NoError(t, err)
		assert.Empty(t, res.Warning)
		assert.Regexp(t, `^/videos/[0-9a-f-]{36}\.mp4$`, res.MediaLocator)
		assert.Regexp(t, `^/images/videos/[0-9a-f-]{36}\.jpg$`, res.ThumbnailLocator)
		assert.Equal(t, 12, res.Metadata.DurationSeconds)
		assert.Equal(t, "1280x720", res.Metadata.Resolution)
		assert.Equal(t, int64(4096), res.Metadata.SizeBytes)

		asset, err := env.svc.GetAsset(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, simpleasset.StatusUploaded, asset.ProcessStatus)
		assert.Equal(t, res.MediaLocator, asset.MediaLocator)

		ok, err := env.blobs.Exists(ctx, res.MediaLocator)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = env.blobs.Exists(ctx, res.ThumbnailLocator)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("ThumbnailFailureIsAWarning", func(t *testing.T) {
		env := setupTestService(t, simpleasset.WithThumbnailGenerator(failingGenerator()))
		ctx := context.Background()
		id, err := env.svc.CreateDraft(ctx, 7)
		require.NoError(t, err)

		body := []byte("these bytes are not a video at all")
		res, err := env.svc.AttachMedia(ctx, simpleasset.AttachMediaRequest{AssetID: id, Body: bytes.NewReader(body), DeclaredSize: int64(len(body))})
		require.NoError(t, err)
		assert.NotEmpty(t, res.MediaLocator)
		assert.Empty(t, res.ThumbnailLocator)
		assert.NotEmpty(t, res.Warning)
		assert.Equal(t, simpleasset.StatusUploaded, res.Asset.ProcessStatus)
		assert.Equal(t, 1, env.blobs.Len())
	})

	t.Run("GeneratorPanicIsAWarning", func(t *testing.T) {
		panicking := simpleasset.ThumbnailGeneratorFunc(func(ctx context.Context, p string) (*simpleasset.Thumbnail, error) {
			panic("codec crashed")
		})
		env := setupTestService(t, simpleasset.WithThumbnailGenerator(panicking))
		ctx := context.Background()
		id, err := env.svc.CreateDraft(ctx, 7)
		require.NoError(t, err)

		body := mp4Bytes(64)
		res, err := env.svc.AttachMedia(ctx, simpleasset.AttachMediaRequest{AssetID: id, Body: bytes.NewReader(body), DeclaredSize: 64})
		require.NoError(t, err)
		assert.Contains(t, res.Warning, "codec crashed")
		assert.Equal(t, simpleasset.StatusUploaded, res.Asset.ProcessStatus)
	})

	t.Run("DeclaredSizeOverLimit", func(t *testing.T) {
		env := setupTestService(t, simpleasset.WithMaxUploadSize(1024))
		ctx := context.Background()
		id, err := env.svc.CreateDraft(ctx, 7)
		require.NoError(t, err)
		before, err := env.svc.GetAsset(ctx, id)
		require.NoError(t, err)

		_, err = env.svc.AttachMedia(ctx, simpleasset.AttachMediaRequest{AssetID: id, Body: bytes.NewReader(mp4Bytes(10)), DeclaredSize: 1025})
		assert.ErrorIs(t, err, simpleasset.ErrPayloadTooLarge)
		assert.Zero(t, env.blobs.Len())

		after, err := env.svc.GetAsset(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("BodyLongerThanDeclared", func(t *testing.T) {
		env := setupTestService(t)
		ctx := context.Background()
		id, err := env.svc.CreateDraft(ctx, 7)
		require.NoError(t, err)

		_, err = env.svc.AttachMedia(ctx, simpleasset.AttachMediaRequest{AssetID: id, Body: bytes.NewReader(mp4Bytes(2048)), DeclaredSize: 100})
		assert.ErrorIs(t, err, simpleasset.ErrPayloadTooLarge)
		assert.Zero(t, env.blobs.Len())

		asset, err := env.svc.GetAsset(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, simpleasset.StatusUploading, asset.ProcessStatus)
	})

	t.Run("InvalidInput", func(t *testing.T) {
		env := setupTestService(t)
		_, err := env.svc.AttachMedia(context.Background(), simpleasset.AttachMediaRequest{AssetID: 1, DeclaredSize: 10})
		assert.ErrorIs(t, err, simpleasset.ErrInvalidInput)
	})

	t.Run("MissingAsset", func(t *testing.T) {
		env := setupTestService(t)
		_, err := env.svc.AttachMedia(context.Background(), simpleasset.AttachMediaRequest{AssetID: 42, Body: strings.NewReader("x"), DeclaredSize: 1})
		assert.ErrorIs(t, err, simpleasset.ErrNotFound)
	})

	t.Run("PublishedAssetIsRejected", func(t *testing.T) {
		env := setupTestService(t)
		id := env.publishedAsset(t)
		body := mp4Bytes(32)
		_, err := env.svc.AttachMedia(context.Background(), simpleasset.AttachMediaRequest{AssetID: id, Body: bytes.NewReader(body), DeclaredSize: 32})
		assert.ErrorIs(t, err, simpleasset.ErrInvalidState)
	})

	t.Run("ReuploadReplacesFiles", func(t *testing.T) {
		env := setupTestService(t)
		ctx := context.Background()
		id := env.uploadedAsset(t)
		first, err := env.svc.GetAsset(ctx, id)
		require.NoError(t, err)

		body := mp4Bytes(2048)
		res, err := env.svc.AttachMedia(ctx, simpleasset.AttachMediaRequest{AssetID: id, Body: bytes.NewReader(body), DeclaredSize: 2048})
		require.NoError(t, err)
		assert.NotEqual(t, first.MediaLocator, res.MediaLocator)

		ok, err := env.blobs.Exists(ctx, first.MediaLocator)
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = env.blobs.Exists(ctx, first.ThumbnailLocator)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 2, env.blobs.Len())
	})
}

func TestUpdateMetadata(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	id := env.uploadedAsset(t)

	title, desc, privacy := "Holiday", "Beach day", simpleasset.PrivacyUnlisted
	asset, err := env.svc.UpdateMetadata(ctx, simpleasset.UpdateMetadataRequest{AssetID: id, Title: &title, Description: &desc, Privacy: &privacy})
	require.NoError(t, err)
	assert.Equal(t, "Holiday", asset.Title)
	assert.Equal(t, "Beach day", asset.Description)
	assert.Equal(t, simpleasset.PrivacyUnlisted, asset.PrivacyStatus)
	assert.Equal(t, simpleasset.StatusUploaded, asset.ProcessStatus)

	t.Run("PartialUpdate", func(t *testing.T) {
		other := "Renamed"
		asset, err := env.svc.UpdateMetadata(ctx, simpleasset.UpdateMetadataRequest{AssetID: id, Title: &other})
		require.NoError(t, err)
		assert.Equal(t, "Renamed", asset.Title)
		assert.Equal(t, "Beach day", asset.Description)
	})

	t.Run("InvalidPrivacy", func(t *testing.T) {
		bad := simpleasset.PrivacyStatus("friends")
		_, err := env.svc.UpdateMetadata(ctx, simpleasset.UpdateMetadataRequest{AssetID: id, Privacy: &bad})
		assert.ErrorIs(t, err, simpleasset.ErrInvalidInput)
	})

	t.Run("DeletedAsset", func(t *testing.T) {
		res := env.svc.Reclaim(ctx, simpleasset.ReclaimRequest{AssetID: id, Mode: simpleasset.ReclaimSoft, RequestedBy: owner})
		require.Equal(t, simpleasset.OutcomeSuccess, res.Outcome)

		_, err := env.svc.UpdateMetadata(ctx, simpleasset.UpdateMetadataRequest{AssetID: id, Title: &title})
		assert.ErrorIs(t, err, simpleasset.ErrInvalidState)
	})
}

func TestReplaceThumbnail(t *testing.T) {
	t.Run("ReplacesPreviousBlob", func(t *testing.T) {
		env := setupTestService(t)
		ctx := context.Background()
		id := env.publishedAsset(t)
		before, err := env.svc.GetAsset(ctx, id)
		require.NoError(t, err)

		loc, err := env.svc.ReplaceThumbnail(ctx, simpleasset.ReplaceThumbnailRequest{AssetID: id, Image: jpegBytes(t)})
		require.NoError(t, err)
		assert.Regexp(t, `^/images/videos/.+\.jpg$`, loc)

		ok, err := env.blobs.Exists(ctx, before.ThumbnailLocator)
		require.NoError(t, err)
		assert.False(t, ok)

		after, err := env.svc.GetAsset(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, loc, after.ThumbnailLocator)
		assert.Equal(t, 2, env.blobs.Len())
	})

	t.Run("RejectsNonImage", func(t *testing.T) {
		env := setupTestService(t)
		ctx := context.Background()
		id := env.uploadedAsset(t)
		blobsBefore := env.blobs.Len()
		before, err := env.svc.GetAsset(ctx, id)
		require.NoError(t, err)

		_, err = env.svc.ReplaceThumbnail(ctx, simpleasset.ReplaceThumbnailRequest{AssetID: id, Image: []byte("<svg xmlns='http://www.w3.org/2000/svg'></svg>")})
		assert.ErrorIs(t, err, simpleasset.ErrUnsupportedMediaType)
		assert.Equal(t, blobsBefore, env.blobs.Len())

		after, err := env.svc.GetAsset(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("RejectsOversized", func(t *testing.T) {
		env := setupTestService(t, simpleasset.WithMaxThumbnailSize(10))
		id := env.uploadedAsset(t)
		_, err := env.svc.ReplaceThumbnail(context.Background(), simpleasset.ReplaceThumbnailRequest{AssetID: id, Image: jpegBytes(t)})
		assert.ErrorIs(t, err, simpleasset.ErrPayloadTooLarge)
	})

	t.Run("JPEGRejectedWhenOnlyPNGAllowed", func(t *testing.T) {
		env := setupTestService(t, simpleasset.WithAllowedThumbnailTypes("image/png"))
		id := env.uploadedAsset(t)
		_, err := env.svc.ReplaceThumbnail(context.Background(), simpleasset.ReplaceThumbnailRequest{AssetID: id, Image: jpegBytes(t)})
		assert.ErrorIs(t, err, simpleasset.ErrUnsupportedMediaType)
	})

	t.Run("WriteFailureClearsLocator", func(t *testing.T) {
		blobs := &failingWrites{Backend: memorystorage.New()}
		env := setupTestService(t, simpleasset.WithBlobStore(blobs))
		env.blobs = blobs.Backend
		ctx := context.Background()
		id := env.publishedAsset(t)
		before, err := env.svc.GetAsset(ctx, id)
		require.NoError(t, err)
		require.NotEmpty(t, before.ThumbnailLocator)

		blobs.fail.Store(true)
		_, err = env.svc.ReplaceThumbnail(ctx, simpleasset.ReplaceThumbnailRequest{AssetID: id, Image: jpegBytes(t)})
		var storageErr *simpleasset.StorageError
		assert.ErrorAs(t, err, &storageErr)

		ok, err := env.blobs.Exists(ctx, before.ThumbnailLocator)
		require.NoError(t, err)
		assert.False(t, ok)

		after, err := env.svc.GetAsset(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, after.ThumbnailLocator)
		assert.Equal(t, before.MediaLocator, after.MediaLocator)
		assert.Equal(t, 1, env.blobs.Len())
	})

	t.Run("MissingAsset", func(t *testing.T) {
		env := setupTestService(t)
		_, err := env.svc.ReplaceThumbnail(context.Background(), simpleasset.ReplaceThumbnailRequest{AssetID: 404, Image: jpegBytes(t)})
		assert.ErrorIs(t, err, simpleasset.ErrNotFound)
		assert.Zero(t, env.blobs.Len())
	})
}

// failingWrites rejects every write once fail is set.
type failingWrites struct {
	*memorystorage.Backend
	fail atomic.Bool
}

func (f *failingWrites) Write(ctx context.Context, locator string, r io.Reader) (int64, error) {
	if f.fail.Load() {
		return 0, errors.New("disk full")
	}
	return f.Backend.Write(ctx, locator, r)
}

func TestPublish(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	t.Run("DraftWithoutMedia", func(t *testing.T) {
		id, err := env.svc.CreateDraft(ctx, 7)
		require.NoError(t, err)
		assert.ErrorIs(t, env.svc.Publish(ctx, id), simpleasset.ErrInvalidState)
	})

	t.Run("UploadedThenIdempotent", func(t *testing.T) {
		id := env.uploadedAsset(t)
		require.NoError(t, env.svc.Publish(ctx, id))
		first, err := env.svc.GetAsset(ctx, id)
		require.NoError(t, err)

		require.NoError(t, env.svc.Publish(ctx, id))
		second, err := env.svc.GetAsset(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, simpleasset.StatusPublished, second.ProcessStatus)
		assert.Equal(t, first.UpdatedAt, second.UpdatedAt)
	})

	t.Run("DeletedAsset", func(t *testing.T) {
		id := env.uploadedAsset(t)
		res := env.svc.Reclaim(ctx, simpleasset.ReclaimRequest{AssetID: id, Mode: simpleasset.ReclaimSoft, RequestedBy: owner})
		require.True(t, res.Succeeded())
		assert.ErrorIs(t, env.svc.Publish(ctx, id), simpleasset.ErrInvalidState)
	})

	t.Run("Missing", func(t *testing.T) {
		assert.ErrorIs(t, env.svc.Publish(ctx, 12345), simpleasset.ErrNotFound)
	})
}

func TestAbandonDraft(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	t.Run("PublishedIsInvalidState", func(t *testing.T) {
		id := env.publishedAsset(t)
		_, err := env.svc.AbandonDraft(ctx, id, owner)
		assert.ErrorIs(t, err, simpleasset.ErrInvalidState)

		asset, err := env.svc.GetAsset(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, simpleasset.StatusPublished, asset.ProcessStatus)
	})

	t.Run("UploadedDraftIsRemoved", func(t *testing.T) {
		id := env.uploadedAsset(t)
		res, err := env.svc.AbandonDraft(ctx, id, owner)
		require.NoError(t, err)
		assert.Equal(t, simpleasset.OutcomeSuccess, res.Outcome)
		assert.True(t, res.Files.MediaDeleted)
		assert.True(t, res.Files.ThumbnailDeleted)

		_, err = env.svc.GetAsset(ctx, id)
		assert.ErrorIs(t, err, simpleasset.ErrNotFound)
	})

	t.Run("UploadingDraftIsRemoved", func(t *testing.T) {
		id, err := env.svc.CreateDraft(ctx, 7)
		require.NoError(t, err)
		res, err := env.svc.AbandonDraft(ctx, id, owner)
		require.NoError(t, err)
		assert.Equal(t, simpleasset.OutcomeSuccess, res.Outcome)
	})

	t.Run("OtherUserIsForbidden", func(t *testing.T) {
		id := env.uploadedAsset(t)
		res, err := env.svc.AbandonDraft(ctx, id, simpleasset.Principal{UserID: 8})
		require.NoError(t, err)
		assert.Equal(t, simpleasset.OutcomeForbidden, res.Outcome)
	})

	t.Run("Missing", func(t *testing.T) {
		res, err := env.svc.AbandonDraft(ctx, 999, owner)
		require.NoError(t, err)
		assert.Equal(t, simpleasset.OutcomeNotFound, res.Outcome)
	})
}

func TestForwardOnlyTransitions(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	id := env.publishedAsset(t)

	_, err := env.svc.AbandonDraft(ctx, id, owner)
	assert.ErrorIs(t, err, simpleasset.ErrInvalidState)
	body := mp4Bytes(16)
	_, err = env.svc.AttachMedia(ctx, simpleasset.AttachMediaRequest{AssetID: id, Body: bytes.NewReader(body), DeclaredSize: 16})
	assert.ErrorIs(t, err, simpleasset.ErrInvalidState)

	asset, err := env.svc.GetAsset(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, simpleasset.StatusPublished, asset.ProcessStatus)

	res := env.svc.Reclaim(ctx, simpleasset.ReclaimRequest{AssetID: id, Mode: simpleasset.ReclaimSoft, RequestedBy: owner})
	require.True(t, res.Succeeded())
	assert.ErrorIs(t, env.svc.Publish(ctx, id), simpleasset.ErrInvalidState)
	_, err = env.svc.AbandonDraft(ctx, id, owner)
	require.NoError(t, err)

	asset, err = env.svc.GetAsset(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, simpleasset.StatusDeleted, asset.ProcessStatus)
}

func TestExampleScenario(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	id, err := env.svc.CreateDraft(ctx, 7)
	require.NoError(t, err)

	body := mp4Bytes(12_000)
	res, err := env.svc.AttachMedia(ctx, simpleasset.AttachMediaRequest{AssetID: id, Body: bytes.NewReader(body), DeclaredSize: int64(len(body))})
	require.NoError(t, err)
	assert.Equal(t, simpleasset.StatusUploaded, res.Asset.ProcessStatus)
	assert.NotEmpty(t, res.ThumbnailLocator)
	assert.Empty(t, res.Warning)

	require.NoError(t, env.svc.Publish(ctx, id))

	result := env.svc.Reclaim(ctx, simpleasset.ReclaimRequest{AssetID: id, Mode: simpleasset.ReclaimSoft, RequestedBy: owner})
	assert.Equal(t, simpleasset.OutcomeSuccess, result.Outcome)
	assert.True(t, result.Files.MediaDeleted)
	assert.True(t, result.Files.ThumbnailDeleted)

	asset, err := env.svc.GetAsset(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, simpleasset.StatusDeleted, asset.ProcessStatus)
	assert.Empty(t, asset.MediaLocator)
	assert.Empty(t, asset.ThumbnailLocator)
	assert.Zero(t, env.blobs.Len())
}

func TestEventsAreEmitted(t *testing.T) {
	sink := &recordingSink{}
	env := setupTestService(t, simpleasset.WithEventSink(sink))
	ctx := context.Background()

	id := env.publishedAsset(t)
	res := env.svc.Reclaim(ctx, simpleasset.ReclaimRequest{AssetID: id, Mode: simpleasset.ReclaimHard, RequestedBy: owner})
	require.True(t, res.Succeeded())

	assert.Equal(t, []string{"draft_created", "media_attached", "asset_published", "asset_reclaimed"}, sink.events)
}

type recordingSink struct {
	simpleasset.NoopEventSink
	mu     sync.Mutex
	events []string
}

func (r *recordingSink) record(e string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) DraftCreated(ctx context.Context, a *simpleasset.Asset) error {
	return r.record("draft_created")
}

func (r *recordingSink) MediaAttached(ctx context.Context, a *simpleasset.Asset, w string) error {
	return r.record("media_attached")
}

func (r *recordingSink) AssetPublished(ctx context.Context, a *simpleasset.Asset) error {
	return r.record("asset_published")
}

func (r *recordingSink) AssetReclaimed(ctx context.Context, id simpleasset.AssetID, m simpleasset.ReclaimMode, res simpleasset.ReclaimResult) error {
	return r.record("asset_reclaimed")
}

func TestAttachMedia_DraftDeletedDuringUpload(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	id, err := env.svc.CreateDraft(ctx, 7)
	require.NoError(t, err)

	started := make(chan struct{})
	proceed := make(chan struct{})
	body := io.MultiReader(bytes.NewReader(mp4Bytes(3072)), readerFunc(func(p []byte) (int, error) {
		close(started)
		<-proceed
		return 0, io.EOF
	}))

	done := make(chan error, 1)
	go func() {
		_, err := env.svc.AttachMedia(ctx, simpleasset.AttachMediaRequest{AssetID: id, Body: body, DeclaredSize: 4096})
		done <- err
	}()

	<-started
	res := env.svc.Reclaim(ctx, simpleasset.ReclaimRequest{AssetID: id, Mode: simpleasset.ReclaimSoft, RequestedBy: owner})
	require.True(t, res.Succeeded())
	close(proceed)

	err = <-done
	assert.ErrorIs(t, err, simpleasset.ErrInvalidState)
	assert.Zero(t, env.blobs.Len())
}

type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }
