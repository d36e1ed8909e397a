package simpleasset

import "context"

// Service is the main interface of the asset lifecycle.
type Service interface {
	// Lifecycle operations
	CreateDraft(ctx context.Context, containerID ContainerID) (AssetID, error)
	AttachMedia(ctx context.Context, req AttachMediaRequest) (*AttachMediaResult, error)
	UpdateMetadata(ctx context.Context, req UpdateMetadataRequest) (*Asset, error)
	ReplaceThumbnail(ctx context.Context, req ReplaceThumbnailRequest) (string, error)
	Publish(ctx context.Context, id AssetID) error
	// AbandonDraft reclaims a draft on behalf of requestedBy. It fails with ErrInvalidState
	// for a published asset.
	AbandonDraft(ctx context.Context, id AssetID, requestedBy Principal) (ReclaimResult, error)

	// Reclaim removes an asset, its dependent rows and its blobs. It never returns a raw
	// store error; failures are classified in the result.
	Reclaim(ctx context.Context, req ReclaimRequest) ReclaimResult

	// Read operations
	GetAsset(ctx context.Context, id AssetID) (*Asset, error)
	ListExpiredDrafts(ctx context.Context, q ExpiredDraftQuery) ([]*Asset, error)
	DependentCounts(ctx context.Context, id AssetID) (DependentCounts, error)
}
