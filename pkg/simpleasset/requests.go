package simpleasset

import "io"

// AttachMediaRequest carries an upload stream for a draft.
type AttachMediaRequest struct {
	AssetID      AssetID
	Body         io.Reader
	DeclaredSize int64
	// FileName is only used as an extension hint when the content cannot be sniffed.
	FileName string
}

// AttachMediaResult is the outcome of a successful upload. Warning is set when
// thumbnail extraction failed; the upload itself still succeeded.
type AttachMediaResult struct {
	Asset            *Asset            `json:"asset"`
	MediaLocator     string            `json:"media_locator"`
	ThumbnailLocator string            `json:"thumbnail_locator,omitempty"`
	Metadata         TechnicalMetadata `json:"metadata"`
	Warning          string            `json:"warning,omitempty"`
}

// UpdateMetadataRequest updates the fields that are set.
type UpdateMetadataRequest struct {
	AssetID     AssetID
	Title       *string
	Description *string
	Privacy     *PrivacyStatus
}

// ReplaceThumbnailRequest supplies a user-chosen thumbnail image.
type ReplaceThumbnailRequest struct {
	AssetID AssetID
	Image   []byte
}

// ReclaimRequest asks for an asset and everything it owns to be removed.
type ReclaimRequest struct {
	AssetID     AssetID
	Mode        ReclaimMode
	RequestedBy Principal
	// DraftsOnly refuses to remove an asset that is published when the row is locked.
	DraftsOnly bool
}
