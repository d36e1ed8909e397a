package simpleasset

import "time"

// AssetID identifies an asset. It is assigned by the repository and never changes.
type AssetID int64

// ContainerID identifies the channel that owns an asset.
type ContainerID int64

// ProcessStatus is the lifecycle state of an asset.
type ProcessStatus string

const (
	StatusUploading ProcessStatus = "uploading"
	StatusUploaded  ProcessStatus = "uploaded"
	StatusPublished ProcessStatus = "published"
	StatusDeleted   ProcessStatus = "deleted"
)

// PrivacyStatus controls who may view an asset. It does not gate lifecycle transitions.
type PrivacyStatus string

const (
	PrivacyPrivate  PrivacyStatus = "private"
	PrivacyUnlisted PrivacyStatus = "unlisted"
	PrivacyPublic   PrivacyStatus = "public"
)

// Asset is the metadata record of a media object.
type Asset struct {
	ID               AssetID       `json:"id"`
	ContainerID      ContainerID   `json:"container_id"`
	Title            string        `json:"title"`
	Description      string        `json:"description"`
	MediaLocator     string        `json:"media_locator,omitempty"`
	ThumbnailLocator string        `json:"thumbnail_locator,omitempty"`
	DurationSeconds  int           `json:"duration_seconds"`
	Resolution       string        `json:"resolution,omitempty"`
	SizeBytes        int64         `json:"size_bytes"`
	ProcessStatus    ProcessStatus `json:"process_status"`
	PrivacyStatus    PrivacyStatus `json:"privacy_status"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// IsDraft reports whether the asset has not been published or deleted yet.
func (a *Asset) IsDraft() bool {
	return a.ProcessStatus == StatusUploading || a.ProcessStatus == StatusUploaded
}

// TechnicalMetadata is produced by the thumbnail generator.
type TechnicalMetadata struct {
	DurationSeconds int    `json:"duration_seconds"`
	Resolution      string `json:"resolution,omitempty"`
	SizeBytes       int64  `json:"size_bytes"`
}

// ReclaimMode selects between flagging an asset deleted and removing its row.
type ReclaimMode string

const (
	ReclaimSoft ReclaimMode = "soft"
	ReclaimHard ReclaimMode = "hard"
)

// Principal is the caller on whose behalf a reclaim runs.
type Principal struct {
	UserID int64
	Admin  bool
	System bool
}

// SystemPrincipal is used by background jobs such as the expiry sweeper.
var SystemPrincipal = Principal{System: true}

// Outcome is the closed classification of a reclaim.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeNotFound       Outcome = "not_found"
	OutcomeForbidden      Outcome = "forbidden"
	OutcomeAlreadyDeleted Outcome = "already_deleted"
	OutcomeError          Outcome = "error"
)

// FileDeleteReport records which blobs a reclaim removed.
// A blob that was already absent counts as deleted.
type FileDeleteReport struct {
	MediaDeleted     bool     `json:"media_deleted"`
	ThumbnailDeleted bool     `json:"thumbnail_deleted"`
	Errors           []string `json:"errors,omitempty"`
}

// ReclaimResult is returned by Reclaim. It never carries a raw store error.
type ReclaimResult struct {
	Outcome Outcome          `json:"outcome"`
	Message string           `json:"message"`
	Files   FileDeleteReport `json:"files"`
	// ObservedStatus is the status seen under the row lock, empty when the asset never existed.
	ObservedStatus ProcessStatus `json:"observed_status,omitempty"`
}

// Succeeded reports whether the reclaim removed the asset.
func (r ReclaimResult) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

// DependentCounts counts the rows that reference an asset.
type DependentCounts struct {
	CommentLikes int64 `json:"comment_likes"`
	Comments     int64 `json:"comments"`
	Likes        int64 `json:"likes"`
	Views        int64 `json:"views"`
}

// Total returns the number of dependent rows.
func (c DependentCounts) Total() int64 {
	return c.CommentLikes + c.Comments + c.Likes + c.Views
}

// Thumbnail is a still frame extracted from a media file.
type Thumbnail struct {
	Image       []byte
	ContentType string
	Duration    time.Duration
	Width       int
	Height      int
}

// Resolution formats the frame size as "WxH", or "" when unknown.
func (t *Thumbnail) Resolution() string {
	if t == nil || t.Width <= 0 || t.Height <= 0 {
		return ""
	}
	return formatResolution(t.Width, t.Height)
}

// SweepSummary reports one expiry sweep.
type SweepSummary struct {
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Candidates int           `json:"candidates"`
	Reclaimed  int           `json:"reclaimed"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	FailedIDs  []AssetID     `json:"failed_ids,omitempty"`
}
