package simpleasset

import "fmt"

// canAttachMedia checks if media can be written for an asset in the given status.
// A draft may receive media more than once; the previous blobs are replaced.
func canAttachMedia(status ProcessStatus) (bool, error) {
	switch status {
	case StatusUploading, StatusUploaded:
		return true, nil
	case StatusPublished:
		return false, fmt.Errorf("%w: media cannot change after publication (status: %s)", ErrInvalidState, status)
	case StatusDeleted:
		return false, fmt.Errorf("%w: asset has been deleted (status: %s)", ErrInvalidState, status)
	default:
		return false, fmt.Errorf("%w: unknown status %s", ErrInvalidState, status)
	}
}

// canEdit checks if metadata or the thumbnail can be changed.
func canEdit(status ProcessStatus) (bool, error) {
	switch status {
	case StatusUploading, StatusUploaded, StatusPublished:
		return true, nil
	case StatusDeleted:
		return false, fmt.Errorf("%w: asset has been deleted (status: %s)", ErrInvalidState, status)
	default:
		return false, fmt.Errorf("%w: unknown status %s", ErrInvalidState, status)
	}
}

// canPublish checks if an asset can be published. Publishing a published asset is allowed
// and treated as a no-op by the caller.
func canPublish(status ProcessStatus) (bool, error) {
	switch status {
	case StatusUploaded, StatusPublished:
		return true, nil
	case StatusUploading:
		return false, fmt.Errorf("%w: media has not been uploaded yet (status: %s)", ErrInvalidState, status)
	case StatusDeleted:
		return false, fmt.Errorf("%w: asset has been deleted (status: %s)", ErrInvalidState, status)
	default:
		return false, fmt.Errorf("%w: unknown status %s", ErrInvalidState, status)
	}
}

// canAbandon checks if a draft can be abandoned.
func canAbandon(status ProcessStatus) (bool, error) {
	switch status {
	case StatusUploading, StatusUploaded:
		return true, nil
	case StatusPublished:
		return false, fmt.Errorf("%w: published assets cannot be abandoned (status: %s)", ErrInvalidState, status)
	case StatusDeleted:
		return false, fmt.Errorf("%w: asset has been deleted (status: %s)", ErrInvalidState, status)
	default:
		return false, fmt.Errorf("%w: unknown status %s", ErrInvalidState, status)
	}
}

// isReclaimable reports whether a reclaim may remove an asset in the given status.
// Drafts-only reclaims never touch a published asset.
func isReclaimable(status ProcessStatus, draftsOnly bool) bool {
	switch status {
	case StatusUploading, StatusUploaded:
		return true
	case StatusPublished:
		return !draftsOnly
	default:
		return false
	}
}

// ParseProcessStatus validates a stored status value.
func ParseProcessStatus(s string) (ProcessStatus, error) {
	switch st := ProcessStatus(s); st {
	case StatusUploading, StatusUploaded, StatusPublished, StatusDeleted:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown process status %q", ErrInvalidInput, s)
	}
}

// ParsePrivacyStatus validates a privacy value.
func ParsePrivacyStatus(s string) (PrivacyStatus, error) {
	switch p := PrivacyStatus(s); p {
	case PrivacyPrivate, PrivacyUnlisted, PrivacyPublic:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown privacy status %q", ErrInvalidInput, s)
	}
}

// ParseReclaimMode validates a reclaim mode.
func ParseReclaimMode(s string) (ReclaimMode, error) {
	switch m := ReclaimMode(s); m {
	case ReclaimSoft, ReclaimHard:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown reclaim mode %q", ErrInvalidInput, s)
	}
}
