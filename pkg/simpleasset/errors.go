package simpleasset

import (
	"context"
	"errors"
	"fmt"
)

// Error types
var (
	// ErrNotFound indicates the referenced asset does not exist
	ErrNotFound = errors.New("asset not found")

	// ErrAssetNotFound is an alias of ErrNotFound
	ErrAssetNotFound = ErrNotFound

	// ErrForbidden indicates the caller lacks rights over the asset
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidState indicates the transition is illegal from the current status
	ErrInvalidState = errors.New("invalid asset state")

	// ErrPayloadTooLarge indicates an upload exceeds the configured size ceiling
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrUnsupportedMediaType indicates an upload has a disallowed content type
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrAlreadyDeleted indicates a redundant delete of an asset
	ErrAlreadyDeleted = errors.New("asset already deleted")

	// ErrTransientStore indicates a store was temporarily unreachable; safe to retry
	ErrTransientStore = errors.New("store temporarily unavailable")

	// ErrInvalidInput indicates a malformed request
	ErrInvalidInput = errors.New("invalid input")

	// ErrBlobNotFound indicates a blob is absent from the blob store
	ErrBlobNotFound = errors.New("blob not found")
)

// AssetError represents an error related to an asset operation
type AssetError struct {
	AssetID AssetID
	Op      string
	Err     error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("asset operation %s failed for asset %d: %v", e.Op, e.AssetID, e.Err)
}

func (e *AssetError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to blob storage operations
type StorageError struct {
	Backend string
	Locator string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for %s on backend %s: %v", e.Op, e.Locator, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ClassifyError maps an error onto the closed outcome set used by request layers.
func ClassifyError(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrForbidden):
		return OutcomeForbidden
	case errors.Is(err, ErrAlreadyDeleted):
		return OutcomeAlreadyDeleted
	default:
		return OutcomeError
	}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientStore) ||
		errors.Is(err, context.DeadlineExceeded)
}
