package simpleasset

import (
	"context"
	"errors"
	"fmt"
)

// Reclaim removes an asset and everything it owns.
//
// The row lock is taken before blobs are touched, so a concurrent Publish or a second
// Reclaim of the same asset observes either the untouched row or the final state.
// Blob deletions are never undone when the metadata transaction rolls back.
func (s *service) Reclaim(ctx context.Context, req ReclaimRequest) ReclaimResult {
	result := s.reclaim(ctx, req)
	s.emit(ctx, "asset_reclaimed", s.eventSink.AssetReclaimed(ctx, req.AssetID, req.Mode, result))
	return result
}

func (s *service) reclaim(ctx context.Context, req ReclaimRequest) ReclaimResult {
	if _, err := ParseReclaimMode(string(req.Mode)); err != nil {
		return ReclaimResult{Outcome: OutcomeError, Message: err.Error()}
	}

	asset, err := s.repository.GetAsset(ctx, req.AssetID)
	if errors.Is(err, ErrNotFound) {
		return s.reclaimMissing(ctx, req)
	}
	if err != nil {
		return s.reclaimFailed(ctx, req, "lookup", err, FileDeleteReport{})
	}
	if !s.authorizer.CanReclaim(ctx, req.RequestedBy, asset) {
		return ReclaimResult{
			Outcome:        OutcomeForbidden,
			Message:        "not allowed to delete this asset",
			ObservedStatus: asset.ProcessStatus,
		}
	}
	if asset.ProcessStatus == StatusDeleted {
		return alreadyDeleted(asset.ProcessStatus)
	}

	var result ReclaimResult
	err = s.repository.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		locked, err := tx.LockAsset(ctx, req.AssetID)
		if errors.Is(err, ErrNotFound) {
			// Removed by a concurrent reclaim after the lookup above.
			result = alreadyDeleted(StatusDeleted)
			return nil
		}
		if err != nil {
			return err
		}
		if !isReclaimable(locked.ProcessStatus, req.DraftsOnly) {
			result = alreadyDeleted(locked.ProcessStatus)
			return nil
		}

		result.ObservedStatus = locked.ProcessStatus
		result.Files = s.deleteBlobs(ctx, locked)

		if err := deleteDependents(ctx, tx, locked.ID); err != nil {
			return err
		}

		switch req.Mode {
		case ReclaimSoft:
			locked.ProcessStatus = StatusDeleted
			locked.MediaLocator = ""
			locked.ThumbnailLocator = ""
			locked.UpdatedAt = s.now()
			if err := tx.UpdateAsset(ctx, locked); err != nil {
				return fmt.Errorf("flag asset deleted: %w", err)
			}
		case ReclaimHard:
			if err := tx.DeleteAsset(ctx, locked.ID); err != nil {
				return fmt.Errorf("delete asset row: %w", err)
			}
		}

		result.Outcome = OutcomeSuccess
		result.Message = "asset deleted"
		return nil
	})
	if err != nil {
		return s.reclaimFailed(ctx, req, "transaction", err, result.Files)
	}

	if result.Outcome == OutcomeSuccess && len(result.Files.Errors) > 0 {
		result.Message = "asset deleted; some files could not be removed"
	}
	return result
}

// deleteDependents removes rows that reference the asset, children before parents.
func deleteDependents(ctx context.Context, tx Tx, id AssetID) error {
	steps := []struct {
		name string
		fn   func(context.Context, AssetID) (int64, error)
	}{
		{"comment likes", tx.DeleteCommentLikes},
		{"comments", tx.DeleteComments},
		{"likes", tx.DeleteLikes},
		{"views", tx.DeleteViews},
	}
	for _, step := range steps {
		if _, err := step.fn(ctx, id); err != nil {
			return fmt.Errorf("delete %s: %w", step.name, err)
		}
	}
	return nil
}

// deleteBlobs removes the media and thumbnail files independently.
// A locator that is empty or already absent counts as deleted.
func (s *service) deleteBlobs(ctx context.Context, asset *Asset) FileDeleteReport {
	var report FileDeleteReport
	report.MediaDeleted = s.deleteBlob(ctx, asset.ID, asset.MediaLocator, &report)
	report.ThumbnailDeleted = s.deleteBlob(ctx, asset.ID, asset.ThumbnailLocator, &report)
	return report
}

func (s *service) deleteBlob(ctx context.Context, id AssetID, locator string, report *FileDeleteReport) bool {
	if locator == "" {
		return true
	}
	if !ValidLocator(locator) {
		s.logger.WarnContext(ctx, "refusing to delete file outside asset prefixes", "asset_id", id, "locator", locator)
		report.Errors = append(report.Errors, fmt.Sprintf("%s: invalid locator", locator))
		return false
	}
	if _, err := s.blobStore.Delete(ctx, locator); err != nil {
		s.logger.WarnContext(ctx, "failed to delete asset file", "asset_id", id, "locator", locator, "err", err)
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", locator, err))
		return false
	}
	return true
}

func (s *service) reclaimFailed(ctx context.Context, req ReclaimRequest, stage string, err error, files FileDeleteReport) ReclaimResult {
	s.logger.ErrorContext(ctx, "reclaim failed", "asset_id", req.AssetID, "op", "reclaim", "stage", stage,
		"mode", req.Mode, "err", err)
	msg := "asset could not be deleted; no metadata was changed"
	if IsTransient(err) {
		msg = "metadata store temporarily unavailable; retry later"
	}
	return ReclaimResult{Outcome: OutcomeError, Message: msg, Files: files}
}

// reclaimMissing tells a hard-reclaimed asset apart from one that never existed.
func (s *service) reclaimMissing(ctx context.Context, req ReclaimRequest) ReclaimResult {
	gone, err := s.repository.WasReclaimed(ctx, req.AssetID)
	if err != nil {
		return s.reclaimFailed(ctx, req, "lookup", err, FileDeleteReport{})
	}
	if gone {
		return alreadyDeleted(StatusDeleted)
	}
	return ReclaimResult{Outcome: OutcomeNotFound, Message: "asset not found"}
}

func alreadyDeleted(observed ProcessStatus) ReclaimResult {
	msg := "asset already deleted"
	if observed == StatusPublished {
		msg = "asset is published and was not reclaimed"
	}
	return ReclaimResult{Outcome: OutcomeAlreadyDeleted, Message: msg, ObservedStatus: observed}
}
