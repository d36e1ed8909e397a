package simpleasset

import (
	"context"
	"errors"
	"log/slog"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) DraftCreated(ctx context.Context, asset *Asset) error { return nil }

func (n *NoopEventSink) MediaAttached(ctx context.Context, asset *Asset, warning string) error {
	return nil
}

func (n *NoopEventSink) ThumbnailReplaced(ctx context.Context, asset *Asset) error { return nil }

func (n *NoopEventSink) AssetPublished(ctx context.Context, asset *Asset) error { return nil }

func (n *NoopEventSink) AssetReclaimed(ctx context.Context, id AssetID, mode ReclaimMode, result ReclaimResult) error {
	return nil
}

func (n *NoopEventSink) SweepCompleted(ctx context.Context, summary SweepSummary) error { return nil }

// LoggingEventSink writes every event to a slog logger.
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates an event sink that logs to logger, or slog.Default() when nil.
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

func (l *LoggingEventSink) DraftCreated(ctx context.Context, asset *Asset) error {
	l.logger.InfoContext(ctx, "draft created", "asset_id", asset.ID, "container_id", asset.ContainerID)
	return nil
}

func (l *LoggingEventSink) MediaAttached(ctx context.Context, asset *Asset, warning string) error {
	l.logger.InfoContext(ctx, "media attached", "asset_id", asset.ID, "media", asset.MediaLocator,
		"thumbnail", asset.ThumbnailLocator, "size", asset.SizeBytes, "warning", warning)
	return nil
}

func (l *LoggingEventSink) ThumbnailReplaced(ctx context.Context, asset *Asset) error {
	l.logger.InfoContext(ctx, "thumbnail replaced", "asset_id", asset.ID, "thumbnail", asset.ThumbnailLocator)
	return nil
}

func (l *LoggingEventSink) AssetPublished(ctx context.Context, asset *Asset) error {
	l.logger.InfoContext(ctx, "asset published", "asset_id", asset.ID)
	return nil
}

func (l *LoggingEventSink) AssetReclaimed(ctx context.Context, id AssetID, mode ReclaimMode, result ReclaimResult) error {
	l.logger.InfoContext(ctx, "reclaim finished", "asset_id", id, "mode", mode, "outcome", result.Outcome,
		"media_deleted", result.Files.MediaDeleted, "thumbnail_deleted", result.Files.ThumbnailDeleted)
	return nil
}

func (l *LoggingEventSink) SweepCompleted(ctx context.Context, s SweepSummary) error {
	l.logger.InfoContext(ctx, "sweep completed", "candidates", s.Candidates, "reclaimed", s.Reclaimed,
		"skipped", s.Skipped, "failed", s.Failed, "duration", s.Duration)
	return nil
}

// MultiEventSink fans events out to several sinks and joins their errors.
type MultiEventSink []EventSink

func (m MultiEventSink) DraftCreated(ctx context.Context, asset *Asset) error {
	return m.each(func(s EventSink) error { return s.DraftCreated(ctx, asset) })
}

func (m MultiEventSink) MediaAttached(ctx context.Context, asset *Asset, warning string) error {
	return m.each(func(s EventSink) error { return s.MediaAttached(ctx, asset, warning) })
}

func (m MultiEventSink) ThumbnailReplaced(ctx context.Context, asset *Asset) error {
	return m.each(func(s EventSink) error { return s.ThumbnailReplaced(ctx, asset) })
}

func (m MultiEventSink) AssetPublished(ctx context.Context, asset *Asset) error {
	return m.each(func(s EventSink) error { return s.AssetPublished(ctx, asset) })
}

func (m MultiEventSink) AssetReclaimed(ctx context.Context, id AssetID, mode ReclaimMode, result ReclaimResult) error {
	return m.each(func(s EventSink) error { return s.AssetReclaimed(ctx, id, mode, result) })
}

func (m MultiEventSink) SweepCompleted(ctx context.Context, summary SweepSummary) error {
	return m.each(func(s EventSink) error { return s.SweepCompleted(ctx, summary) })
}

func (m MultiEventSink) each(fn func(EventSink) error) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := fn(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
