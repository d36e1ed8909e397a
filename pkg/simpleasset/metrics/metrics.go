// Package metrics exports asset lifecycle events as Prometheus metrics.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendant/simple-asset/pkg/simpleasset"
)

const namespace = "simpleasset"

// Sink is a simpleasset.EventSink that updates Prometheus collectors.
type Sink struct {
	Lifecycle     *prometheus.CounterVec
	Reclaims      *prometheus.CounterVec
	FilesDeleted  *prometheus.CounterVec
	SweepOutcomes *prometheus.CounterVec
	SweepDuration prometheus.Histogram
	LastSweep     prometheus.Gauge
}

var _ simpleasset.EventSink = (*Sink)(nil)

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Sink, error) {
	s := &Sink{
		Lifecycle: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lifecycle_events_total",
				Help:      "Total number of asset lifecycle events",
			},
			[]string{"event"},
		),
		Reclaims: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reclaims_total",
				Help:      "Total number of reclaim attempts by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		FilesDeleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_deleted_total",
				Help:      "Total number of blobs removed during reclaims",
			},
			[]string{"kind"},
		),
		SweepOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_candidates_total",
				Help:      "Total number of expiry sweep candidates by result",
			},
			[]string{"result"},
		),
		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sweep_duration_seconds",
				Help:      "Expiry sweep duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		LastSweep: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_sweep_timestamp_seconds",
				Help:      "Unix time at which the last expiry sweep started",
			},
		),
	}

	for _, c := range []prometheus.Collector{
		s.Lifecycle, s.Reclaims, s.FilesDeleted, s.SweepOutcomes, s.SweepDuration, s.LastSweep,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Sink) DraftCreated(ctx context.Context, asset *simpleasset.Asset) error {
	s.Lifecycle.WithLabelValues("draft_created").Inc()
	return nil
}

func (s *Sink) MediaAttached(ctx context.Context, asset *simpleasset.Asset, warning string) error {
	s.Lifecycle.WithLabelValues("media_attached").Inc()
	if warning != "" {
		s.Lifecycle.WithLabelValues("thumbnail_failed").Inc()
	}
	return nil
}

func (s *Sink) ThumbnailReplaced(ctx context.Context, asset *simpleasset.Asset) error {
	s.Lifecycle.WithLabelValues("thumbnail_replaced").Inc()
	return nil
}

func (s *Sink) AssetPublished(ctx context.Context, asset *simpleasset.Asset) error {
	s.Lifecycle.WithLabelValues("published").Inc()
	return nil
}

func (s *Sink) AssetReclaimed(ctx context.Context, id simpleasset.AssetID, mode simpleasset.ReclaimMode, result simpleasset.ReclaimResult) error {
	s.Reclaims.WithLabelValues(string(mode), string(result.Outcome)).Inc()
	if result.Files.MediaDeleted {
		s.FilesDeleted.WithLabelValues("media").Inc()
	}
	if result.Files.ThumbnailDeleted {
		s.FilesDeleted.WithLabelValues("thumbnail").Inc()
	}
	return nil
}

func (s *Sink) SweepCompleted(ctx context.Context, summary simpleasset.SweepSummary) error {
	s.SweepOutcomes.WithLabelValues("reclaimed").Add(float64(summary.Reclaimed))
	s.SweepOutcomes.WithLabelValues("skipped").Add(float64(summary.Skipped))
	s.SweepOutcomes.WithLabelValues("failed").Add(float64(summary.Failed))
	s.SweepDuration.Observe(summary.Duration.Seconds())
	s.LastSweep.Set(float64(summary.StartedAt.Unix()))
	return nil
}
