// Package sweeper reclaims drafts that were never finished.
//
// A Sweeper wakes on a fixed interval, pages through drafts older than the retention
// window and hands each one to the same Reclaim entry point used by explicit deletes.
// Sweeps are single-flight: a tick that arrives while a sweep is still running is skipped.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tendant/simple-asset/pkg/simpleasset"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrSweepInProgress is returned by SweepOnce while another sweep is running.
	ErrSweepInProgress = errors.New("sweep already in progress")

	// ErrLockHeld is returned when another instance holds the sweep lock.
	ErrLockHeld = errors.New("sweep lock held by another instance")
)

// Reclaimer is the part of simpleasset.Service the sweeper needs.
type Reclaimer interface {
	ListExpiredDrafts(ctx context.Context, q simpleasset.ExpiredDraftQuery) ([]*simpleasset.Asset, error)
	Reclaim(ctx context.Context, req simpleasset.ReclaimRequest) simpleasset.ReclaimResult
}

// State of the sweep loop.
type State int32

const (
	Sleeping State = iota
	Sweeping
)

func (s State) String() string {
	if s == Sweeping {
		return "sweeping"
	}
	return "sleeping"
}

// Config controls scheduling and batching.
type Config struct {
	Interval    time.Duration // time between sweeps
	Retention   time.Duration // drafts older than this are reclaimed
	BatchSize   int           // candidates fetched per page
	Concurrency int           // reclaims running at once
}

// DefaultConfig matches the defaults of the server configuration.
func DefaultConfig() Config {
	return Config{
		Interval:    10 * time.Minute,
		Retention:   24 * time.Hour,
		BatchSize:   100,
		Concurrency: 1,
	}
}

// Sweeper is the expiry sweep loop.
type Sweeper struct {
	reclaimer Reclaimer
	cfg       Config
	policy    ExpiryPolicy
	locker    Locker
	sink      simpleasset.EventSink
	logger    *slog.Logger
	now       func() time.Time

	state atomic.Int32
	wg    sync.WaitGroup
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithConfig replaces the scheduling configuration.
func WithConfig(cfg Config) Option {
	return func(s *Sweeper) { s.cfg = cfg }
}

// WithPolicy sets the per-candidate expiry policy.
func WithPolicy(p ExpiryPolicy) Option {
	return func(s *Sweeper) { s.policy = p }
}

// WithLocker sets the lock taken around each sweep.
func WithLocker(l Locker) Option {
	return func(s *Sweeper) { s.locker = l }
}

// WithEventSink receives a summary after every sweep.
func WithEventSink(sink simpleasset.EventSink) Option {
	return func(s *Sweeper) { s.sink = sink }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// New creates a sweeper.
func New(r Reclaimer, opts ...Option) (*Sweeper, error) {
	if r == nil {
		return nil, errors.New("reclaimer is required")
	}
	s := &Sweeper{
		reclaimer: r,
		cfg:       DefaultConfig(),
		policy:    AllowAll,
		locker:    NopLocker{},
		sink:      simpleasset.NewNoopEventSink(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cfg.Interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", s.cfg.Interval)
	}
	if s.cfg.Retention <= 0 {
		return nil, fmt.Errorf("retention window must be positive, got %s", s.cfg.Retention)
	}
	if s.cfg.BatchSize <= 0 {
		s.cfg.BatchSize = 100
	}
	if s.cfg.Concurrency <= 0 {
		s.cfg.Concurrency = 1
	}
	s.logger = s.logger.With("component", "sweeper")
	return s, nil
}

// State reports whether a sweep is running.
func (s *Sweeper) State() State {
	return State(s.state.Load())
}

// Run sweeps immediately and then once per interval until ctx is cancelled.
// It returns after any in-flight sweep has stopped.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("sweeper started", "interval", s.cfg.Interval, "retention", s.cfg.Retention)
	defer s.wg.Wait()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopping")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick starts a sweep in the background unless one is already running.
func (s *Sweeper) tick(ctx context.Context) {
	if !s.state.CompareAndSwap(int32(Sleeping), int32(Sweeping)) {
		s.logger.Warn("previous sweep still running; skipping tick")
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.state.Store(int32(Sleeping))
		if _, err := s.sweep(ctx); err != nil && !errors.Is(err, ErrLockHeld) && !errors.Is(err, context.Canceled) {
			s.logger.Error("sweep failed", "err", err)
		}
	}()
}

// SweepOnce runs a sweep synchronously. It fails with ErrSweepInProgress when a sweep
// is already running.
func (s *Sweeper) SweepOnce(ctx context.Context) (simpleasset.SweepSummary, error) {
	if !s.state.CompareAndSwap(int32(Sleeping), int32(Sweeping)) {
		return simpleasset.SweepSummary{}, ErrSweepInProgress
	}
	defer s.state.Store(int32(Sleeping))
	return s.sweep(ctx)
}

func (s *Sweeper) sweep(ctx context.Context) (simpleasset.SweepSummary, error) {
	started := s.now()
	summary := simpleasset.SweepSummary{StartedAt: started}

	unlock, ok, err := s.locker.TryLock(ctx)
	if err != nil {
		return summary, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		s.logger.Info("another instance is sweeping; skipping")
		return summary, ErrLockHeld
	}
	defer unlock()

	cutoff := started.Add(-s.cfg.Retention)
	var mu sync.Mutex
	record := func(fn func(*simpleasset.SweepSummary)) {
		mu.Lock()
		fn(&summary)
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)

	var after simpleasset.AssetID
	var listErr error
pages:
	for ctx.Err() == nil {
		page, err := s.reclaimer.ListExpiredDrafts(ctx, simpleasset.ExpiredDraftQuery{
			CreatedBefore: cutoff,
			AfterID:       after,
			Limit:         s.cfg.BatchSize,
		})
		if err != nil {
			if ctx.Err() == nil {
				listErr = fmt.Errorf("list expired drafts: %w", err)
			}
			break
		}

		for _, asset := range page {
			// Cancellation is only observed between candidates.
			if ctx.Err() != nil {
				break pages
			}
			asset := asset
			g.Go(func() error {
				// Go may block for a free slot; re-check once it has one.
				if ctx.Err() != nil {
					return nil
				}
				record(func(sum *simpleasset.SweepSummary) { sum.Candidates++ })
				s.reclaimOne(context.WithoutCancel(ctx), asset, record)
				return nil
			})
		}

		if len(page) < s.cfg.BatchSize {
			break
		}
		after = page[len(page)-1].ID
	}
	_ = g.Wait()

	summary.Duration = s.now().Sub(started)
	s.logger.Info("sweep finished", "candidates", summary.Candidates, "reclaimed", summary.Reclaimed,
		"skipped", summary.Skipped, "failed", summary.Failed, "duration", summary.Duration)
	if err := s.sink.SweepCompleted(ctx, summary); err != nil {
		s.logger.Warn("event sink failed", "event", "sweep_completed", "err", err)
	}
	return summary, listErr
}

// reclaimOne processes a single candidate. Panics and failures are contained here.
func (s *Sweeper) reclaimOne(ctx context.Context, asset *simpleasset.Asset, record func(func(*simpleasset.SweepSummary))) {
	fail := func() {
		record(func(sum *simpleasset.SweepSummary) {
			sum.Failed++
			sum.FailedIDs = append(sum.FailedIDs, asset.ID)
		})
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("reclaim panicked", "asset_id", asset.ID, "panic", r)
			fail()
		}
	}()

	allowed, err := s.policy.ShouldReclaim(ctx, asset)
	if err != nil {
		s.logger.Error("expiry policy failed", "asset_id", asset.ID, "err", err)
		fail()
		return
	}
	if !allowed {
		record(func(sum *simpleasset.SweepSummary) { sum.Skipped++ })
		return
	}

	res := s.reclaimer.Reclaim(ctx, simpleasset.ReclaimRequest{
		AssetID:     asset.ID,
		Mode:        simpleasset.ReclaimHard,
		RequestedBy: simpleasset.SystemPrincipal,
		DraftsOnly:  true,
	})
	switch res.Outcome {
	case simpleasset.OutcomeSuccess:
		record(func(sum *simpleasset.SweepSummary) { sum.Reclaimed++ })
	case simpleasset.OutcomeAlreadyDeleted, simpleasset.OutcomeNotFound:
		s.logger.Debug("candidate no longer reclaimable", "asset_id", asset.ID, "outcome", res.Outcome,
			"status", res.ObservedStatus)
		record(func(sum *simpleasset.SweepSummary) { sum.Skipped++ })
	default:
		s.logger.Error("reclaim failed", "asset_id", asset.ID, "outcome", res.Outcome, "message", res.Message)
		fail()
	}
}
