package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vitos/crypto_market_table/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultRefreshInterval = 1 * time.Second
	DefaultFetchTimeout    = 10 * time.Second
	journalTimeout         = 2 * time.Second
)

// ErrSchedulerStopped is returned by FetchNow once Stop has been called.
var ErrSchedulerStopped = errors.New("refresh scheduler stopped")

// RefreshObserver receives the outcome of every completed cycle.
type RefreshObserver interface {
	ObserveRefresh(rec domain.RefreshRecord, fetchLatency time.Duration)
}

type RefreshSchedulerConfig struct {
	Interval     time.Duration // delay after a cycle completes
	FetchTimeout time.Duration
	Journal      domain.RefreshJournal // optional
	Observer     RefreshObserver       // optional
}

type RefreshStats struct {
	Running      bool          `json:"running"`
	Cycles       uint64        `json:"cycles"`
	Failures     uint64        `json:"failures"`
	LastSuccess  time.Time     `json:"last_success"`
	LastError    string        `json:"last_error,omitempty"`
	LastDuration time.Duration `json:"last_duration_ns"`
	Interval     time.Duration `json:"interval_ns"`
}

// RefreshScheduler fetches a snapshot, transforms it and publishes it to the
// view, then waits Interval before the next cycle. Cycles never overlap: the
// next fetch starts only after the previous publish (or failure) completed.
// Failures leave the view untouched and the cadence unchanged.
type RefreshScheduler struct {
	provider domain.MarketDataProvider
	view     *DatasetView
	cfg      RefreshSchedulerConfig
	logger   *zap.Logger
	timeNow  func() time.Time // For testing

	cycleMu sync.Mutex

	mu      sync.Mutex
	running bool
	stopped bool
	stopCh  chan struct{} // closed by Stop
	cancel  context.CancelFunc
	done    chan struct{}
	stats   RefreshStats
}

func NewRefreshScheduler(provider domain.MarketDataProvider, view *DatasetView, cfg RefreshSchedulerConfig, logger *zap.Logger) *RefreshScheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRefreshInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	return &RefreshScheduler{
		provider: provider,
		view:     view,
		cfg:      cfg,
		logger:   logger,
		timeNow:  time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the first cycle immediately and keeps refreshing until ctx is
// done or Stop is called. A stopped scheduler cannot be restarted.
func (s *RefreshScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.logger.Warn("Refresh scheduler already stopped")
		return
	}
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("Refresh scheduler already running")
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.logger.Info("Starting refresh scheduler", zap.Duration("interval", s.cfg.Interval))
	go s.loop(loopCtx, done)
}

// Stop cancels the pending timer and any in-flight fetch, including one
// started by FetchNow, and returns once no cycle is running. Nothing is
// published after Stop returns.
func (s *RefreshScheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	running, cancel, done := s.running, s.cancel, s.done
	s.mu.Unlock()

	if running {
		cancel()
		<-done
	}

	// Wait out a manual cycle; stopCh has already cancelled its fetch.
	s.cycleMu.Lock()
	s.cycleMu.Unlock()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.logger.Info("Refresh scheduler stopped")
}

func (s *RefreshScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *RefreshScheduler) Stats() RefreshStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Running = s.running
	st.Interval = s.cfg.Interval
	return st
}

// FetchNow runs one cycle outside the schedule. It waits for an in-flight
// cycle to finish first.
func (s *RefreshScheduler) FetchNow(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.logger.Info("Manual refresh triggered")
	return s.runCycle(ctx)
}

func (s *RefreshScheduler) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *RefreshScheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		_ = s.runCycle(ctx)

		// Measured from completion, so a slow fetch stretches the period.
		timer.Reset(s.cfg.Interval)
	}
}

func (s *RefreshScheduler) runCycle(ctx context.Context) error {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	if s.isStopped() {
		return ErrSchedulerStopped
	}

	startedAt := s.timeNow()
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	records, err := s.provider.FetchTopCoins(fetchCtx)
	cancel()
	fetchLatency := s.timeNow().Sub(startedAt)

	if s.isStopped() {
		s.logger.Info("Discarding refresh result after shutdown")
		return ErrSchedulerStopped
	}
	if ctx.Err() != nil {
		s.logger.Info("Discarding refresh result after shutdown")
		return ctx.Err()
	}

	// Only cycles that get recorded are numbered.
	s.mu.Lock()
	s.stats.Cycles++
	rec := domain.RefreshRecord{Cycle: s.stats.Cycles, StartedAt: startedAt}
	s.mu.Unlock()

	if err != nil {
		rec.FinishedAt = s.timeNow()
		rec.Error = err.Error()
		s.mu.Lock()
		s.stats.Failures++
		s.stats.LastError = rec.Error
		s.stats.LastDuration = rec.FinishedAt.Sub(rec.StartedAt)
		s.mu.Unlock()

		var fe *domain.FetchError
		if errors.As(err, &fe) {
			s.logger.Error("Refresh failed, keeping previous dataset",
				zap.Uint64("cycle", rec.Cycle), zap.String("op", fe.Op), zap.Int("status", fe.StatusCode), zap.Error(err))
		} else {
			s.logger.Error("Refresh failed, keeping previous dataset", zap.Uint64("cycle", rec.Cycle), zap.Error(err))
		}
		s.record(ctx, rec, fetchLatency)
		return err
	}

	rows, skipped := Transform(records, s.timeNow())
	if len(skipped) > 0 {
		s.logger.Warn("Skipped malformed records",
			zap.Uint64("cycle", rec.Cycle), zap.Int("skipped", len(skipped)), zap.Error(skipped[0]))
	}
	ds := s.view.Publish(rows)

	rec.FinishedAt = s.timeNow()
	rec.OK = true
	rec.Rows = len(rows)
	rec.Skipped = len(skipped)

	s.mu.Lock()
	s.stats.LastSuccess = rec.FinishedAt
	s.stats.LastError = ""
	s.stats.LastDuration = rec.FinishedAt.Sub(rec.StartedAt)
	s.mu.Unlock()

	s.logger.Debug("Refresh published",
		zap.Uint64("cycle", rec.Cycle),
		zap.Uint64("version", ds.Version),
		zap.Int("rows", rec.Rows),
		zap.Duration("duration", rec.FinishedAt.Sub(rec.StartedAt)))
	s.record(ctx, rec, fetchLatency)
	return nil
}

func (s *RefreshScheduler) record(ctx context.Context, rec domain.RefreshRecord, fetchLatency time.Duration) {
	if s.cfg.Observer != nil {
		s.cfg.Observer.ObserveRefresh(rec, fetchLatency)
	}
	if s.cfg.Journal == nil {
		return
	}
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()
	if err := s.cfg.Journal.SaveRefresh(jctx, &rec); err != nil {
		s.logger.Warn("Failed to journal refresh", zap.Uint64("cycle", rec.Cycle), zap.Error(err))
	}
}
