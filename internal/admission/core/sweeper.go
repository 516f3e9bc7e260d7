// Package core provides the background cleanup sweeper.
package core

import (
	"context"
	"time"

	"admission/internal/admission/observability"
)

// SweeperOptions configures the cleanup intervals.
type SweeperOptions struct {
	Interval          time.Duration
	InactivityTTL     time.Duration
	RetentionInterval time.Duration
}

// DefaultSweeperOptions returns the stock sweep settings.
func DefaultSweeperOptions() SweeperOptions {
	return SweeperOptions{
		Interval:          5 * time.Minute,
		InactivityTTL:     2 * time.Hour,
		RetentionInterval: time.Hour,
	}
}

func (opts SweeperOptions) normalized() SweeperOptions {
	defaults := DefaultSweeperOptions()
	if opts.Interval <= 0 {
		opts.Interval = defaults.Interval
	}
	if opts.InactivityTTL <= 0 {
		opts.InactivityTTL = defaults.InactivityTTL
	}
	if opts.RetentionInterval <= 0 {
		opts.RetentionInterval = defaults.RetentionInterval
	}
	return opts
}

// SweepReport counts what one sweep pass removed.
type SweepReport struct {
	Clients  int
	Blocks   int
	Events   int
	Patterns int
}

// Sweeper periodically trims stale client state, expired IP blocks, and aged
// events. It only locks one shard or store at a time, so hot-path checks are
// never globally blocked.
type Sweeper struct {
	store    *ClientStore
	blocks   *BlockList
	recorder *EventRecorder
	opts     SweeperOptions
	logger   observability.Logger
	metrics  observability.Metrics
	now      func() time.Time
}

// NewSweeper constructs a sweeper over the given stores.
func NewSweeper(store *ClientStore, blocks *BlockList, recorder *EventRecorder, opts SweeperOptions, logger observability.Logger, metrics observability.Metrics) *Sweeper {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	if metrics == nil {
		metrics = observability.NewInMemoryMetrics()
	}
	return &Sweeper{
		store:    store,
		blocks:   blocks,
		recorder: recorder,
		opts:     opts.normalized(),
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// SetClock overrides the sweeper clock.
func (s *Sweeper) SetClock(now func() time.Time) {
	if s == nil || now == nil {
		return
	}
	s.now = now
}

// Start runs the sweep loop until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sweep := time.NewTicker(s.opts.Interval)
	defer sweep.Stop()
	retention := time.NewTicker(s.opts.RetentionInterval)
	defer retention.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sweep.C:
			s.RunOnce(s.now())
		case <-retention.C:
			s.RunRetention(s.now())
		}
	}
}

// RunOnce evicts inactive client state and expired IP blocks.
func (s *Sweeper) RunOnce(now time.Time) SweepReport {
	report := SweepReport{}
	if s == nil {
		return report
	}
	if s.store != nil {
		report.Clients = s.store.EvictInactive(now.Add(-s.opts.InactivityTTL))
		s.metrics.IncEviction("client_state", report.Clients)
	}
	if s.blocks != nil {
		report.Blocks = s.blocks.EvictExpired(now)
		s.metrics.IncEviction("ip_block", report.Blocks)
	}
	if report.Clients > 0 || report.Blocks > 0 {
		s.logger.Info("sweep completed", map[string]any{
			"clients": report.Clients,
			"blocks":  report.Blocks,
		})
	}
	return report
}

// RunRetention drops events and pattern aggregates past retention.
func (s *Sweeper) RunRetention(now time.Time) SweepReport {
	report := SweepReport{}
	if s == nil || s.recorder == nil {
		return report
	}
	report.Events, report.Patterns = s.recorder.SweepRetention(now)
	s.metrics.IncEviction("event", report.Events)
	s.metrics.IncEviction("pattern", report.Patterns)
	if report.Events > 0 || report.Patterns > 0 {
		s.logger.Info("retention sweep completed", map[string]any{
			"events":   report.Events,
			"patterns": report.Patterns,
		})
	}
	return report
}
