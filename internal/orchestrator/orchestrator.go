// Package orchestrator drives the harvest cycle: dump discovery, staleness
// re-checks and batched per-item processing across both content types.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/screenarc/tmdb-harvester/internal/state"
	"github.com/screenarc/tmdb-harvester/internal/telemetry"
	"github.com/screenarc/tmdb-harvester/internal/tmdb"
)

// Fetcher retrieves detail payloads from the upstream API.
type Fetcher interface {
	MovieDetails(ctx context.Context, id int64) (*tmdb.Movie, error)
	TVSeriesDetails(ctx context.Context, id int64) (*tmdb.TVSeries, error)
}

// Normalizer persists detail payloads into the entity graph.
type Normalizer interface {
	NormalizeMovie(ctx context.Context, m *tmdb.Movie) error
	NormalizeTVSeries(ctx context.Context, s *tmdb.TVSeries) error
}

// StateStore tracks per-item harvest progress.
type StateStore interface {
	SeedIDs(ctx context.Context, ct state.ContentType, ids []int64) (int, error)
	PendingBatch(ctx context.Context, ct state.ContentType, limit int) ([]state.Item, error)
	EligibleCount(ctx context.Context, ct state.ContentType) (int64, error)
	MarkProcessing(ctx context.Context, stateID int64) error
	MarkCompleted(ctx context.Context, stateID int64) error
	MarkFailed(ctx context.Context, stateID int64, errText string) error
	RecoverStuck(ctx context.Context, ct state.ContentType, olderThan time.Duration) (int64, error)
	ScheduleRefresh(ctx context.Context, ct state.ContentType, staleness time.Duration) (int64, error)
	Statistics(ctx context.Context, ct state.ContentType) (state.Stats, error)
}

// DumpSource supplies the daily bulk ID exports.
type DumpSource interface {
	Download(ctx context.Context, dt state.ContentType, date time.Time) ([]int64, error)
}

// Config carries the orchestration knobs.
type Config struct {
	BatchSize          int
	CheckpointInterval int
	StuckThreshold     time.Duration
	Staleness          time.Duration
	DumpInterval       time.Duration
	UpdateInterval     time.Duration
	IdlePollMax        time.Duration
}

var contentTypes = []state.ContentType{state.Movie, state.TVSeries}

// Orchestrator runs the continuous harvest cycle until stopped.
type Orchestrator struct {
	cfg        Config
	fetcher    Fetcher
	normalizer Normalizer
	states     StateStore
	dumps      DumpSource
	logger     *zap.Logger

	running   atomic.Bool
	completed atomic.Int64

	now        func() time.Time
	lastDump   time.Time
	lastUpdate time.Time
}

// New creates an Orchestrator.
func New(cfg Config, fetcher Fetcher, normalizer Normalizer, states StateStore, dumps DumpSource, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		fetcher:    fetcher,
		normalizer: normalizer,
		states:     states,
		dumps:      dumps,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Stop requests a graceful shutdown. The in-flight batch is allowed to
// finish; the cycle exits before starting another.
func (o *Orchestrator) Stop() {
	o.running.Store(false)
}

// Run executes harvest cycles until Stop is called or the context ends.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.running.Store(true)
	runID := uuid.NewString()
	log := o.logger.With(zap.String("run_id", runID))
	log.Info("harvest started",
		zap.Int("batch_size", o.cfg.BatchSize),
		zap.Duration("dump_interval", o.cfg.DumpInterval),
		zap.Duration("update_interval", o.cfg.UpdateInterval))

	for o.running.Load() && ctx.Err() == nil {
		fired := false

		if o.dumpDue() {
			o.loadDumps(ctx, log)
			o.lastDump = o.now()
			fired = true
		}
		if o.updateDue() {
			o.scheduleRefreshes(ctx, log)
			o.lastUpdate = o.now()
			fired = true
		}

		processed, err := o.processAll(ctx, log)
		if err != nil {
			if errors.Is(err, context.Canceled) && !o.running.Load() {
				break
			}
			log.Error("harvest cycle failed", zap.Error(err))
			return err
		}
		if processed == 0 && !fired {
			o.idle(ctx)
		}
	}

	log.Info("harvest stopped", zap.Int64("items_completed", o.completed.Load()))
	return nil
}

func (o *Orchestrator) dumpDue() bool {
	return o.lastDump.IsZero() || o.now().Sub(o.lastDump) >= o.cfg.DumpInterval
}

func (o *Orchestrator) updateDue() bool {
	return o.lastUpdate.IsZero() || o.now().Sub(o.lastUpdate) >= o.cfg.UpdateInterval
}

// loadDumps downloads both daily exports and seeds unseen IDs. A failed dump
// is logged and skipped so one type never blocks the other.
func (o *Orchestrator) loadDumps(ctx context.Context, log *zap.Logger) {
	date := o.now()
	for _, ct := range contentTypes {
		ids, err := o.dumps.Download(ctx, ct, date)
		if err != nil {
			log.Error("dump download failed",
				zap.String("content_type", string(ct)), zap.Error(err))
			continue
		}
		if len(ids) == 0 {
			continue
		}
		inserted, err := o.states.SeedIDs(ctx, ct, ids)
		if err != nil {
			log.Error("dump seeding failed",
				zap.String("content_type", string(ct)), zap.Error(err))
			continue
		}
		log.Info("dump seeded",
			zap.String("content_type", string(ct)),
			zap.Int("dump_ids", len(ids)),
			zap.Int("new_ids", inserted))
	}
}

// scheduleRefreshes flips completed-but-stale items back to pending.
func (o *Orchestrator) scheduleRefreshes(ctx context.Context, log *zap.Logger) {
	for _, ct := range contentTypes {
		n, err := o.states.ScheduleRefresh(ctx, ct, o.cfg.Staleness)
		if err != nil {
			log.Error("staleness re-check failed",
				zap.String("content_type", string(ct)), zap.Error(err))
			continue
		}
		if n > 0 {
			log.Info("stale items rescheduled",
				zap.String("content_type", string(ct)), zap.Int64("count", n))
		}
	}
}

// processAll runs one processing pass per content type concurrently and
// reports the total number of items worked.
func (o *Orchestrator) processAll(ctx context.Context, log *zap.Logger) (int, error) {
	var total atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for _, ct := range contentTypes {
		ct := ct
		g.Go(func() error {
			n, err := o.processPass(gctx, ct, log)
			total.Add(int64(n))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return int(total.Load()), err
	}
	return int(total.Load()), nil
}

// processPass drains eligible batches for one content type until the queue is
// empty or a shutdown is requested.
func (o *Orchestrator) processPass(ctx context.Context, ct state.ContentType, log *zap.Logger) (int, error) {
	total := 0
	for o.running.Load() && ctx.Err() == nil {
		recovered, err := o.states.RecoverStuck(ctx, ct, o.cfg.StuckThreshold)
		if err != nil {
			return total, err
		}
		if recovered > 0 {
			log.Warn("stuck items recovered",
				zap.String("content_type", string(ct)), zap.Int64("count", recovered))
		}

		batch, err := o.states.PendingBatch(ctx, ct, o.cfg.BatchSize)
		if err != nil {
			return total, err
		}
		if eligible, err := o.states.EligibleCount(ctx, ct); err == nil {
			telemetry.SetPending(string(ct), eligible)
		}
		if len(batch) == 0 {
			break
		}

		o.processBatch(ctx, ct, batch, log)
		total += len(batch)
	}

	if total > 0 {
		if stats, err := o.states.Statistics(ctx, ct); err == nil {
			log.Info("pass finished",
				zap.String("content_type", string(ct)),
				zap.Int("batch_items", total),
				zap.Int64("completed", stats.Completed),
				zap.Int64("failed", stats.Failed),
				zap.Int64("pending", stats.Pending),
				zap.Float64("completion_rate", stats.CompletionRate()))
		}
	}
	return total, nil
}

// processBatch fans one goroutine out per item and waits for all of them.
func (o *Orchestrator) processBatch(ctx context.Context, ct state.ContentType, batch []state.Item, log *zap.Logger) {
	var wg sync.WaitGroup
	for _, item := range batch {
		item := item
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.processItem(ctx, ct, item, log)
		}()
	}
	wg.Wait()
}

func (o *Orchestrator) processItem(ctx context.Context, ct state.ContentType, item state.Item, log *zap.Logger) {
	if err := o.states.MarkProcessing(ctx, item.StateID); err != nil {
		log.Error("mark processing failed",
			zap.String("content_type", string(ct)),
			zap.Int64("content_id", item.ContentID), zap.Error(err))
		return
	}

	err := o.fetchAndStore(ctx, ct, item.ContentID)
	switch {
	case err == nil:
		o.finishItem(ctx, ct, item, "completed", log)
	case errors.Is(err, tmdb.ErrNotFound):
		// Gone upstream. Completed, so it is never refetched.
		o.finishItem(ctx, ct, item, "not_found", log)
	default:
		telemetry.IncItem(string(ct), "failed")
		if markErr := o.states.MarkFailed(ctx, item.StateID, err.Error()); markErr != nil {
			log.Error("mark failed failed",
				zap.String("content_type", string(ct)),
				zap.Int64("content_id", item.ContentID), zap.Error(markErr))
			return
		}
		log.Warn("item failed",
			zap.String("content_type", string(ct)),
			zap.Int64("content_id", item.ContentID), zap.Error(err))
	}
}

func (o *Orchestrator) finishItem(ctx context.Context, ct state.ContentType, item state.Item, outcome string, log *zap.Logger) {
	telemetry.IncItem(string(ct), outcome)
	if err := o.states.MarkCompleted(ctx, item.StateID); err != nil {
		log.Error("mark completed failed",
			zap.String("content_type", string(ct)),
			zap.Int64("content_id", item.ContentID), zap.Error(err))
		return
	}
	done := o.completed.Add(1)
	if o.cfg.CheckpointInterval > 0 && done%int64(o.cfg.CheckpointInterval) == 0 {
		telemetry.IncCheckpoint()
		log.Info("checkpoint", zap.Int64("items_completed", done))
	}
}

func (o *Orchestrator) fetchAndStore(ctx context.Context, ct state.ContentType, contentID int64) error {
	switch ct {
	case state.Movie:
		m, err := o.fetcher.MovieDetails(ctx, contentID)
		if err != nil {
			return err
		}
		return o.normalizer.NormalizeMovie(ctx, m)
	default:
		s, err := o.fetcher.TVSeriesDetails(ctx, contentID)
		if err != nil {
			return err
		}
		return o.normalizer.NormalizeTVSeries(ctx, s)
	}
}

// idle sleeps for at most one poll increment so Stop stays responsive.
func (o *Orchestrator) idle(ctx context.Context) {
	d := o.cfg.IdlePollMax
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
