package usecase

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jaennil/guide_helper/backend/prefetch/internal/fetch"
	"github.com/jaennil/guide_helper/backend/prefetch/internal/progress"
	"github.com/jaennil/guide_helper/backend/prefetch/internal/provider"
	"github.com/jaennil/guide_helper/backend/prefetch/internal/repository/runlog"
	"github.com/jaennil/guide_helper/backend/prefetch/internal/repository/store"
	"github.com/jaennil/guide_helper/backend/prefetch/internal/tile"
	"github.com/jaennil/guide_helper/backend/prefetch/pkg/logger"
	"github.com/jaennil/guide_helper/backend/prefetch/pkg/metrics"
	"github.com/jaennil/guide_helper/backend/prefetch/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

type Mode string

const (
	// ModeBatch starts Concurrency tiles together and waits for all of them
	// before starting the next group.
	ModeBatch Mode = "batch"
	// ModeWindow keeps up to Concurrency tiles in flight and starts the next
	// tile as soon as any slot frees.
	ModeWindow Mode = "window"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeBatch, "":
		return ModeBatch, nil
	case ModeWindow:
		return ModeWindow, nil
	}
	return "", fmt.Errorf("unknown scheduler mode %q", s)
}

const DefaultConcurrency = 6

type AcquireRequest struct {
	Provider    string            `validate:"required"`
	ZoomStart   uint32            `validate:"lte=22"`
	ZoomEnd     uint32            `validate:"lte=22,gtefield=ZoomStart"`
	Bounds      *tile.BoundingBox
	Locale      string            `validate:"excludesall=0x2C"`
	Concurrency int               `validate:"gte=1,lte=256"`
}

type Stats struct {
	Total   uint64
	Fetched uint64
	Skipped uint64
	Failed  uint64
}

func (s *Stats) add(o Stats) {
	s.Total += o.Total
	s.Fetched += o.Fetched
	s.Skipped += o.Skipped
	s.Failed += o.Failed
}

type FailureLedger interface {
	Append(tile.Coordinate) error
	DrainAll() ([]tile.Coordinate, error)
	Replace([]tile.Coordinate) error
	Clear() error
}

type RunRecorder interface {
	Save(context.Context, runlog.Run) (int64, error)
}

type AcquirerConfig struct {
	Store     store.TileStore
	Ledger    FailureLedger
	Fetcher   fetch.Fetcher
	Providers *provider.Registry
	Sink      progress.Sink
	// Runs is optional.
	Runs   RunRecorder
	Logger logger.Logger
	Mode   Mode
}

// Acquirer downloads missing tiles into the store under a concurrency cap and
// keeps the failure ledger up to date.
type Acquirer struct {
	store     store.TileStore
	ledger    FailureLedger
	fetcher   fetch.Fetcher
	providers *provider.Registry
	sink      progress.Sink
	runs      RunRecorder
	logger    logger.Logger
	mode      Mode
	validate  *validator.Validate
}

func NewAcquirer(cfg AcquirerConfig) *Acquirer {
	a := &Acquirer{
		store:     cfg.Store,
		ledger:    cfg.Ledger,
		fetcher:   cfg.Fetcher,
		providers: cfg.Providers,
		sink:      cfg.Sink,
		runs:      cfg.Runs,
		logger:    cfg.Logger,
		mode:      cfg.Mode,
		validate:  validator.New(),
	}
	if a.providers == nil {
		a.providers = provider.Default()
	}
	if a.sink == nil {
		a.sink = progress.Nop()
	}
	if a.logger == nil {
		a.logger = logger.NewNoOp()
	}
	if a.mode == "" {
		a.mode = ModeBatch
	}
	return a
}

// Acquire fetches every missing tile of the request, zoom level by zoom level
// in ascending order. Per-tile failures go to the ledger and never stop the
// run; an unknown provider, an invalid request, a ledger failure or context
// cancellation do.
func (a *Acquirer) Acquire(ctx context.Context, req AcquireRequest) (Stats, error) {
	var total Stats

	if err := a.validate.Struct(req); err != nil {
		return total, fmt.Errorf("invalid acquire request: %w", err)
	}

	prov, err := a.providers.Create(req.Provider, req.Locale)
	if err != nil {
		return total, err
	}

	started := time.Now()
	a.logger.Info("acquisition started",
		"provider", req.Provider,
		"zoom_start", req.ZoomStart,
		"zoom_end", req.ZoomEnd,
		"bounds", req.Bounds,
		"locale", req.Locale,
		"concurrency", req.Concurrency,
		"mode", a.mode,
	)

	resolve := func(tile.Coordinate) (provider.Provider, error) { return prov, nil }
	onFail := func(c tile.Coordinate, _ error) error { return a.ledger.Append(c) }

	var runErr error
	for z := req.ZoomStart; z <= req.ZoomEnd; z++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		count := tile.Count(z, req.Bounds)
		a.logger.Info("zoom level started", "zoom", z, "tiles", count)

		stats, err := a.process(ctx, zoomLevel(req, z), count, req.Concurrency, resolve, onFail)
		total.add(stats)

		a.logger.Info("zoom level finished",
			"zoom", z,
			"fetched", stats.Fetched,
			"skipped", stats.Skipped,
			"failed", stats.Failed,
		)
		if err != nil {
			runErr = err
			break
		}
	}

	a.record(ctx, runlog.Run{
		Kind:      runlog.KindAcquire,
		Provider:  req.Provider,
		ZoomStart: req.ZoomStart,
		ZoomEnd:   req.ZoomEnd,
		StartedAt: started,
	}, total, runErr)

	if runErr != nil {
		a.logger.Error("acquisition aborted", "error", runErr)
		return total, runErr
	}

	a.logger.Info("acquisition finished",
		"total", total.Total,
		"fetched", total.Fetched,
		"skipped", total.Skipped,
		"failed", total.Failed,
		"duration", time.Since(started),
	)
	return total, nil
}

// Retry drains the ledger and attempts every recorded coordinate again with
// the provider and locale stored in its record. Records that fail again are
// written back; the ledger is removed when none do. When the pass is aborted
// the ledger is left as it was.
func (a *Acquirer) Retry(ctx context.Context, concurrency int) (Stats, error) {
	var stats Stats
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}

	records, err := a.ledger.DrainAll()
	if err != nil {
		return stats, err
	}
	if len(records) == 0 {
		a.logger.Info("failure ledger is empty, nothing to retry")
		metrics.LedgerRecords.Set(0)
		return stats, nil
	}

	started := time.Now()
	a.logger.Info("retry started", "records", len(records), "concurrency", concurrency)

	providers := make(map[string]provider.Provider)
	var mu sync.Mutex
	again := make(map[string]struct{})

	pending := make([]tile.Coordinate, 0, len(records))
	for _, c := range records {
		key := c.Provider + "\x00" + c.Locale
		if _, ok := providers[key]; ok {
			pending = append(pending, c)
			continue
		}
		p, err := a.providers.Create(c.Provider, c.Locale)
		if err != nil {
			// cannot be retried by this binary, keep it for a later one
			a.logger.Warn("keeping ledger record of unknown provider", "tile", c.String(), "error", err)
			again[c.Key()] = struct{}{}
			stats.Total++
			stats.Failed++
			continue
		}
		providers[key] = p
		pending = append(pending, c)
	}

	resolve := func(c tile.Coordinate) (provider.Provider, error) {
		return providers[c.Provider+"\x00"+c.Locale], nil
	}
	onFail := func(c tile.Coordinate, _ error) error {
		mu.Lock()
		again[c.Key()] = struct{}{}
		mu.Unlock()
		return nil
	}

	passStats, err := a.process(ctx, each(pending), uint64(len(pending)), concurrency, resolve, onFail)
	stats.add(passStats)

	run := runlog.Run{Kind: runlog.KindRetry, StartedAt: started}
	if err != nil {
		a.record(ctx, run, stats, err)
		a.logger.Error("retry aborted, ledger left unchanged", "error", err)
		return stats, err
	}

	remaining := make([]tile.Coordinate, 0, len(again))
	for _, c := range records {
		if _, ok := again[c.Key()]; ok {
			remaining = append(remaining, c)
		}
	}

	if len(remaining) == 0 {
		err = a.ledger.Clear()
	} else {
		err = a.ledger.Replace(remaining)
	}
	a.record(ctx, run, stats, err)
	if err != nil {
		return stats, err
	}
	metrics.LedgerRecords.Set(float64(len(remaining)))

	a.logger.Info("retry finished",
		"recovered", stats.Fetched+stats.Skipped,
		"remaining", len(remaining),
		"duration", time.Since(started),
	)
	return stats, nil
}

type resolveFunc func(tile.Coordinate) (provider.Provider, error)

// failFunc is called for every failed tile. A non-nil return aborts the pass.
type failFunc func(tile.Coordinate, error) error

// pass holds the counters of one zoom level or retry pass.
type pass struct {
	sink progress.Sink

	mu        sync.Mutex
	completed uint64
	stats     Stats
}

func (p *pass) done(c tile.Coordinate, outcome progress.Outcome, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.completed++
	switch outcome {
	case progress.Fetched:
		p.stats.Fetched++
		metrics.TilesFetched.WithLabelValues(c.Provider).Inc()
	case progress.Skipped:
		p.stats.Skipped++
		metrics.TilesSkipped.WithLabelValues(c.Provider).Inc()
	case progress.Failed:
		p.stats.Failed++
		metrics.TilesFailed.WithLabelValues(c.Provider).Inc()
	}

	// reported under the lock so percentages never go backwards
	p.sink.Report(progress.Report{
		Tile:      c,
		Outcome:   outcome,
		Err:       err,
		Completed: p.completed,
		Total:     p.stats.Total,
	})
}

func (a *Acquirer) process(ctx context.Context, items iter.Seq[tile.Coordinate], total uint64, concurrency int, resolve resolveFunc, onFail failFunc) (Stats, error) {
	p := &pass{sink: a.sink, stats: Stats{Total: total}}

	var err error
	if a.mode == ModeWindow {
		err = a.runWindow(ctx, p, items, concurrency, resolve, onFail)
	} else {
		err = a.runBatches(ctx, p, items, concurrency, resolve, onFail)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats, err
}

func (a *Acquirer) runBatches(ctx context.Context, p *pass, items iter.Seq[tile.Coordinate], concurrency int, resolve resolveFunc, onFail failFunc) error {
	batch := make([]tile.Coordinate, 0, concurrency)

	flush := func() error {
		defer func() { batch = batch[:0] }()
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		var g errgroup.Group
		for _, c := range batch {
			g.Go(func() error {
				return a.attempt(ctx, p, c, resolve, onFail)
			})
		}
		// barrier: every tile of the batch settles before the next batch starts
		err := g.Wait()
		metrics.BatchDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}
		return ctx.Err()
	}

	for c := range items {
		batch = append(batch, c)
		if len(batch) == concurrency {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if len(batch) > 0 {
		return flush()
	}
	return nil
}

func (a *Acquirer) runWindow(ctx context.Context, p *pass, items iter.Seq[tile.Coordinate], concurrency int, resolve resolveFunc, onFail failFunc) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for c := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return a.attempt(gctx, p, c, resolve, onFail)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// attempt runs exists, fetch and save for one tile. Only an error of onFail is
// returned; tile failures are reported and swallowed.
func (a *Acquirer) attempt(ctx context.Context, p *pass, c tile.Coordinate, resolve resolveFunc, onFail failFunc) error {
	ctx, span := telemetry.Tracer().Start(ctx, "tile.acquire",
		trace.WithAttributes(
			attribute.String("tile.provider", c.Provider),
			attribute.Int64("tile.zoom", int64(c.Zoom)),
			attribute.Int64("tile.x", int64(c.X)),
			attribute.Int64("tile.y", int64(c.Y)),
		),
	)
	defer span.End()

	exists, err := a.store.Exists(c)
	if err != nil {
		a.logger.Warn("store lookup failed, fetching anyway", "tile", c.String(), "error", err)
	}
	if exists {
		span.SetAttributes(attribute.String("tile.outcome", string(progress.Skipped)))
		p.done(c, progress.Skipped, nil)
		return nil
	}

	err = a.fetchAndStore(ctx, c, resolve)
	if err == nil {
		span.SetAttributes(attribute.String("tile.outcome", string(progress.Fetched)))
		p.done(c, progress.Fetched, nil)
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	a.logger.Debug("tile failed", "tile", c.String(), "error", err)

	ferr := onFail(c, err)
	p.done(c, progress.Failed, err)
	if ferr != nil {
		return fmt.Errorf("record failed tile %s: %w", c, ferr)
	}
	return nil
}

func (a *Acquirer) fetchAndStore(ctx context.Context, c tile.Coordinate, resolve resolveFunc) error {
	prov, err := resolve(c)
	if err != nil {
		return err
	}
	if prov == nil {
		return errors.New("no provider for tile")
	}

	url := prov.BuildURL(c.X, c.Y, c.Zoom)

	start := time.Now()
	data, err := a.fetcher.Fetch(ctx, url)
	metrics.UpstreamLatency.WithLabelValues(c.Provider).Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}

	return a.store.Set(c, data)
}

func (a *Acquirer) record(ctx context.Context, run runlog.Run, stats Stats, runErr error) {
	if a.runs == nil {
		return
	}
	run.FinishedAt = time.Now()
	run.Total = stats.Total
	run.Fetched = stats.Fetched
	run.Skipped = stats.Skipped
	run.Failed = stats.Failed
	if runErr != nil {
		run.Error = runErr.Error()
	}

	// the journal is informational; the run outcome does not depend on it
	saveCtx := context.WithoutCancel(ctx)
	if _, err := a.runs.Save(saveCtx, run); err != nil {
		a.logger.Warn("failed to record run", "error", err)
	}
}

func zoomLevel(req AcquireRequest, z uint32) iter.Seq[tile.Coordinate] {
	return func(yield func(tile.Coordinate) bool) {
		for t := range tile.Enumerate(z, req.Bounds) {
			if !yield(tile.FromMapTile(req.Provider, req.Locale, t)) {
				return
			}
		}
	}
}

func each(items []tile.Coordinate) iter.Seq[tile.Coordinate] {
	return func(yield func(tile.Coordinate) bool) {
		for _, c := range items {
			if !yield(c) {
				return
			}
		}
	}
}
