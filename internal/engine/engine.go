package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ippool/internal/model"
	"ippool/internal/pool"
	"ippool/internal/scraper"
	"ippool/internal/storage"
)

// State is the scheduler's lifecycle phase.
type State int32

const (
	StateBootstrapping State = iota
	StateServing
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateBootstrapping:
		return "bootstrapping"
	case StateServing:
		return "serving"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// Validator filters candidates down to working proxies.
type Validator interface {
	Validate(ctx context.Context, candidates []model.Endpoint) ([]model.Endpoint, error)
}

type Config struct {
	// RefreshInterval is measured from the end of one cycle to the start
	// of the next.
	RefreshInterval time.Duration
	SourceTimeout   time.Duration
	MaxPoolSize     int
}

// CycleReport summarises the last finished cycle.
type CycleReport struct {
	ID                uuid.UUID     `json:"id"`
	Bootstrap         bool          `json:"bootstrap"`
	StartedAt         time.Time     `json:"started_at"`
	Duration          time.Duration `json:"duration"`
	PreviousSize      int           `json:"previous_size"`
	PreviousValidated int           `json:"previous_validated"`
	Candidates        int           `json:"candidates"`
	FailedSources     []string      `json:"failed_sources,omitempty"`
	FreshValidated    int           `json:"fresh_validated"`
	Generation        uint64        `json:"generation"`
	PoolSize          int           `json:"pool_size"`
	Error             string        `json:"error,omitempty"`
}

// Engine maintains the proxy pool: one synchronous bootstrap, then a
// refresh cycle every RefreshInterval for as long as it runs.
type Engine struct {
	store     *pool.Store
	sources   []scraper.Source
	validator Validator
	publisher storage.Publisher
	cfg       Config

	state atomic.Int32
	last  atomic.Pointer[CycleReport]
}

// New creates an engine. publisher may be nil.
func New(store *pool.Store, srcList []scraper.Source, validator Validator, publisher storage.Publisher, cfg Config) *Engine {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 300 * time.Second
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = 60 * time.Second
	}
	if cfg.MaxPoolSize <= 0 {
		cfg.MaxPoolSize = pool.DefaultMaxSize
	}
	return &Engine{
		store:     store,
		sources:   srcList,
		validator: validator,
		publisher: publisher,
		cfg:       cfg,
	}
}

func (e *Engine) State() State {
	return State(e.state.Load())
}

// LastCycle returns the report of the most recent cycle, or nil.
func (e *Engine) LastCycle() *CycleReport {
	return e.last.Load()
}

// Bootstrap builds generation 0 from the sources alone. If every source
// fails the pool starts empty; only cancellation of ctx is an error.
func (e *Engine) Bootstrap(ctx context.Context) error {
	e.state.Store(int32(StateBootstrapping))
	report := &CycleReport{ID: uuid.New(), Bootstrap: true, StartedAt: time.Now()}
	log := slog.With("cycle", report.ID.String())
	log.Info("Bootstrapping pool", "sources", len(e.sources))

	fresh, err := e.collectAndValidate(ctx, e.store.Snapshot(), report)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		log.Error("Bootstrap validation failed, starting with an empty pool", "error", err)
		report.Error = err.Error()
		fresh = nil
	}

	if err := e.publish(ctx, pool.Merge(nil, fresh, e.cfg.MaxPoolSize), report); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	e.state.Store(int32(StateServing))
	return nil
}

// Refresh runs one cycle: re-validate the current pool, collect and
// validate fresh candidates, merge, publish. A failed cycle leaves the
// current generation in place.
func (e *Engine) Refresh(ctx context.Context) (err error) {
	e.state.Store(int32(StateRefreshing))
	defer e.state.Store(int32(StateServing))

	report := &CycleReport{ID: uuid.New(), StartedAt: time.Now()}
	log := slog.With("cycle", report.ID.String())
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh panicked: %v", r)
		}
		if err != nil {
			// report may already be visible through LastCycle.
			failed := *report
			failed.Error = err.Error()
			failed.Duration = time.Since(report.StartedAt)
			e.last.Store(&failed)
		}
	}()

	prev := e.store.Snapshot()
	report.PreviousSize = prev.Len()
	log.Info("Refreshing pool", "generation", prev.Number, "size", prev.Len())

	var previousValidated, freshValidated []model.Endpoint
	g, gctx := errgroup.WithContext(ctx)
	g.Go(recovered(func() error {
		var err error
		previousValidated, err = e.validator.Validate(gctx, prev.Endpoints())
		if err != nil {
			return fmt.Errorf("re-validate previous pool: %w", err)
		}
		return nil
	}))
	g.Go(recovered(func() error {
		var err error
		freshValidated, err = e.collectAndValidate(gctx, prev, report)
		return err
	}))
	if err := g.Wait(); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	report.PreviousValidated = len(previousValidated)

	next := pool.Merge(previousValidated, freshValidated, e.cfg.MaxPoolSize)
	if err := e.publish(ctx, next, report); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	return nil
}

// Run refreshes the pool every RefreshInterval until ctx is done. Cycle
// errors are logged and the next cycle is still scheduled.
func (e *Engine) Run(ctx context.Context) {
	timer := time.NewTimer(e.cfg.RefreshInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Engine Stopped")
			return
		case <-timer.C:
			if err := e.Refresh(ctx); err != nil {
				slog.Error("Refresh cycle failed", "error", err)
			}
			timer.Reset(e.cfg.RefreshInterval)
		}
	}
}

// collectAndValidate scrapes all sources and validates the candidates that
// are not already in prev, since those are re-validated separately.
func (e *Engine) collectAndValidate(ctx context.Context, prev *pool.Generation, report *CycleReport) ([]model.Endpoint, error) {
	batch := scraper.Collect(ctx, e.sources, e.cfg.SourceTimeout)
	for name := range batch.Failed {
		report.FailedSources = append(report.FailedSources, name)
	}

	candidates := make([]model.Endpoint, 0, len(batch.Endpoints))
	for _, c := range model.Dedup(batch.Endpoints) {
		if !prev.Contains(c) {
			candidates = append(candidates, c)
		}
	}
	report.Candidates = len(candidates)

	fresh, err := e.validator.Validate(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("validate fresh candidates: %w", err)
	}
	report.FreshValidated = len(fresh)
	return fresh, nil
}

// recovered turns a panic in fn into an error so it only fails the cycle.
func recovered(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn()
	}
}

func (e *Engine) publish(ctx context.Context, endpoints []model.Endpoint, report *CycleReport) error {
	g, err := e.store.Publish(endpoints)
	if err != nil {
		return err
	}

	report.Generation = g.Number
	report.PoolSize = g.Len()
	report.Duration = time.Since(report.StartedAt)
	e.last.Store(report)

	slog.Info("Published pool generation",
		"cycle", report.ID.String(),
		"generation", g.Number,
		"size", g.Len(),
		"previous_validated", report.PreviousValidated,
		"fresh_validated", report.FreshValidated,
		"duration", report.Duration.String(),
	)

	if e.publisher != nil {
		if err := e.mirror(ctx, g); err != nil {
			slog.Error("Mirroring generation failed", "generation", g.Number, "error", err)
		}
	}
	return nil
}

func (e *Engine) mirror(ctx context.Context, g *pool.Generation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("publisher panicked: %v", r)
		}
	}()
	return e.publisher.Publish(ctx, g)
}
