package checker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"ippool/internal/chunk"
	"ippool/internal/model"
)

type ValidatorConfig struct {
	// GroupSize is the number of candidates handed to one group.
	GroupSize int
	// Concurrency caps probes in flight across all Validate calls. A probe
	// that overruns its deadline keeps its slot until it returns.
	Concurrency int
	// ProbeTimeout bounds a single probe.
	ProbeTimeout time.Duration
	// ProbeRate limits probes started per second. Zero disables it.
	ProbeRate float64
}

// Validator probes candidate batches in bounded concurrent groups.
type Validator struct {
	probe   Probe
	cfg     ValidatorConfig
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

func NewValidator(probe Probe, cfg ValidatorConfig) *Validator {
	if cfg.GroupSize <= 0 {
		cfg.GroupSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 256
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultTimeout
	}

	v := &Validator{
		probe: probe,
		cfg:   cfg,
		sem:   semaphore.NewWeighted(int64(cfg.Concurrency)),
	}
	if cfg.ProbeRate > 0 {
		burst := max(1, int(cfg.ProbeRate))
		v.limiter = rate.NewLimiter(rate.Limit(cfg.ProbeRate), burst)
	}
	return v
}

// Validate returns the candidates whose probe succeeded within the timeout.
// Malformed candidates are dropped without probing. Duplicates in the input
// may show up as duplicates in the output.
//
// Individual probe failures never surface as errors; an error means probes
// could not be dispatched at all, typically because ctx is done.
func (v *Validator) Validate(ctx context.Context, candidates []model.Endpoint) ([]model.Endpoint, error) {
	wellFormed := make([]model.Endpoint, 0, len(candidates))
	for _, c := range candidates {
		if c.Valid() {
			wellFormed = append(wellFormed, c)
		}
	}
	malformed := len(candidates) - len(wellFormed)
	if len(wellFormed) == 0 {
		slog.Debug("Nothing to validate", "malformed", malformed)
		return nil, nil
	}

	start := time.Now()
	groups := chunk.Split(wellFormed, v.cfg.GroupSize)
	passed := make([][]model.Endpoint, len(groups))

	// Enough groups in flight to keep every semaphore slot busy.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, (v.cfg.Concurrency+v.cfg.GroupSize-1)/v.cfg.GroupSize+1))
	for i, group := range groups {
		g.Go(func() error {
			ok, err := v.validateGroup(gctx, group)
			if err != nil {
				return err
			}
			passed[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("validate batch: %w", err)
	}

	var result []model.Endpoint
	for _, ok := range passed {
		result = append(result, ok...)
	}

	slog.Info("Validation finished",
		"candidates", len(candidates),
		"malformed", malformed,
		"groups", len(groups),
		"useful", len(result),
		"duration", time.Since(start).String(),
	)
	return result, nil
}

// validateGroup probes every member of group and returns the useful ones.
func (v *Validator) validateGroup(ctx context.Context, group []model.Endpoint) ([]model.Endpoint, error) {
	useful := make([]bool, len(group))
	var dispatchErr error
	done := make(chan struct{}, len(group))

	dispatched := 0
	for i, e := range group {
		if err := ctx.Err(); err != nil {
			dispatchErr = err
			break
		}
		if err := v.sem.Acquire(ctx, 1); err != nil {
			dispatchErr = err
			break
		}
		if v.limiter != nil {
			if err := v.limiter.Wait(ctx); err != nil {
				v.sem.Release(1)
				dispatchErr = err
				break
			}
		}

		dispatched++
		go func() {
			defer func() { done <- struct{}{} }()
			useful[i] = v.probeOne(ctx, e)
		}()
	}

	// Barrier: every dispatched probe has finished or hit its deadline.
	for range dispatched {
		<-done
	}
	if dispatchErr != nil {
		return nil, dispatchErr
	}

	ok := make([]model.Endpoint, 0, len(group))
	for i, e := range group {
		if useful[i] {
			ok = append(ok, e)
		}
	}
	return ok, nil
}

// probeOne runs a single probe under its own deadline and releases the
// probe's semaphore slot once the probe really returns. It gives up waiting
// at the deadline, so a probe that ignores its context cannot stall the
// group; a probe that answers late is treated as failed.
func (v *Validator) probeOne(ctx context.Context, e model.Endpoint) bool {
	pctx, cancel := context.WithTimeout(ctx, v.cfg.ProbeTimeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		defer v.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Probe panicked", "endpoint", string(e), "panic", r)
				result <- fmt.Errorf("probe panicked: %v", r)
			}
		}()
		result <- v.probe.Probe(pctx, e)
	}()

	select {
	case err := <-result:
		if err != nil {
			slog.Debug("Probe failed", "endpoint", string(e), "error", err)
			return false
		}
		return pctx.Err() == nil
	case <-pctx.Done():
		slog.Debug("Probe timed out", "endpoint", string(e))
		return false
	}
}
