package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ippool/internal/model"
)

// Batch is the combined output of one collection round.
type Batch struct {
	Endpoints []model.Endpoint
	// Counts holds the number of candidates each successful source returned.
	Counts map[string]int
	// Failed maps failed source names to their error.
	Failed map[string]error
}

// Collect runs every source concurrently, each bounded by timeout, and
// concatenates what the successful ones returned. A failing or panicking
// source only loses its own contribution.
func Collect(ctx context.Context, sources []Source, timeout time.Duration) Batch {
	type result struct {
		name      string
		endpoints []model.Endpoint
		err       error
	}

	results := make([]result, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eps, err := fetch(ctx, src, timeout)
			results[i] = result{name: src.Name(), endpoints: eps, err: err}
		}()
	}
	wg.Wait()

	batch := Batch{
		Counts: make(map[string]int, len(sources)),
		Failed: make(map[string]error),
	}
	for _, r := range results {
		if r.err != nil {
			slog.Warn("Scrape failed", "source", r.name, "error", r.err)
			batch.Failed[r.name] = r.err
			continue
		}
		batch.Counts[r.name] = len(r.endpoints)
		batch.Endpoints = append(batch.Endpoints, r.endpoints...)
	}

	slog.Info("Collection finished",
		"sources", len(sources),
		"failed", len(batch.Failed),
		"candidates", len(batch.Endpoints),
	)
	return batch
}

// fetch runs one source under the per-source timeout. It stops waiting at
// the deadline even when the source ignores its context.
func fetch(ctx context.Context, src Source, timeout time.Duration) ([]model.Endpoint, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		eps []model.Endpoint
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("source panicked: %v", r)}
			}
		}()
		slog.Debug("Scraping", "source", src.Name())
		eps, err := src.Fetch(ctx)
		done <- outcome{eps: eps, err: err}
	}()

	select {
	case o := <-done:
		return o.eps, o.err
	case <-ctx.Done():
		return nil, fmt.Errorf("source abandoned: %w", ctx.Err())
	}
}
