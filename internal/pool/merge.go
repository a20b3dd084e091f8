package pool

import "ippool/internal/model"

// DefaultMaxSize is the size the previous pool must stay below for fresh
// endpoints to be admitted.
const DefaultMaxSize = 100000

// Merge builds the next pool from the re-validated part of the previous
// pool and the freshly validated candidates.
//
// Fresh endpoints are admitted only while the previous part is below
// maxSize. The previous part itself is never truncated, even when it alone
// exceeds maxSize, and an admitted fresh batch is not trimmed to fit.
// The result is free of duplicates.
func Merge(previous, fresh []model.Endpoint, maxSize int) []model.Endpoint {
	prev := model.Dedup(previous)
	if len(prev) == 0 {
		return model.Dedup(fresh)
	}
	if len(prev) >= maxSize {
		return prev
	}

	seen := make(map[model.Endpoint]struct{}, len(prev)+len(fresh))
	out := make([]model.Endpoint, 0, len(prev)+len(fresh))
	for _, e := range prev {
		seen[e] = struct{}{}
		out = append(out, e)
	}
	for _, e := range fresh {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
