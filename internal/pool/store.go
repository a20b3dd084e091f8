// Package pool holds the published proxy pool and the merge policy that
// produces each new generation.
package pool

import (
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"ippool/internal/model"
)

// Generation is one immutable, deduplicated snapshot of the pool.
type Generation struct {
	Number    uint64
	ID        uuid.UUID
	CreatedAt time.Time

	endpoints []model.Endpoint
	index     map[model.Endpoint]struct{}
}

var emptyGeneration = &Generation{index: map[model.Endpoint]struct{}{}}

// Endpoints returns the sorted members. The slice is shared between
// readers and must not be modified.
func (g *Generation) Endpoints() []model.Endpoint {
	return g.endpoints
}

func (g *Generation) Len() int {
	return len(g.endpoints)
}

func (g *Generation) Contains(e model.Endpoint) bool {
	_, ok := g.index[e]
	return ok
}

// Store publishes pool generations. Readers never block and always see a
// complete generation.
type Store struct {
	current atomic.Pointer[Generation]
	// next is the number the next published generation receives.
	next atomic.Uint64
}

func NewStore() *Store {
	return &Store{}
}

// Snapshot returns the current generation. Before the first Publish it
// returns an empty generation.
func (s *Store) Snapshot() *Generation {
	if g := s.current.Load(); g != nil {
		return g
	}
	return emptyGeneration
}

// Ready reports whether a generation has been published.
func (s *Store) Ready() bool {
	return s.current.Load() != nil
}

// Publish builds a new generation from endpoints and makes it current.
// Duplicate input means the merge step is broken and is rejected.
// Publish expects a single writer.
func (s *Store) Publish(endpoints []model.Endpoint) (*Generation, error) {
	sorted := slices.Clone(endpoints)
	slices.Sort(sorted)

	index := make(map[model.Endpoint]struct{}, len(sorted))
	for _, e := range sorted {
		if _, dup := index[e]; dup {
			return nil, fmt.Errorf("publish: duplicate endpoint %q", e)
		}
		index[e] = struct{}{}
	}

	g := &Generation{
		Number:    s.next.Add(1) - 1,
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
		endpoints: sorted,
		index:     index,
	}
	s.current.Store(g)
	return g, nil
}
