package pool

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"ippool/internal/model"
)

func TestStore_EmptyBeforePublish(t *testing.T) {
	s := NewStore()
	require.False(t, s.Ready())
	require.NotNil(t, s.Snapshot())
	require.Zero(t, s.Snapshot().Len())
	require.False(t, s.Snapshot().Contains("a:1"))
}

func TestStore_PublishNumbersAndSorts(t *testing.T) {
	s := NewStore()

	g0, err := s.Publish(eps("c:1", "a:1", "b:1"))
	require.NoError(t, err)
	require.True(t, s.Ready())
	require.EqualValues(t, 0, g0.Number)
	require.Equal(t, eps("a:1", "b:1", "c:1"), g0.Endpoints())
	require.True(t, g0.Contains("b:1"))

	g1, err := s.Publish(eps("z:1"))
	require.NoError(t, err)
	require.EqualValues(t, 1, g1.Number)
	require.NotEqual(t, g0.ID, g1.ID)
	require.Same(t, g1, s.Snapshot())

	// Old snapshots are untouched by later publishes.
	require.Equal(t, eps("a:1", "b:1", "c:1"), g0.Endpoints())
}

func TestStore_PublishDoesNotAliasInput(t *testing.T) {
	s := NewStore()
	in := eps("b:1", "a:1")
	g, err := s.Publish(in)
	require.NoError(t, err)

	in[0] = "x:1"
	require.Equal(t, eps("a:1", "b:1"), g.Endpoints())
}

func TestStore_RejectsDuplicates(t *testing.T) {
	s := NewStore()
	_, err := s.Publish(eps("a:1", "a:1"))
	require.Error(t, err)
	require.False(t, s.Ready())
}

// Readers racing a writer must only ever see whole generations.
func TestStore_NoTornReads(t *testing.T) {
	s := NewStore()
	const size = 200

	build := func(gen int) []model.Endpoint {
		out := make([]model.Endpoint, size)
		for i := range out {
			out[i] = model.Endpoint(fmt.Sprintf("g%d-%03d:80", gen, i))
		}
		return out
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				g := s.Snapshot()
				if g.Len() == 0 {
					continue
				}
				prefix, _, _ := strings.Cut(string(g.Endpoints()[0]), "-")
				for _, e := range g.Endpoints() {
					if p, _, _ := strings.Cut(string(e), "-"); p != prefix {
						t.Errorf("torn generation %d: %s vs %s", g.Number, prefix, e)
						return
					}
				}
			}
		}()
	}

	for gen := 1; gen <= 9; gen++ {
		_, err := s.Publish(build(gen))
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
}
