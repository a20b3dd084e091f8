package checker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ippool/internal/model"
)

// countingProbe tracks how many probes run at the same time.
type countingProbe struct {
	active      int64
	maxObserved int64
	mutex       sync.Mutex
	delay       time.Duration
	accept      func(model.Endpoint) bool
}

func (p *countingProbe) Probe(ctx context.Context, e model.Endpoint) error {
	current := atomic.AddInt64(&p.active, 1)
	defer atomic.AddInt64(&p.active, -1)

	p.mutex.Lock()
	if current > p.maxObserved {
		p.maxObserved = current
	}
	p.mutex.Unlock()

	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
		return ctx.Err()
	}

	if p.accept != nil && !p.accept(e) {
		return errors.New("refused")
	}
	return nil
}

func (p *countingProbe) MaxObserved() int64 {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.maxObserved
}

func endpoints(n int) []model.Endpoint {
	out := make([]model.Endpoint, n)
	for i := range out {
		out[i] = model.Endpoint(fmt.Sprintf("10.0.%d.%d:8080", i/250, i%250+1))
	}
	return out
}

func TestValidator_ConcurrencyBound(t *testing.T) {
	for _, k := range []int{1, 7, 32} {
		t.Run(fmt.Sprintf("K=%d", k), func(t *testing.T) {
			probe := &countingProbe{delay: 2 * time.Millisecond}
			v := NewValidator(probe, ValidatorConfig{
				GroupSize:    10,
				Concurrency:  k,
				ProbeTimeout: time.Second,
			})

			in := endpoints(300)
			out, err := v.Validate(context.Background(), in)
			require.NoError(t, err)
			require.Len(t, out, len(in))
			require.LessOrEqual(t, probe.MaxObserved(), int64(k))
			require.Positive(t, probe.MaxObserved())
		})
	}
}

func TestValidator_BoundIsSharedAcrossCalls(t *testing.T) {
	probe := &countingProbe{delay: 2 * time.Millisecond}
	v := NewValidator(probe, ValidatorConfig{GroupSize: 5, Concurrency: 4, ProbeTimeout: time.Second})

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := v.Validate(context.Background(), endpoints(60))
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, probe.MaxObserved(), int64(4))
}

func TestValidator_NoFabrication(t *testing.T) {
	in := []model.Endpoint{"1.1.1.1:80", "", "2.2.2.2:80", "garbage", "1.1.1.1:80", "3.3.3.3:99999"}
	probe := ProbeFunc(func(ctx context.Context, e model.Endpoint) error {
		if e == "2.2.2.2:80" {
			return errors.New("connection refused")
		}
		return nil
	})
	v := NewValidator(probe, ValidatorConfig{GroupSize: 2, Concurrency: 3})

	out, err := v.Validate(context.Background(), in)
	require.NoError(t, err)

	inSet := make(map[model.Endpoint]bool)
	for _, e := range in {
		inSet[e] = true
	}
	for _, e := range out {
		require.NotEmpty(t, e)
		require.True(t, inSet[e], "fabricated %q", e)
	}
	// Duplicates in the input survive; dedup happens at merge time.
	require.ElementsMatch(t, []model.Endpoint{"1.1.1.1:80", "1.1.1.1:80"}, out)
}

func TestValidator_MalformedNeverProbed(t *testing.T) {
	var probed []model.Endpoint
	var mu sync.Mutex
	probe := ProbeFunc(func(ctx context.Context, e model.Endpoint) error {
		mu.Lock()
		probed = append(probed, e)
		mu.Unlock()
		return nil
	})
	v := NewValidator(probe, ValidatorConfig{})

	out, err := v.Validate(context.Background(), []model.Endpoint{"", " ", "host", "host:"})
	require.NoError(t, err)
	require.Empty(t, out)
	require.Empty(t, probed)
}

func TestValidator_SlowProbeExcluded(t *testing.T) {
	// The slow double ignores its context and answers late.
	probe := ProbeFunc(func(ctx context.Context, e model.Endpoint) error {
		if e == "9.9.9.9:80" {
			time.Sleep(200 * time.Millisecond)
		}
		return nil
	})
	v := NewValidator(probe, ValidatorConfig{ProbeTimeout: 50 * time.Millisecond})

	out, err := v.Validate(context.Background(), []model.Endpoint{"9.9.9.9:80", "8.8.8.8:80"})
	require.NoError(t, err)
	require.Equal(t, []model.Endpoint{"8.8.8.8:80"}, out)
}

func TestValidator_BlockingProbeExcluded(t *testing.T) {
	probe := &countingProbe{delay: time.Hour}
	v := NewValidator(probe, ValidatorConfig{ProbeTimeout: 30 * time.Millisecond})

	out, err := v.Validate(context.Background(), endpoints(5))
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestValidator_NonRespondingProbeExcluded(t *testing.T) {
	// The double never answers for one endpoint and ignores its context.
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	probe := ProbeFunc(func(ctx context.Context, e model.Endpoint) error {
		if e == "9.9.9.9:80" {
			<-block
		}
		return nil
	})
	v := NewValidator(probe, ValidatorConfig{Concurrency: 4, ProbeTimeout: 50 * time.Millisecond})

	start := time.Now()
	out, err := v.Validate(context.Background(), []model.Endpoint{"9.9.9.9:80", "8.8.8.8:80", "7.7.7.7:80"})
	require.NoError(t, err)
	require.ElementsMatch(t, []model.Endpoint{"8.8.8.8:80", "7.7.7.7:80"}, out)
	require.Less(t, time.Since(start), time.Second)
}

func TestValidator_OverrunningProbeKeepsSlot(t *testing.T) {
	block := make(chan struct{})
	var released atomic.Bool
	t.Cleanup(func() {
		if !released.Load() {
			close(block)
		}
	})
	probe := ProbeFunc(func(ctx context.Context, e model.Endpoint) error {
		if e == "9.9.9.9:80" {
			<-block
		}
		return nil
	})
	v := NewValidator(probe, ValidatorConfig{Concurrency: 1, ProbeTimeout: 20 * time.Millisecond})

	out, err := v.Validate(context.Background(), []model.Endpoint{"9.9.9.9:80"})
	require.NoError(t, err)
	require.Empty(t, out)

	// The only slot is still held by the stuck call.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = v.Validate(ctx, []model.Endpoint{"8.8.8.8:80"})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	released.Store(true)
	close(block)
	out, err = v.Validate(context.Background(), []model.Endpoint{"8.8.8.8:80"})
	require.NoError(t, err)
	require.Equal(t, []model.Endpoint{"8.8.8.8:80"}, out)
}

func TestValidator_PanickingProbeIsolated(t *testing.T) {
	probe := ProbeFunc(func(ctx context.Context, e model.Endpoint) error {
		if e == "6.6.6.6:80" {
			panic("boom")
		}
		return nil
	})
	v := NewValidator(probe, ValidatorConfig{})

	out, err := v.Validate(context.Background(), []model.Endpoint{"6.6.6.6:80", "7.7.7.7:80"})
	require.NoError(t, err)
	require.Equal(t, []model.Endpoint{"7.7.7.7:80"}, out)
}

func TestValidator_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := NewValidator(&countingProbe{}, ValidatorConfig{})
	_, err := v.Validate(ctx, endpoints(10))
	require.ErrorIs(t, err, context.Canceled)
}

func TestValidator_RateLimit(t *testing.T) {
	probe := &countingProbe{}
	v := NewValidator(probe, ValidatorConfig{ProbeRate: 100})

	// Burst of 100 then ~10ms per extra probe.
	start := time.Now()
	out, err := v.Validate(context.Background(), endpoints(120))
	require.NoError(t, err)
	require.Len(t, out, 120)
	require.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}
