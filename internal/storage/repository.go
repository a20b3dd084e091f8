package storage

import (
	"context"

	"ippool/internal/model"
	"ippool/internal/pool"
)

// Publisher receives every generation the engine publishes. It mirrors the
// pool to an external system; the engine never reads the pool back from it.
type Publisher interface {
	// Publish records a generation. Errors are logged by the caller and
	// never affect the in-memory pool.
	Publish(ctx context.Context, g *pool.Generation) error
}

// CountryLocator resolves an endpoint to an ISO country code.
type CountryLocator interface {
	Country(e model.Endpoint) string
}

// PublisherFunc adapts a plain function to Publisher.
type PublisherFunc func(ctx context.Context, g *pool.Generation) error

func (f PublisherFunc) Publish(ctx context.Context, g *pool.Generation) error {
	return f(ctx, g)
}
