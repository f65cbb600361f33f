// Package turnstile orders joiners through the discovery backend. Before
// the root accepts worker k it publishes the turn record of k, and worker k
// connects only after it has seen that record.
package turnstile

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Sh00ty/rendezvous/internal/discovery"
	"github.com/Sh00ty/rendezvous/internal/models"
)

type Backend interface {
	Publish(ctx context.Context, name string, endpoint string) error
	Retract(ctx context.Context, name string) error
}

type Resolver interface {
	// ResolveTurn polls a turn record without the endpoint resolve timeout.
	ResolveTurn(ctx context.Context, name string) (string, error)
}

type Turnstile struct {
	backend  Backend
	resolver Resolver
	name     string
	endpoint string
	log      zerolog.Logger
}

// New returns the root side. endpoint is written into every turn record so
// a joiner can tell a record of this session from a stale one.
func New(backend Backend, name string, endpoint string, logger zerolog.Logger) *Turnstile {
	return &Turnstile{
		backend:  backend,
		name:     name,
		endpoint: endpoint,
		log:      logger.With().Str("component", "turnstile").Logger(),
	}
}

// NewWaiter returns the joiner side.
func NewWaiter(resolver Resolver, name string, logger zerolog.Logger) *Turnstile {
	return &Turnstile{
		resolver: resolver,
		name:     name,
		log:      logger.With().Str("component", "turnstile").Logger(),
	}
}

func (t *Turnstile) Admit(ctx context.Context, step int) error {
	turn := discovery.TurnName(t.name, step)
	err := t.backend.Publish(ctx, turn, t.endpoint)
	if err != nil {
		return fmt.Errorf("failed to admit worker %d: %w", step, err)
	}
	t.log.Debug().Msgf("admitted worker %d", step)
	return nil
}

func (t *Turnstile) Release(ctx context.Context, step int) error {
	turn := discovery.TurnName(t.name, step)
	err := t.backend.Retract(ctx, turn)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to release turn of worker %d: %w", step, err)
	}
	return nil
}

// Await blocks until the root admits worker. endpoint is the endpoint the
// worker resolved, a turn record pointing elsewhere is an error.
func (t *Turnstile) Await(ctx context.Context, worker models.WorkerID, endpoint string) error {
	turn := discovery.TurnName(t.name, int(worker))
	got, err := t.resolver.ResolveTurn(ctx, turn)
	if err != nil {
		return fmt.Errorf("failed to wait for turn of worker %d: %w", worker, err)
	}
	if got != endpoint {
		return fmt.Errorf("turn record %s points to %s, resolved endpoint is %s", turn, got, endpoint)
	}
	t.log.Debug().Msgf("worker %d admitted", worker)
	return nil
}
