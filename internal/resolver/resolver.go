package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"github.com/Sh00ty/rendezvous/internal/models"
)

type Backend interface {
	Resolve(ctx context.Context, name string) (string, error)
}

type Config struct {
	PollInterval time.Duration `envconfig:"POLL_INTERVAL,default=100ms"`
	// MaxInterval caps the exponential backoff. Values not above
	// PollInterval mean a fixed poll interval.
	MaxInterval time.Duration `envconfig:"POLL_MAX_INTERVAL,optional"`
	// Timeout bounds the wait for the endpoint record. Zero polls until the
	// context is done.
	Timeout time.Duration `envconfig:"RESOLVE_TIMEOUT,optional"`
	// TurnTimeout bounds the wait for a turn record, zero is unbounded. A
	// turn shows up only after every lower worker joined.
	TurnTimeout time.Duration `envconfig:"TURN_TIMEOUT,optional"`
	// Stagger delays worker i by i*Stagger before its first attempt.
	Stagger time.Duration `envconfig:"STAGGER,optional"`
}

// Resolver polls a backend until a record shows up. Only "not found" is
// retried, any other backend error is returned as is.
type Resolver struct {
	backend Backend
	cfg     Config
	log     zerolog.Logger
}

func New(backend Backend, cfg Config, logger zerolog.Logger) *Resolver {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	return &Resolver{
		backend: backend,
		cfg:     cfg,
		log:     logger.With().Str("component", "resolver").Logger(),
	}
}

// Stagger sleeps for the legacy start delay of the given worker.
func (r *Resolver) Stagger(ctx context.Context, worker models.WorkerID) error {
	delay := time.Duration(worker) * r.cfg.Stagger
	if delay <= 0 {
		return nil
	}
	r.log.Debug().Msgf("stagger start by %s", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Resolve waits for the endpoint record, bounded by Timeout.
func (r *Resolver) Resolve(ctx context.Context, name string) (string, error) {
	return r.poll(ctx, name, r.cfg.Timeout)
}

// ResolveTurn waits for a turn record, bounded by TurnTimeout only.
func (r *Resolver) ResolveTurn(ctx context.Context, name string) (string, error) {
	return r.poll(ctx, name, r.cfg.TurnTimeout)
}

func (r *Resolver) poll(ctx context.Context, name string, timeout time.Duration) (string, error) {
	pollCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	opts := []retry.Option{
		retry.Context(pollCtx),
		retry.Attempts(0),
		retry.LastErrorOnly(true),
		retry.Delay(r.cfg.PollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, models.ErrNotFound)
		}),
		retry.OnRetry(func(n uint, err error) {
			r.log.Debug().Msgf("%s is not published yet, attempt %d", name, n+1)
		}),
	}
	if r.cfg.MaxInterval > r.cfg.PollInterval {
		opts = append(opts,
			retry.DelayType(retry.BackOffDelay),
			retry.MaxDelay(r.cfg.MaxInterval),
		)
	}

	var endpoint string
	err := retry.Do(
		func() error {
			ep, err := r.backend.Resolve(pollCtx, name)
			if err != nil {
				return err
			}
			endpoint = ep
			return nil
		},
		opts...,
	)
	if err == nil {
		r.log.Info().Msgf("resolved %s to %s", name, endpoint)
		return endpoint, nil
	}
	if ctx.Err() != nil {
		return "", fmt.Errorf("stopped resolving %s: %w", name, ctx.Err())
	}
	if pollCtx.Err() != nil {
		return "", fmt.Errorf("%w: %s was not published within %s", models.ErrTimedOut, name, timeout)
	}
	return "", fmt.Errorf("failed to resolve %s: %w", name, err)
}
