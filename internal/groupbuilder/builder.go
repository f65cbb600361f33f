// Package groupbuilder grows a group one worker at a time. The root accepts
// worker k over the group of workers 0..k-1 and merges it in, every worker
// that already joined takes part in the accepts that follow.
package groupbuilder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sh00ty/rendezvous/internal/events"
	"github.com/Sh00ty/rendezvous/internal/metrics"
	"github.com/Sh00ty/rendezvous/internal/models"
	"github.com/Sh00ty/rendezvous/internal/transport"
)

type Turnstile interface {
	Admit(ctx context.Context, step int) error
	Release(ctx context.Context, step int) error
}

type Notifier interface {
	Notify(event events.Event)
}

type Builder struct {
	identity  models.WorkerIdentity
	transport transport.Transport
	turnstile Turnstile
	metrics   metrics.Metrics
	notifier  Notifier
	session   string
	log       zerolog.Logger

	// port is set on the root only
	port transport.Port

	mu    sync.Mutex
	state State
	// step is the worker id that joins next
	step  int
	group transport.Group
	err   error
}

func New(identity models.WorkerIdentity, tr transport.Transport, opts ...Option) *Builder {
	o := option{
		metrics: metrics.Nop{},
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Builder{
		identity:  identity,
		transport: tr,
		turnstile: o.turnstile,
		metrics:   o.metrics,
		notifier:  o.notifier,
		session:   o.session,
		log: o.logger.With().
			Str("component", "group-builder").
			Int("worker", int(identity.ID)).
			Logger(),
		state: StateInit,
		group: tr.Singleton(identity.ID),
	}
}

func (b *Builder) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Step is the id of the worker the next merge admits.
func (b *Builder) Step() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.step
}

// Group is the live group. After Complete the caller owns it.
func (b *Builder) Group() transport.Group {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.group
}

// Err is the reason of the failure once the builder is Failed.
func (b *Builder) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Run drives the builder from Init to a terminal state. The root passes its
// open port, other workers pass the endpoint they resolved.
func (b *Builder) Run(ctx context.Context, port transport.Port, endpoint string) (transport.Group, error) {
	err := b.Bootstrap(ctx, port, endpoint)
	if err != nil {
		return nil, err
	}
	for b.State() == StateMerging {
		err = b.Advance(ctx)
		if err != nil {
			return nil, err
		}
	}
	return b.Group(), nil
}

func (b *Builder) Bootstrap(ctx context.Context, port transport.Port, endpoint string) error {
	b.mu.Lock()
	if b.state != StateInit {
		state := b.state
		b.mu.Unlock()
		return fmt.Errorf("bootstrap in state %s", state)
	}
	b.state = StateBootstrapping
	b.mu.Unlock()

	if err := b.identity.Validate(); err != nil {
		return b.fail(err)
	}
	if b.identity.IsRoot() {
		if port == nil {
			return b.fail(errors.New("root needs an open port"))
		}
		b.port = port
		b.log.Info().Msgf("waiting for %d workers on %s", b.identity.TotalWorkers-1, port.Endpoint())
		b.enterMerging(1)
		return nil
	}

	start := time.Now()
	id := b.identity.ID
	conn, err := b.transport.Connect(ctx, endpoint, b.group)
	if err != nil {
		return b.fail(models.CommCheck("connect", id, err))
	}
	b.log.Info().Msgf("connected to worker %d at %s", conn.Peer(), endpoint)

	merged, err := b.transport.Merge(ctx, b.group, conn, true)
	if err != nil {
		_ = conn.Close()
		return b.fail(models.CommCheck("merge", id, err))
	}
	b.setGroup(merged)
	if merged.Size() != int(id)+1 || merged.Rank() != int(id) {
		return b.fail(fmt.Errorf("%w: worker %d joined with rank %d in a group of %d",
			models.ErrOutOfOrder, id, merged.Rank(), merged.Size()))
	}
	b.reportStep(int(id), merged.Size(), time.Since(start))
	b.enterMerging(int(id) + 1)
	return nil
}

// Advance performs one accept and merge. Every member of the group calls it
// for the same step.
func (b *Builder) Advance(ctx context.Context) error {
	b.mu.Lock()
	state, step, group, failure := b.state, b.step, b.group, b.err
	b.mu.Unlock()

	switch state {
	case StateComplete:
		return models.ErrAlreadyComplete
	case StateFailed:
		return failure
	case StateMerging:
	default:
		return fmt.Errorf("advance in state %s", state)
	}
	if group.Size() != step {
		return b.fail(fmt.Errorf("step %d accepts over a group of %d", step, group.Size()))
	}

	start := time.Now()
	id := b.identity.ID
	if b.identity.IsRoot() && b.turnstile != nil {
		err := b.turnstile.Admit(ctx, step)
		if err != nil {
			return b.fail(err)
		}
		defer b.release(step)
	}

	conn, err := b.transport.Accept(ctx, b.port, group)
	if err != nil {
		return b.fail(models.CommCheck("accept", id, err))
	}
	if int(conn.Peer()) != step {
		_ = conn.Close()
		return b.fail(fmt.Errorf("%w: accepted worker %d at step %d", models.ErrOutOfOrder, conn.Peer(), step))
	}

	merged, err := b.transport.Merge(ctx, group, conn, false)
	if err != nil {
		_ = conn.Close()
		return b.fail(models.CommCheck("merge", id, err))
	}
	b.setGroup(merged)
	if merged.Size() != step+1 {
		return b.fail(fmt.Errorf("merge of worker %d produced a group of %d", step, merged.Size()))
	}
	b.log.Info().Msgf("worker %d joined, group size %d", step, merged.Size())
	b.reportStep(step, merged.Size(), time.Since(start))
	b.enterMerging(step + 1)
	return nil
}

func (b *Builder) enterMerging(next int) {
	b.mu.Lock()
	b.step = next
	if next < b.identity.TotalWorkers {
		b.state = StateMerging
		b.mu.Unlock()
		return
	}
	b.state = StateComplete
	rank, size := b.group.Rank(), b.group.Size()
	b.mu.Unlock()

	b.log.Info().Msgf("group complete: rank %d of %d", rank, size)
	b.notify(events.Event{Kind: events.KindComplete, Size: size})
}

func (b *Builder) setGroup(g transport.Group) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.group = g
}

// fail moves the builder to Failed and retires the partial group. The first
// failure wins.
func (b *Builder) fail(err error) error {
	b.mu.Lock()
	if b.state == StateFailed {
		first := b.err
		b.mu.Unlock()
		return first
	}
	b.state = StateFailed
	b.err = err
	step, group := b.step, b.group
	b.mu.Unlock()

	b.log.Error().Err(err).Msgf("group formation failed at step %d", step)
	closeErr := group.Close()
	if closeErr != nil {
		b.log.Warn().Err(closeErr).Msg("failed to close partial group")
	}
	b.metrics.Increment(metrics.StepFailed)
	b.notify(events.Event{Kind: events.KindFailed, Step: step, Error: err.Error()})
	return err
}

func (b *Builder) release(step int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := b.turnstile.Release(ctx, step)
	if err != nil {
		b.log.Warn().Err(err).Msgf("failed to release turn %d", step)
	}
}

func (b *Builder) reportStep(step int, size int, took time.Duration) {
	b.metrics.Duration(metrics.StepDuration, took)
	b.metrics.Gauge(metrics.GroupSize, size)
	b.notify(events.Event{Kind: events.KindStep, Step: step, Size: size})
}

// notify may block on a full notifier, never call it with mu held.
func (b *Builder) notify(e events.Event) {
	if b.notifier == nil {
		return
	}
	e.Session = b.session
	e.Worker = b.identity.ID
	e.Time = time.Now()
	b.notifier.Notify(e)
}
