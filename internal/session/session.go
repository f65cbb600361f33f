// Package session runs one worker through group formation: the root opens
// and publishes its port, every other worker resolves it and waits for its
// turn, then all of them drive the group builder.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	uuid "github.com/hashicorp/go-uuid"
	"github.com/rs/zerolog"

	"github.com/Sh00ty/rendezvous/internal/discovery"
	"github.com/Sh00ty/rendezvous/internal/events"
	"github.com/Sh00ty/rendezvous/internal/groupbuilder"
	"github.com/Sh00ty/rendezvous/internal/listener"
	"github.com/Sh00ty/rendezvous/internal/metrics"
	"github.com/Sh00ty/rendezvous/internal/models"
	"github.com/Sh00ty/rendezvous/internal/transport"
	"github.com/Sh00ty/rendezvous/internal/turnstile"
)

type Resolver interface {
	Stagger(ctx context.Context, worker models.WorkerID) error
	Resolve(ctx context.Context, name string) (string, error)
	ResolveTurn(ctx context.Context, name string) (string, error)
}

type Notifier interface {
	Notify(event events.Event)
}

type Config struct {
	Name string `envconfig:"RENDEZVOUS_NAME,default=server.port"`
}

type Option func(s *Session)

func WithMetrics(m metrics.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Session) {
		s.notifier = n
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

type Session struct {
	id        string
	identity  models.WorkerIdentity
	name      string
	backend   discovery.Backend
	transport transport.Transport
	resolver  Resolver
	metrics   metrics.Metrics
	notifier  Notifier
	logger    zerolog.Logger
	log       zerolog.Logger

	mu      sync.Mutex
	builder *groupbuilder.Builder
	err     error
}

func New(
	identity models.WorkerIdentity,
	cfg Config,
	backend discovery.Backend,
	tr transport.Transport,
	res Resolver,
	opts ...Option,
) (*Session, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	id, err := uuid.GenerateUUID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}
	if cfg.Name == "" {
		cfg.Name = discovery.DefaultName
	}
	s := &Session{
		id:        id,
		identity:  identity,
		name:      cfg.Name,
		backend:   backend,
		transport: tr,
		resolver:  res,
		metrics:   metrics.Nop{},
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.logger.With().
		Str("component", "session").
		Str("session", id).
		Int("worker", int(identity.ID)).
		Logger()
	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() groupbuilder.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.builder != nil {
		return s.builder.State()
	}
	if s.err != nil {
		return groupbuilder.StateFailed
	}
	return groupbuilder.StateInit
}

// Run forms the group. On success the caller owns the returned group and
// closes it. On failure everything acquired by the session is released.
func (s *Session) Run(ctx context.Context) (transport.Group, error) {
	start := time.Now()
	s.notify(events.Event{Kind: events.KindStarted})

	var (
		g   transport.Group
		err error
	)
	if s.identity.IsRoot() {
		g, err = s.runRoot(ctx)
	} else {
		g, err = s.runMember(ctx)
	}
	s.metrics.Duration(metrics.SessionDuration, time.Since(start))
	if err != nil {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		s.metrics.Increment(metrics.SessionFailed)
		return nil, err
	}
	s.metrics.Increment(metrics.SessionComplete)
	return g, nil
}

func (s *Session) runRoot(ctx context.Context) (transport.Group, error) {
	handle, err := listener.New(s.backend, s.transport, s.logger).Open(ctx, s.name)
	if err != nil {
		return nil, err
	}
	defer func() {
		closeErr := handle.Close(context.WithoutCancel(ctx))
		if closeErr != nil {
			s.log.Warn().Err(closeErr).Msg("failed to close listener")
		}
	}()

	ts := turnstile.New(s.backend, s.name, handle.Endpoint(), s.logger)
	b := s.newBuilder(groupbuilder.WithTurnstile(ts))
	return b.Run(ctx, handle.Port(), handle.Endpoint())
}

func (s *Session) runMember(ctx context.Context) (transport.Group, error) {
	err := s.resolver.Stagger(ctx, s.identity.ID)
	if err != nil {
		return nil, err
	}
	endpoint, err := s.resolver.Resolve(ctx, s.name)
	if err != nil {
		return nil, err
	}
	err = turnstile.NewWaiter(s.resolver, s.name, s.logger).Await(ctx, s.identity.ID, endpoint)
	if err != nil {
		return nil, err
	}
	return s.newBuilder().Run(ctx, nil, endpoint)
}

func (s *Session) newBuilder(opts ...groupbuilder.Option) *groupbuilder.Builder {
	opts = append(opts,
		groupbuilder.WithMetrics(s.metrics),
		groupbuilder.WithSession(s.id),
		groupbuilder.WithLogger(s.logger),
	)
	if s.notifier != nil {
		opts = append(opts, groupbuilder.WithNotifier(s.notifier))
	}
	b := groupbuilder.New(s.identity, s.transport, opts...)

	s.mu.Lock()
	s.builder = b
	s.mu.Unlock()
	return b
}

func (s *Session) notify(e events.Event) {
	if s.notifier == nil {
		return
	}
	e.Session = s.id
	e.Worker = s.identity.ID
	e.Time = time.Now()
	s.notifier.Notify(e)
}
