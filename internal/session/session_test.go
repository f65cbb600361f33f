package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Sh00ty/rendezvous/internal/discovery"
	"github.com/Sh00ty/rendezvous/internal/discovery/file"
	"github.com/Sh00ty/rendezvous/internal/discovery/inmemory"
	"github.com/Sh00ty/rendezvous/internal/events"
	"github.com/Sh00ty/rendezvous/internal/groupbuilder"
	"github.com/Sh00ty/rendezvous/internal/metrics"
	"github.com/Sh00ty/rendezvous/internal/models"
	"github.com/Sh00ty/rendezvous/internal/resolver"
	"github.com/Sh00ty/rendezvous/internal/transport"
	"github.com/Sh00ty/rendezvous/internal/transport/tcp"
)

// countingBackend records which calls reached the backend.
type countingBackend struct {
	discovery.Backend

	mu       sync.Mutex
	publish  []string
	retract  []string
	resolves int
}

func (c *countingBackend) Publish(ctx context.Context, name string, endpoint string) error {
	c.mu.Lock()
	c.publish = append(c.publish, name)
	c.mu.Unlock()
	return c.Backend.Publish(ctx, name, endpoint)
}

func (c *countingBackend) Resolve(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	c.resolves++
	c.mu.Unlock()
	return c.Backend.Resolve(ctx, name)
}

func (c *countingBackend) Retract(ctx context.Context, name string) error {
	c.mu.Lock()
	c.retract = append(c.retract, name)
	c.mu.Unlock()
	return c.Backend.Retract(ctx, name)
}

type failingConnect struct {
	transport.Transport
}

func (failingConnect) Connect(context.Context, string, transport.Group) (transport.Conn, error) {
	return nil, errors.New("connection refused")
}

func newResolver(backend discovery.Backend) *resolver.Resolver {
	return resolver.New(backend, resolver.Config{
		PollInterval: 5 * time.Millisecond,
		MaxInterval:  50 * time.Millisecond,
	}, zerolog.Nop())
}

func runWorkers(t *testing.T, total int, backend discovery.Backend) []transport.Group {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	tr := tcp.New(tcp.Config{}, zerolog.Nop())
	groups := make([]transport.Group, total)
	sessions := make([]*Session, total)
	for id := range total {
		s, err := New(models.WorkerIdentity{ID: models.WorkerID(id), TotalWorkers: total},
			Config{}, backend, tr, newResolver(backend))
		require.NoError(t, err)
		sessions[id] = s
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for id, s := range sessions {
		eg.Go(func() error {
			g, err := s.Run(egCtx)
			groups[id] = g
			return err
		})
	}
	require.NoError(t, eg.Wait())

	for _, s := range sessions {
		assert.Equal(t, groupbuilder.StateComplete, s.State())
	}
	return groups
}

func assertFormed(t *testing.T, groups []transport.Group) {
	t.Helper()
	total := len(groups)
	for id, g := range groups {
		require.NotNil(t, g)
		assert.Equal(t, total, g.Size())
		assert.Equal(t, id, g.Rank())
		assert.Equal(t, groups[0].Members(), g.Members())
		assert.NoError(t, g.Close())
	}
}

func TestFourWorkersInMemory(t *testing.T) {
	registry := inmemory.NewRegistry()
	groups := runWorkers(t, 4, registry)
	assertFormed(t, groups)
	assert.Empty(t, registry.Records())
}

func TestThreeWorkersFileBackend(t *testing.T) {
	dir := t.TempDir()
	backend, err := file.NewBackend(dir)
	require.NoError(t, err)
	groups := runWorkers(t, 3, backend)
	assertFormed(t, groups)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	_, err = os.Stat(filepath.Join(dir, discovery.DefaultName))
	assert.True(t, os.IsNotExist(err))
}

func TestSingleWorker(t *testing.T) {
	backend := &countingBackend{Backend: inmemory.NewRegistry()}
	rec := metrics.NewRecorder()
	s, err := New(models.WorkerIdentity{ID: 0, TotalWorkers: 1}, Config{}, backend,
		tcp.New(tcp.Config{}, zerolog.Nop()), newResolver(backend), WithMetrics(rec))
	require.NoError(t, err)

	g, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, g.Size())
	assert.Equal(t, 0, g.Rank())
	assert.NoError(t, g.Close())

	assert.Equal(t, []string{discovery.DefaultName}, backend.publish)
	assert.Equal(t, []string{discovery.DefaultName}, backend.retract)
	assert.Equal(t, 1, rec.Counter(metrics.SessionComplete))
}

func TestConnectFailureOnMember(t *testing.T) {
	registry := inmemory.NewRegistry()
	ctx := context.Background()
	require.NoError(t, registry.Publish(ctx, discovery.DefaultName, "tcp://127.0.0.1:40123"))
	require.NoError(t, registry.Publish(ctx, discovery.TurnName(discovery.DefaultName, 2), "tcp://127.0.0.1:40123"))

	backend := &countingBackend{Backend: registry}
	notifier := events.NewNotifier(16)
	rec := metrics.NewRecorder()
	s, err := New(models.WorkerIdentity{ID: 2, TotalWorkers: 4}, Config{}, backend,
		failingConnect{Transport: tcp.New(tcp.Config{}, zerolog.Nop())}, newResolver(backend),
		WithNotifier(notifier), WithMetrics(rec))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.Run(ctx)
		done <- err
	}()

	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not give up after connect failure")
	}
	require.ErrorIs(t, err, models.ErrTransportFailure)
	assert.Equal(t, groupbuilder.StateFailed, s.State())
	assert.Empty(t, backend.publish)
	assert.Empty(t, backend.retract)
	assert.Equal(t, 1, rec.Counter(metrics.SessionFailed))

	notifier.Close()
	var kinds []events.Kind
	for {
		select {
		case e := <-notifier.GetEventChan():
			assert.Equal(t, s.ID(), e.Session)
			kinds = append(kinds, e.Kind)
			continue
		default:
		}
		break
	}
	assert.Equal(t, []events.Kind{events.KindStarted, events.KindFailed}, kinds)
}

func TestPublishConflict(t *testing.T) {
	registry := inmemory.NewRegistry()
	ctx := context.Background()
	require.NoError(t, registry.Publish(ctx, discovery.DefaultName, "tcp://10.0.0.1:1"))

	s, err := New(models.WorkerIdentity{ID: 0, TotalWorkers: 2}, Config{}, registry,
		tcp.New(tcp.Config{}, zerolog.Nop()), newResolver(registry))
	require.NoError(t, err)

	_, err = s.Run(ctx)
	require.ErrorIs(t, err, models.ErrPublishConflict)
	assert.Equal(t, groupbuilder.StateFailed, s.State())

	endpoint, err := registry.Resolve(ctx, discovery.DefaultName)
	require.NoError(t, err)
	assert.Equal(t, "tcp://10.0.0.1:1", endpoint)
}

func TestRootCancelledReleasesListener(t *testing.T) {
	backend := &countingBackend{Backend: inmemory.NewRegistry()}
	s, err := New(models.WorkerIdentity{ID: 0, TotalWorkers: 3}, Config{Name: "job.port"}, backend,
		tcp.New(tcp.Config{}, zerolog.Nop()), newResolver(backend))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = s.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, groupbuilder.StateFailed, s.State())

	assert.Equal(t, []string{"job.port", "job.port.turn-1"}, backend.publish)
	assert.ElementsMatch(t, []string{"job.port", "job.port.turn-1"}, backend.retract)
}

func TestMemberResolveTimeout(t *testing.T) {
	registry := inmemory.NewRegistry()
	res := resolver.New(registry, resolver.Config{PollInterval: 5 * time.Millisecond, Timeout: 50 * time.Millisecond}, zerolog.Nop())
	s, err := New(models.WorkerIdentity{ID: 1, TotalWorkers: 2}, Config{}, registry,
		tcp.New(tcp.Config{}, zerolog.Nop()), res)
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	require.ErrorIs(t, err, models.ErrTimedOut)
	assert.Equal(t, groupbuilder.StateFailed, s.State())
}

func TestNewRejectsInvalidIdentity(t *testing.T) {
	registry := inmemory.NewRegistry()
	_, err := New(models.WorkerIdentity{ID: 3, TotalWorkers: 3}, Config{}, registry,
		tcp.New(tcp.Config{}, zerolog.Nop()), newResolver(registry))
	require.ErrorIs(t, err, models.ErrInvalidIdentity)
}

func TestSlowJoinerDoesNotTimeOutLaterTurns(t *testing.T) {
	const total = 3
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	registry := inmemory.NewRegistry()
	tr := tcp.New(tcp.Config{}, zerolog.Nop())
	cfg := resolver.Config{PollInterval: 5 * time.Millisecond, Timeout: 150 * time.Millisecond}

	sessions := make([]*Session, total)
	for id := range total {
		s, err := New(models.WorkerIdentity{ID: models.WorkerID(id), TotalWorkers: total},
			Config{}, registry, tr, resolver.New(registry, cfg, zerolog.Nop()))
		require.NoError(t, err)
		sessions[id] = s
	}
	// worker 2 resolves the endpoint right away, its turn comes only after
	// worker 1 shows up, well past the resolve timeout
	delays := []time.Duration{0, 300 * time.Millisecond, 20 * time.Millisecond}

	groups := make([]transport.Group, total)
	eg, egCtx := errgroup.WithContext(ctx)
	for id, s := range sessions {
		eg.Go(func() error {
			time.Sleep(delays[id])
			g, err := s.Run(egCtx)
			groups[id] = g
			return err
		})
	}
	require.NoError(t, eg.Wait())
	assertFormed(t, groups)
	assert.Empty(t, registry.Records())
}
