package listener

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/rendezvous/internal/discovery/inmemory"
	"github.com/Sh00ty/rendezvous/internal/models"
	"github.com/Sh00ty/rendezvous/internal/transport"
)

type fakePort struct {
	endpoint string
	closes   int
}

func (p *fakePort) Endpoint() string { return p.endpoint }

func (p *fakePort) Close() error {
	p.closes++
	return nil
}

type fakeOpener struct {
	ports []*fakePort
	err   error
}

func (o *fakeOpener) OpenPort(ctx context.Context) (transport.Port, error) {
	if o.err != nil {
		return nil, o.err
	}
	p := &fakePort{endpoint: "tcp://127.0.0.1:40123"}
	o.ports = append(o.ports, p)
	return p, nil
}

type countingPublisher struct {
	*inmemory.Registry
	retracts int
}

func (p *countingPublisher) Retract(ctx context.Context, name string) error {
	p.retracts++
	return p.Registry.Retract(ctx, name)
}

func TestOpenPublishesAndCloseRetracts(t *testing.T) {
	ctx := context.Background()
	reg := &countingPublisher{Registry: inmemory.NewRegistry()}
	opener := &fakeOpener{}
	l := New(reg, opener, zerolog.Nop())

	h, err := l.Open(ctx, "server.port")
	require.NoError(t, err)
	require.Equal(t, "tcp://127.0.0.1:40123", h.Endpoint())

	endpoint, err := reg.Resolve(ctx, "server.port")
	require.NoError(t, err)
	require.Equal(t, h.Endpoint(), endpoint)

	require.NoError(t, h.Close(ctx))
	_, err = reg.Resolve(ctx, "server.port")
	require.ErrorIs(t, err, models.ErrNotFound)
	require.Equal(t, 1, opener.ports[0].closes)

	err = h.Close(ctx)
	require.ErrorIs(t, err, models.ErrDoubleClose)
	require.Equal(t, 1, reg.retracts, "double close must not retract again")
	require.Equal(t, 1, opener.ports[0].closes, "double close must not close the port again")
}

func TestOpenConflict(t *testing.T) {
	ctx := context.Background()
	reg := &countingPublisher{Registry: inmemory.NewRegistry()}
	require.NoError(t, reg.Publish(ctx, "server.port", "tcp://other:1"))

	opener := &fakeOpener{}
	_, err := New(reg, opener, zerolog.Nop()).Open(ctx, "server.port")
	require.ErrorIs(t, err, models.ErrPublishConflict)
	require.ErrorIs(t, err, models.ErrAlreadyPublished)
	require.Equal(t, 1, opener.ports[0].closes, "port of a failed open must be released")

	endpoint, err := reg.Resolve(ctx, "server.port")
	require.NoError(t, err)
	require.Equal(t, "tcp://other:1", endpoint)
	require.Zero(t, reg.retracts)
}

func TestOpenPortFailure(t *testing.T) {
	ctx := context.Background()
	reg := &countingPublisher{Registry: inmemory.NewRegistry()}

	_, err := New(reg, &fakeOpener{err: errors.New("address in use")}, zerolog.Nop()).Open(ctx, "server.port")
	require.ErrorIs(t, err, models.ErrTransportFailure)
	require.Empty(t, reg.Records())
}
