package inmemory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/rendezvous/internal/models"
)

func TestRegistryPublishResolveRetract(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()

	_, err := reg.Resolve(ctx, "server.port")
	require.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, reg.Publish(ctx, "server.port", "tcp://127.0.0.1:40123"))

	endpoint, err := reg.Resolve(ctx, "server.port")
	require.NoError(t, err)
	require.Equal(t, "tcp://127.0.0.1:40123", endpoint)

	require.NoError(t, reg.Retract(ctx, "server.port"))

	_, err = reg.Resolve(ctx, "server.port")
	require.ErrorIs(t, err, models.ErrNotFound)
	require.ErrorIs(t, reg.Retract(ctx, "server.port"), models.ErrNotFound)
	require.Empty(t, reg.Records())
}

func TestRegistryPublishTwice(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()

	require.NoError(t, reg.Publish(ctx, "server.port", "tcp://a:1"))
	err := reg.Publish(ctx, "server.port", "tcp://b:2")
	require.ErrorIs(t, err, models.ErrAlreadyPublished)

	endpoint, err := reg.Resolve(ctx, "server.port")
	require.NoError(t, err)
	require.Equal(t, "tcp://a:1", endpoint, "second publish must not overwrite")

	require.NoError(t, reg.Retract(ctx, "server.port"))
	require.NoError(t, reg.Publish(ctx, "server.port", "tcp://b:2"))
}
