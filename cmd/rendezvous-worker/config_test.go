package main

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/rendezvous/internal/discovery/file"
	"github.com/Sh00ty/rendezvous/internal/models"
)

func TestLoggerLevelFromString(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, loggerLevelFromString("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, loggerLevelFromString("warn"))
	assert.Equal(t, zerolog.InfoLevel, loggerLevelFromString(""))
}

func TestNewBackendFile(t *testing.T) {
	dir := t.TempDir()
	backend, closeBackend, err := newBackend(context.Background(), Config{DiscoveryBackend: "file", DiscoveryDir: dir})
	require.NoError(t, err)
	defer closeBackend()

	fb, ok := backend.(*file.Backend)
	require.True(t, ok)
	assert.Equal(t, dir, fb.Dir())
}

func TestNewBackendValidation(t *testing.T) {
	for _, name := range []string{"etcd", "nameserver", "zookeeper"} {
		_, _, err := newBackend(context.Background(), Config{DiscoveryBackend: name})
		assert.Error(t, err, name)
	}
}

func TestRunSingleWorker(t *testing.T) {
	cfg := Config{
		WorkerID:         0,
		TotalWorkers:     1,
		DiscoveryBackend: "file",
		DiscoveryDir:     t.TempDir(),
	}
	require.NoError(t, run(context.Background(), cfg))
}

func TestRunInvalidIdentity(t *testing.T) {
	err := run(context.Background(), Config{WorkerID: 2, TotalWorkers: 2})
	require.True(t, errors.Is(err, models.ErrInvalidIdentity))
}
