package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Sh00ty/rendezvous/internal/models"
	"github.com/Sh00ty/rendezvous/internal/transport"
)

type Publisher interface {
	Publish(ctx context.Context, name string, endpoint string) error
	Retract(ctx context.Context, name string) error
}

type PortOpener interface {
	OpenPort(ctx context.Context) (transport.Port, error)
}

type Listener struct {
	publisher Publisher
	opener    PortOpener
	log       zerolog.Logger
}

func New(publisher Publisher, opener PortOpener, logger zerolog.Logger) *Listener {
	return &Listener{
		publisher: publisher,
		opener:    opener,
		log:       logger.With().Str("component", "listener").Logger(),
	}
}

// Handle owns an open port and the record announcing it.
type Handle struct {
	name      string
	port      transport.Port
	publisher Publisher
	log       zerolog.Logger

	mu     sync.Mutex
	closed bool
}

func (l *Listener) Open(ctx context.Context, name string) (*Handle, error) {
	port, err := l.opener.OpenPort(ctx)
	if err != nil {
		return nil, models.CommCheck("open_port", models.RootWorker, err)
	}
	l.log.Info().Msgf("port opened on %s", port.Endpoint())

	err = l.publisher.Publish(ctx, name, port.Endpoint())
	if err != nil {
		closeErr := port.Close()
		if closeErr != nil {
			l.log.Error().Err(closeErr).Msg("failed to close port after failed publish")
		}
		if errors.Is(err, models.ErrAlreadyPublished) {
			return nil, fmt.Errorf("%w: %w", models.ErrPublishConflict, err)
		}
		return nil, fmt.Errorf("failed to publish endpoint: %w", err)
	}
	l.log.Info().Msgf("published %s as %s", port.Endpoint(), name)

	return &Handle{
		name:      name,
		port:      port,
		publisher: l.publisher,
		log:       l.log,
	}, nil
}

func (h *Handle) Name() string {
	return h.name
}

func (h *Handle) Port() transport.Port {
	return h.port
}

func (h *Handle) Endpoint() string {
	return h.port.Endpoint()
}

// Close retracts the record first so nobody resolves a port that is about
// to go away, then closes the port.
func (h *Handle) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return fmt.Errorf("close %s: %w", h.name, models.ErrDoubleClose)
	}
	h.closed = true

	h.log.Info().Msgf("closing port %s", h.port.Endpoint())
	var errs []error
	err := h.publisher.Retract(ctx, h.name)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to retract %s: %w", h.name, err))
	}
	err = h.port.Close()
	if err != nil {
		errs = append(errs, models.CommCheck("close_port", models.RootWorker, err))
	}
	return errors.Join(errs...)
}
