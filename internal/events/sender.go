package events

import (
	"context"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
)

type Sink interface {
	// Send returns how many events from the head of the batch were
	// delivered.
	Send(ctx context.Context, events []Event) (int, error)
}

type Sender struct {
	events    <-chan Event
	done      <-chan struct{}
	sink      Sink
	ttlTicker *time.Ticker
	log       zerolog.Logger

	unsentGuard sync.Mutex
	unsent      []Event
}

func NewSender(notifier *ChanNotifyer, sink Sink, retryTimeout time.Duration, logger zerolog.Logger) *Sender {
	if retryTimeout <= 0 {
		retryTimeout = time.Second
	}
	return &Sender{
		events:    notifier.GetEventChan(),
		done:      notifier.Done(),
		sink:      sink,
		ttlTicker: time.NewTicker(retryTimeout),
		log:       logger.With().Str("component", "events-sender").Logger(),
		unsent:    make([]Event, 0),
	}
}

// Run delivers events until ctx is done or the notifier is closed. On close
// it drains what is buffered and makes one last attempt with the unsent
// queue.
func (s *Sender) Run(ctx context.Context) {
	defer s.ttlTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ttlTicker.C:
			s.sendUnsent(ctx)
		case event := <-s.events:
			s.send(ctx, event)
		case <-s.done:
			s.drain(ctx)
			return
		}
	}
}

func (s *Sender) drain(ctx context.Context) {
	for {
		select {
		case event := <-s.events:
			s.send(ctx, event)
		default:
			s.sendUnsent(ctx)
			return
		}
	}
}

func (s *Sender) send(ctx context.Context, event Event) {
	err := retry.Do(
		func() error {
			_, err := s.sink.Send(ctx, []Event{event})
			return err
		},
		retry.Attempts(3),
		retry.Context(ctx),
		retry.Delay(10*time.Millisecond),
	)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to send event, put it into unsent queue")
		s.unsentGuard.Lock()
		s.unsent = append(s.unsent, event)
		s.unsentGuard.Unlock()
	}
}

func (s *Sender) sendUnsent(ctx context.Context) {
	s.unsentGuard.Lock()
	defer s.unsentGuard.Unlock()

	if len(s.unsent) == 0 {
		return
	}
	done, err := s.sink.Send(ctx, s.unsent)
	if err != nil {
		s.log.Warn().Err(err).Msgf("failed to send unsent events: done %d", done)
		s.unsent = append(s.unsent[:0], s.unsent[done:]...)
		return
	}
	s.unsent = s.unsent[:0]
}

func (s *Sender) Unsent() int {
	s.unsentGuard.Lock()
	defer s.unsentGuard.Unlock()
	return len(s.unsent)
}
