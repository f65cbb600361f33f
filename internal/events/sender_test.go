package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu       sync.Mutex
	failures int
	got      []Event
}

func (f *fakeSink) Send(_ context.Context, events []Event) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return 0, errors.New("broker unavailable")
	}
	f.got = append(f.got, events...)
	return len(events), nil
}

func (f *fakeSink) events() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.got...)
}

func TestSenderDeliversInOrder(t *testing.T) {
	notifier := NewNotifier(8)
	sink := &fakeSink{}
	sender := NewSender(notifier, sink, time.Hour, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		sender.Run(context.Background())
		close(done)
	}()

	for step := 1; step <= 3; step++ {
		notifier.Notify(Event{Session: "s", Kind: KindStep, Step: step})
	}
	notifier.Notify(Event{Session: "s", Kind: KindComplete, Size: 4})
	notifier.Close()
	<-done

	got := sink.events()
	require.Len(t, got, 4)
	for i := 0; i < 3; i++ {
		assert.Equal(t, i+1, got[i].Step)
	}
	assert.Equal(t, KindComplete, got[3].Kind)
}

func TestSenderRetriesThenQueues(t *testing.T) {
	notifier := NewNotifier(1)
	sink := &fakeSink{failures: 3}
	sender := NewSender(notifier, sink, time.Hour, zerolog.Nop())

	sender.send(context.Background(), Event{Kind: KindFailed})
	assert.Equal(t, 1, sender.Unsent())
	assert.Empty(t, sink.events())

	sender.sendUnsent(context.Background())
	assert.Equal(t, 0, sender.Unsent())
	assert.Len(t, sink.events(), 1)
}

func TestSenderRetrySucceeds(t *testing.T) {
	notifier := NewNotifier(1)
	sink := &fakeSink{failures: 2}
	sender := NewSender(notifier, sink, time.Hour, zerolog.Nop())

	sender.send(context.Background(), Event{Kind: KindStarted})
	assert.Equal(t, 0, sender.Unsent())
	assert.Len(t, sink.events(), 1)
}

func TestNotifyAfterClose(t *testing.T) {
	notifier := NewNotifier(0)
	notifier.Close()
	notifier.Close()
	notifier.Notify(Event{Kind: KindStep})
}

func TestEncodeMessages(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msgs, err := encodeMessages([]Event{{Session: "abc", Worker: 2, Kind: KindStep, Step: 2, Size: 3, Time: at}})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("abc"), msgs[0].Key)
	assert.Equal(t, at, msgs[0].Time)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Value, &decoded))
	assert.Equal(t, "step", decoded["kind"])
	assert.EqualValues(t, 2, decoded["worker"])
	assert.NotContains(t, decoded, "error")
}
