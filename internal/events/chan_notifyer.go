package events

import (
	"sync/atomic"
)

type ChanNotifyer struct {
	eventChan chan Event
	closed    atomic.Bool
	close     chan struct{}
}

func NewNotifier(buf int) *ChanNotifyer {
	return &ChanNotifyer{
		eventChan: make(chan Event, buf),
		close:     make(chan struct{}),
	}
}

// Notify blocks while the buffer is full and the notifier is open.
func (n *ChanNotifyer) Notify(event Event) {
	if n.closed.Load() {
		return
	}
	select {
	case n.eventChan <- event:
	case <-n.close:
	}
}

func (n *ChanNotifyer) GetEventChan() <-chan Event {
	return n.eventChan
}

// Close stops accepting events. The channel itself is left open so a
// concurrent Notify never sends on a closed channel, readers stop on Done.
func (n *ChanNotifyer) Close() {
	if n.closed.Swap(true) {
		return
	}
	close(n.close)
}

func (n *ChanNotifyer) Done() <-chan struct{} {
	return n.close
}
