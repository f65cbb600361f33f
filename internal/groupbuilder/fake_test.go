package groupbuilder

import (
	"context"
	"sync"

	"github.com/Sh00ty/rendezvous/internal/events"
	"github.com/Sh00ty/rendezvous/internal/models"
	"github.com/Sh00ty/rendezvous/internal/transport"
)

type fakeGroup struct {
	self   models.WorkerID
	rank   int
	size   int
	closed bool
}

func (g *fakeGroup) Self() models.WorkerID { return g.self }
func (g *fakeGroup) Rank() int             { return g.rank }
func (g *fakeGroup) Size() int             { return g.size }
func (g *fakeGroup) Close() error {
	g.closed = true
	return nil
}

func (g *fakeGroup) Members() []models.WorkerID {
	members := make([]models.WorkerID, g.size)
	for i := range members {
		members[i] = models.WorkerID(i)
	}
	return members
}

type fakeConn struct {
	peer   models.WorkerID
	closed bool
}

func (c *fakeConn) Peer() models.WorkerID { return c.peer }
func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

type fakePort struct{}

func (fakePort) Endpoint() string { return "tcp://127.0.0.1:4000" }
func (fakePort) Close() error     { return nil }

// fakeTransport admits peers in id order unless told otherwise.
type fakeTransport struct {
	connectErr error
	acceptErr  error
	mergeErr   error
	// acceptPeer overrides the peer of the next accept when not nil
	acceptPeer *models.WorkerID
	// mergeSkew is added to the size of every merged group
	mergeSkew int

	accepts  int
	connects int
	groups   []*fakeGroup
}

func (f *fakeTransport) OpenPort(context.Context) (transport.Port, error) {
	return fakePort{}, nil
}

func (f *fakeTransport) Singleton(self models.WorkerID) transport.Group {
	g := &fakeGroup{self: self, size: 1}
	f.groups = append(f.groups, g)
	return g
}

func (f *fakeTransport) Accept(_ context.Context, _ transport.Port, group transport.Group) (transport.Conn, error) {
	f.accepts++
	if f.acceptErr != nil {
		return nil, f.acceptErr
	}
	peer := models.WorkerID(group.Size())
	if f.acceptPeer != nil {
		peer = *f.acceptPeer
	}
	return &fakeConn{peer: peer}, nil
}

func (f *fakeTransport) Connect(context.Context, string, transport.Group) (transport.Conn, error) {
	f.connects++
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	return &fakeConn{peer: models.RootWorker}, nil
}

func (f *fakeTransport) Merge(_ context.Context, group transport.Group, conn transport.Conn, high bool) (transport.Group, error) {
	if f.mergeErr != nil {
		return nil, f.mergeErr
	}
	g := &fakeGroup{self: group.Self(), rank: group.Rank(), size: group.Size() + 1 + f.mergeSkew}
	if high {
		g.rank = int(group.Self())
		g.size = int(group.Self()) + 1 + f.mergeSkew
	}
	f.groups = append(f.groups, g)
	return g, nil
}

type fakeTurnstile struct {
	admitted []int
	released []int
	admitErr error
}

func (t *fakeTurnstile) Admit(_ context.Context, step int) error {
	if t.admitErr != nil {
		return t.admitErr
	}
	t.admitted = append(t.admitted, step)
	return nil
}

func (t *fakeTurnstile) Release(_ context.Context, step int) error {
	t.released = append(t.released, step)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []events.Event
}

func (n *recordingNotifier) Notify(e events.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) kinds() []events.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]events.Kind, 0, len(n.events))
	for _, e := range n.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

// stalledNotifier blocks every Notify until release is closed, like a
// notifier with a full buffer in front of a stuck sink.
type stalledNotifier struct {
	entered chan events.Kind
	release chan struct{}
}

func (n *stalledNotifier) Notify(e events.Event) {
	n.entered <- e.Kind
	<-n.release
}
