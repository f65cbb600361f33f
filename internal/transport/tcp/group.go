package tcp

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Sh00ty/rendezvous/internal/models"
	"github.com/Sh00ty/rendezvous/internal/transport"
)

var (
	_ transport.Group = (*group)(nil)
	_ transport.Conn  = (*pending)(nil)
)

var errRetired = errors.New("group was retired by a merge")

// group is a star: rank 0 holds a link to every other member, every other
// member holds one link to rank 0. Links are handed over to the group a
// merge produces, so a retired group never closes them.
type group struct {
	self    models.WorkerID
	members []models.WorkerID
	// rank 0 only, indexed by rank, links[0] is always nil
	links []*link
	// every rank but 0
	uplink *link

	retired bool
	closed  bool
}

func singleton(self models.WorkerID) *group {
	return &group{
		self:    self,
		members: []models.WorkerID{self},
		links:   []*link{nil},
	}
}

func (g *group) Self() models.WorkerID {
	return g.self
}

func (g *group) Rank() int {
	return slices.Index(g.members, g.self)
}

func (g *group) Size() int {
	return len(g.members)
}

func (g *group) Members() []models.WorkerID {
	return slices.Clone(g.members)
}

func (g *group) String() string {
	return fmt.Sprintf("group{self=%d, rank=%d, size=%d}", g.self, g.Rank(), g.Size())
}

func (g *group) Close() error {
	if g.retired || g.closed {
		return nil
	}
	g.closed = true

	var errs []error
	if g.uplink != nil {
		errs = append(errs, g.uplink.close())
	}
	for _, l := range g.links {
		if l != nil {
			errs = append(errs, l.close())
		}
	}
	return errors.Join(errs...)
}

func (g *group) usable() error {
	if g.retired {
		return errRetired
	}
	if g.closed {
		return errors.New("group is closed")
	}
	return nil
}

// pending is the transport.Conn of one merge step. The root and the joiner
// hold the real link, the other members only know who is joining.
type pending struct {
	peer  models.WorkerID
	link  *link
	owner *group
	done  bool
}

func (p *pending) Peer() models.WorkerID {
	return p.peer
}

func (p *pending) Close() error {
	if p.done {
		return nil
	}
	p.done = true
	if p.link != nil {
		return p.link.close()
	}
	return nil
}
