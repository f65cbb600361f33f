// Package transport defines the primitives group formation is built on.
// A Group is a set of merged workers, a Conn is a peer link that has been
// accepted or connected but not merged yet.
package transport

import (
	"context"

	"github.com/Sh00ty/rendezvous/internal/models"
)

type Port interface {
	Endpoint() string
	Close() error
}

type Conn interface {
	// Peer is the worker on the other side of the pending merge.
	Peer() models.WorkerID
	Close() error
}

type Group interface {
	Self() models.WorkerID
	Rank() int
	Size() int
	// Members are ordered by rank.
	Members() []models.WorkerID
	Close() error
}

type Transport interface {
	OpenPort(ctx context.Context) (Port, error)
	// Singleton is the group that contains only the local worker.
	Singleton(self models.WorkerID) Group
	// Accept is collective over group. Only rank 0 passes the port, the
	// other members learn about the accepted peer from it. A joiner whose
	// id is not the group size is rejected with models.ErrOutOfOrder.
	Accept(ctx context.Context, port Port, group Group) (Conn, error)
	Connect(ctx context.Context, endpoint string, self Group) (Conn, error)
	// Merge combines group and the group behind conn. The high side gets
	// the upper ranks. The group passed in is retired.
	Merge(ctx context.Context, group Group, conn Conn, high bool) (Group, error)
}
