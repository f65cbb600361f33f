package discovery

import (
	"context"
	"fmt"
)

// DefaultName is the well-known name the root publishes its endpoint under.
const DefaultName = "server.port"

// Backend stores one endpoint string per name. Publish fails with
// models.ErrAlreadyPublished when the name is taken, Resolve and Retract
// fail with models.ErrNotFound when it is not.
type Backend interface {
	Publish(ctx context.Context, name string, endpoint string) error
	Resolve(ctx context.Context, name string) (string, error)
	Retract(ctx context.Context, name string) error
}

// TurnName is the record that admits worker step into the group.
func TurnName(name string, step int) string {
	return fmt.Sprintf("%s.turn-%d", name, step)
}
