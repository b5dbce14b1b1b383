// Package registry tracks which worker owns which ticket so status polls
// can be relayed to the right place.
package registry

import (
	"context"
	"time"

	"anvil/model"
)

// Registry is the balancer's ticket table. Lookup returns
// model.ErrUnknownTicket for tickets never inserted or already swept.
type Registry interface {
	Insert(ctx context.Context, entry model.RegistryEntry) error
	Lookup(ctx context.Context, ticket string) (model.RegistryEntry, error)
	// MarkStatus records the last status relayed for a ticket. Bookkeeping
	// only; the worker's record stays the source of truth.
	MarkStatus(ctx context.Context, ticket string, status model.TaskStatus) error
	// Sweep drops entries older than ttl. Implementations that expire
	// entries on their own return 0.
	Sweep(ctx context.Context, ttl time.Duration) (int, error)
	Close() error
}
