// Package resultstore defines the per-worker durable record of task
// outcomes, keyed by ticket. Writes overwrite the whole record; readers
// never observe a torn status/payload pair.
package resultstore

import (
	"context"
	"time"

	"anvil/model"
)

type Store interface {
	// Put creates or overwrites the record for its ticket.
	Put(ctx context.Context, rec model.ResultRecord) error
	// Get returns the whole record, or model.ErrUnknownTicket.
	Get(ctx context.Context, ticket string) (model.ResultRecord, error)
	// Sweep removes terminal records older than ttl and returns how many it
	// removed. Running records are never swept.
	Sweep(ctx context.Context, ttl time.Duration) (int, error)
	Close() error
}
