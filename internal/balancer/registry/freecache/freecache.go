// Package freecache is the default in-memory registry. Entries carry a TTL
// so a crashed client's tickets age out without a sweeper.
package freecache

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"time"

	fc "github.com/coocood/freecache"

	"anvil/internal/balancer/registry"
	"anvil/model"
)

type FreeCacheRegistry struct {
	cache *fc.Cache
	ttl   int // seconds
}

func NewFreeCacheRegistry(sizeBytes int, ttlSeconds int) registry.Registry {
	return &FreeCacheRegistry{
		cache: fc.NewCache(sizeBytes),
		ttl:   ttlSeconds,
	}
}

func (r *FreeCacheRegistry) Insert(ctx context.Context, entry model.RegistryEntry) error {
	if entry.Ticket == "" {
		return fmt.Errorf("ticket cannot be empty")
	}
	data, err := encode(entry)
	if err != nil {
		return err
	}
	return r.cache.Set([]byte(entry.Ticket), data, r.ttl)
}

func (r *FreeCacheRegistry) Lookup(ctx context.Context, ticket string) (model.RegistryEntry, error) {
	data, err := r.cache.Get([]byte(ticket))
	if err != nil {
		return model.RegistryEntry{}, model.ErrUnknownTicket
	}

	var entry model.RegistryEntry
	if err := decode(data, &entry); err != nil {
		return model.RegistryEntry{}, err
	}
	return entry, nil
}

func (r *FreeCacheRegistry) MarkStatus(ctx context.Context, ticket string, status model.TaskStatus) error {
	entry, err := r.Lookup(ctx, ticket)
	if err != nil {
		return err
	}
	entry.Status = status
	return r.Insert(ctx, entry)
}

// Sweep is a no-op; freecache evicts by entry TTL.
func (r *FreeCacheRegistry) Sweep(ctx context.Context, ttl time.Duration) (int, error) {
	return 0, nil
}

func (r *FreeCacheRegistry) Close() error {
	r.cache.Clear()
	return nil
}

func encode(entry model.RegistryEntry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte, out *model.RegistryEntry) error {
	return gob.NewDecoder(bytes.NewBuffer(data)).Decode(out)
}
