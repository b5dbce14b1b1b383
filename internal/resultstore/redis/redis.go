// Package redis backs the result store with Redis. Records are msgpack
// values with a server-side TTL, so Sweep has nothing to do.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"anvil/internal/resultstore"
	"anvil/internal/tracer"
	"anvil/model"
)

type RedisStore struct {
	client *redis.Client
	ttl    int // seconds
}

func NewRedisStore(client *redis.Client, ttlSeconds int) resultstore.Store {
	return &RedisStore{client: client, ttl: ttlSeconds}
}

func (s *RedisStore) Put(ctx context.Context, rec model.ResultRecord) error {
	ctx, span := tracer.GetTracer().Start(ctx, "Redis/Put")
	defer span.End()

	if rec.Ticket == "" {
		err := fmt.Errorf("ticket cannot be empty")
		tracer.RecordSpanError(span, err)
		return err
	}
	span.AddEvent("redis.context",
		trace.WithAttributes(attribute.String("ticket", rec.Ticket)),
	)

	b, err := msgpack.Marshal(rec)
	if err != nil {
		err = fmt.Errorf("failed to marshal record for ticket %s: %w", rec.Ticket, err)
		tracer.RecordSpanError(span, err)
		return err
	}

	ttl := time.Duration(s.ttl) * time.Second
	if rec.Status == model.StatusRunning {
		// Running records must survive until the background unit overwrites
		// them with a terminal state; only terminal records age out.
		ttl = 0
	}
	if err := s.client.Set(ctx, key(rec.Ticket), b, ttl).Err(); err != nil {
		tracer.RecordSpanError(span, err)
		return err
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, ticket string) (model.ResultRecord, error) {
	ctx, span := tracer.GetTracer().Start(ctx, "Redis/Get")
	defer span.End()

	if ticket == "" {
		err := fmt.Errorf("ticket cannot be empty")
		tracer.RecordSpanError(span, err)
		return model.ResultRecord{}, err
	}
	span.AddEvent("redis.context",
		trace.WithAttributes(attribute.String("ticket", ticket)),
	)

	b, err := s.client.Get(ctx, key(ticket)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.ResultRecord{}, model.ErrUnknownTicket
		}
		tracer.RecordSpanError(span, err)
		return model.ResultRecord{}, err
	}

	var rec model.ResultRecord
	if err := msgpack.Unmarshal(b, &rec); err != nil {
		err = fmt.Errorf("failed to unmarshal record for ticket %s: %w", ticket, err)
		tracer.RecordSpanError(span, err)
		return model.ResultRecord{}, err
	}
	return rec, nil
}

// Sweep is a no-op: Redis expires terminal records server-side.
func (s *RedisStore) Sweep(ctx context.Context, ttl time.Duration) (int, error) {
	return 0, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func key(ticket string) string {
	return fmt.Sprintf("result:%s", ticket)
}
