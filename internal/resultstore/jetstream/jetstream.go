// Package jetstream backs the result store with a NATS JetStream object
// store bucket. The bucket TTL ages out terminal records; running records
// are re-put by the background unit before it exits, so in practice the TTL
// only needs to exceed the longest build.
package jetstream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"anvil/internal/component/jetstream"
	"anvil/internal/config"
	"anvil/internal/logger"
	"anvil/internal/resultstore"
	"anvil/internal/tracer"
	"anvil/model"
)

type JetStreamStore struct {
	connection *nats.Conn
	bucket     nats.ObjectStore
}

var (
	jss       *JetStreamStore
	once      sync.Once
	initError error
)

func NewJetStreamStore() (resultstore.Store, error) {
	once.Do(func() {
		nc, err := jetstream.NewJetStreamClient()
		if err != nil {
			initError = err
			return
		}
		cfg, err := config.GetNatsConfig()
		if err != nil {
			initError = err
			return
		}
		js, err := nc.JetStream()
		if err != nil {
			initError = err
			return
		}
		os, err := createOrGetObjectStore(js, cfg.BUCKET_NAME, cfg.TTL, cfg.BUCKET_SIZE_BYTES)
		if err != nil {
			initError = err
			return
		}
		jss = &JetStreamStore{
			connection: nc,
			bucket:     os,
		}
	})
	return jss, initError
}

func (s *JetStreamStore) Put(ctx context.Context, rec model.ResultRecord) error {
	_, span := tracer.GetTracer().Start(ctx, "Nats/Put")
	defer span.End()

	if rec.Ticket == "" {
		err := fmt.Errorf("ticket cannot be empty")
		tracer.RecordSpanError(span, err)
		return err
	}
	span.AddEvent("nats.context",
		trace.WithAttributes(attribute.String("ticket", rec.Ticket)),
	)

	b, err := msgpack.Marshal(rec)
	if err != nil {
		err = fmt.Errorf("failed to marshal record for ticket %s: %w", rec.Ticket, err)
		tracer.RecordSpanError(span, err)
		return err
	}

	if _, err := s.bucket.PutBytes(rec.Ticket, b); err != nil {
		tracer.RecordSpanError(span, err)
		return err
	}
	return nil
}

func (s *JetStreamStore) Get(ctx context.Context, ticket string) (model.ResultRecord, error) {
	_, span := tracer.GetTracer().Start(ctx, "Nats/Get")
	defer span.End()

	if ticket == "" {
		err := fmt.Errorf("ticket cannot be empty")
		tracer.RecordSpanError(span, err)
		return model.ResultRecord{}, err
	}
	span.AddEvent("nats.context",
		trace.WithAttributes(attribute.String("ticket", ticket)),
	)

	b, err := s.bucket.GetBytes(ticket)
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
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

// Sweep is a no-op: the bucket TTL ages records out server-side.
func (s *JetStreamStore) Sweep(ctx context.Context, ttl time.Duration) (int, error) {
	return 0, nil
}

func (s *JetStreamStore) Close() error {
	if err := s.connection.Drain(); err != nil {
		logger.Log.Error().Err(err).Msg("unable to drain nats connection")
		s.connection.Close()
	}
	return nil
}

func createOrGetObjectStore(js nats.JetStreamContext, bucket string, ttlSeconds int, bucketSizeBytes int) (nats.ObjectStore, error) {
	os, err := js.ObjectStore(bucket)
	if err != nil {
		if err == nats.ErrStreamNotFound {
			os, err = js.CreateObjectStore(&nats.ObjectStoreConfig{
				Bucket:      bucket,
				Description: "Task result records",
				TTL:         time.Duration(ttlSeconds) * time.Second,
				MaxBytes:    int64(bucketSizeBytes),
				Storage:     nats.FileStorage,
				Compression: false,
			})
			if err != nil {
				return nil, fmt.Errorf("could not create nats bucket: %v", err)
			}
			return os, nil
		}
		return nil, fmt.Errorf("error retrieving nats bucket instance: %v", err)
	}
	return os, nil
}
