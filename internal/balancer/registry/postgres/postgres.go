// Package postgres is the durable registry backend. It keeps ticket
// ownership across balancer restarts, which the in-memory backend cannot.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"anvil/internal/balancer/registry"
	"anvil/internal/tracer"
	"anvil/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	ticket      TEXT PRIMARY KEY,
	worker_id   TEXT NOT NULL,
	worker_url  TEXT NOT NULL DEFAULT '',
	project     TEXT NOT NULL,
	user_id     TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
)`

type PostgresRegistry struct {
	pool *pgxpool.Pool
}

func NewPostgresRegistry(ctx context.Context, connURL string) (registry.Registry, error) {
	cfg, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pg config: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.HealthCheckPeriod = 30 * time.Second

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure tasks table: %w", err)
	}

	return &PostgresRegistry{pool: pool}, nil
}

func (r *PostgresRegistry) Insert(ctx context.Context, entry model.RegistryEntry) error {
	ctx, span := tracer.GetTracer().Start(ctx, "Postgres/InsertTask")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO tasks (ticket, worker_id, worker_url, project, user_id, status, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		entry.Ticket, entry.WorkerID, entry.WorkerURL, entry.Project, entry.UserID, entry.Status, entry.CreatedAt,
	)
	if err != nil {
		tracer.RecordSpanError(span, err)
	}
	return err
}

func (r *PostgresRegistry) Lookup(ctx context.Context, ticket string) (model.RegistryEntry, error) {
	ctx, span := tracer.GetTracer().Start(ctx, "Postgres/LookupTask")
	defer span.End()

	var entry model.RegistryEntry
	err := r.pool.QueryRow(ctx,
		`SELECT ticket, worker_id, worker_url, project, user_id, status, created_at
		 FROM tasks WHERE ticket = $1`, ticket,
	).Scan(&entry.Ticket, &entry.WorkerID, &entry.WorkerURL, &entry.Project, &entry.UserID, &entry.Status, &entry.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.RegistryEntry{}, model.ErrUnknownTicket
	}
	if err != nil {
		tracer.RecordSpanError(span, err)
		return model.RegistryEntry{}, err
	}
	return entry, nil
}

func (r *PostgresRegistry) MarkStatus(ctx context.Context, ticket string, status model.TaskStatus) error {
	ctx, span := tracer.GetTracer().Start(ctx, "Postgres/MarkTaskStatus")
	defer span.End()

	tag, err := r.pool.Exec(ctx,
		`UPDATE tasks SET status = $1 WHERE ticket = $2`, status, ticket)
	if err != nil {
		tracer.RecordSpanError(span, err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUnknownTicket
	}
	return nil
}

// Sweep removes terminal rows older than ttl. Running rows stay until a
// relay observes their terminal status, however old they get.
func (r *PostgresRegistry) Sweep(ctx context.Context, ttl time.Duration) (int, error) {
	ctx, span := tracer.GetTracer().Start(ctx, "Postgres/SweepTasks")
	defer span.End()

	tag, err := r.pool.Exec(ctx,
		`DELETE FROM tasks WHERE status IN ($1,$2,$3) AND created_at < $4`,
		model.StatusComplete, model.StatusError, model.StatusTimeout,
		time.Now().UTC().Add(-ttl),
	)
	if err != nil {
		tracer.RecordSpanError(span, err)
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresRegistry) Close() error {
	r.pool.Close()
	return nil
}
