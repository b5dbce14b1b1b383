package balancer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"anvil/internal/balancer/registry"
	"anvil/internal/logger"
	"anvil/internal/tracer"
	"anvil/model"
)

// Selector picks the worker to try first for a new task. The balancer walks
// the remaining workers in order from there, so a selector only shapes the
// starting point.
type Selector interface {
	Next(n int) int
}

type roundRobin struct {
	cursor atomic.Uint64
}

func (r *roundRobin) Next(n int) int {
	return int((r.cursor.Add(1) - 1) % uint64(n))
}

func NewRoundRobin() Selector {
	return &roundRobin{}
}

type Balancer struct {
	registry registry.Registry
	workers  []*WorkerClient
	byURL    map[string]*WorkerClient
	selector Selector
}

func New(reg registry.Registry, workerURLs []string, selector Selector) (*Balancer, error) {
	if len(workerURLs) == 0 {
		return nil, fmt.Errorf("at least one worker is required")
	}
	b := &Balancer{
		registry: reg,
		byURL:    make(map[string]*WorkerClient, len(workerURLs)),
		selector: selector,
	}
	for _, url := range workerURLs {
		client := NewWorkerClient(url)
		b.workers = append(b.workers, client)
		b.byURL[client.URL()] = client
	}
	return b, nil
}

// CreateTask issues a ticket and offers the task to workers starting at the
// selector's pick, skipping busy ones. It never parks a task to wait for a
// worker: when every worker is busy or unreachable the client gets the
// refusal and decides what to do.
func (b *Balancer) CreateTask(ctx context.Context, req model.CreateTaskRequest) (model.CreateTaskResponse, error) {
	ctx, span := tracer.GetTracer().Start(ctx, "balancer.CreateTask")
	defer span.End()

	task := model.Task{
		Ticket:  uuid.NewString(),
		Project: req.Project,
		UserID:  req.UserID,
		Patches: req.Patches,
	}

	sawBusy := false
	start := b.selector.Next(len(b.workers))
	for i := 0; i < len(b.workers); i++ {
		worker := b.workers[(start+i)%len(b.workers)]

		resp, err := worker.CreateTask(ctx, task)
		if err == nil {
			task.AssignedWorker = resp.WorkerID
			b.record(ctx, task, worker.URL())
			return resp, nil
		}
		if errors.Is(err, model.ErrWorkerBusy) {
			sawBusy = true
			continue
		}
		logger.Log.Warn().Err(err).Str("worker", worker.URL()).Msg("worker did not accept task")
	}

	if sawBusy {
		return model.CreateTaskResponse{}, model.ErrWorkerBusy
	}
	return model.CreateTaskResponse{}, model.ErrNoWorkerAvailable
}

// record remembers which worker owns the ticket. A registry write failure
// is logged, not returned: the task is already running and the client holds
// a valid ticket either way. The entry starts as created; GetStatus updates
// it when it observes a terminal status.
func (b *Balancer) record(ctx context.Context, task model.Task, workerURL string) {
	err := b.registry.Insert(ctx, model.RegistryEntry{
		Ticket:    task.Ticket,
		WorkerID:  task.AssignedWorker,
		WorkerURL: workerURL,
		Project:   task.Project,
		UserID:    task.UserID,
		Status:    model.StatusCreated,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		logger.Log.Error().Err(err).Str("ticket", task.Ticket).Msg("unable to record ticket owner")
		return
	}
	logger.Log.Info().Str("ticket", task.Ticket).Str("worker", task.AssignedWorker).Str("project", task.Project).Msg("task dispatched")
}

// GetStatus relays the owning worker's record unchanged. The balancer adds
// no interpretation of its own; it only notes terminal statuses so the
// registry can expire the entry later.
func (b *Balancer) GetStatus(ctx context.Context, ticket string) (model.StatusResponse, error) {
	ctx, span := tracer.GetTracer().Start(ctx, "balancer.GetStatus")
	defer span.End()

	entry, err := b.registry.Lookup(ctx, ticket)
	if err != nil {
		return model.StatusResponse{}, err
	}

	worker, ok := b.byURL[entry.WorkerURL]
	if !ok {
		// Registry survived a reconfiguration that removed the worker.
		worker = NewWorkerClient(entry.WorkerURL)
	}

	status, err := worker.Status(ctx, ticket)
	if err != nil {
		tracer.RecordSpanError(span, err)
		return model.StatusResponse{}, err
	}

	if status.Status.Terminal() && entry.Status != status.Status {
		if err := b.registry.MarkStatus(ctx, ticket, status.Status); err != nil {
			logger.Log.Warn().Err(err).Str("ticket", ticket).Msg("unable to mark terminal status")
		}
	}
	return status, nil
}

// GetProject serves the editable file from the first worker that has the
// project configured.
func (b *Balancer) GetProject(ctx context.Context, name string) (model.ProjectResponse, error) {
	var lastErr error
	for _, worker := range b.workers {
		resp, err := worker.Project(ctx, name)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return model.ProjectResponse{}, lastErr
}

// HealthyWorkers counts workers currently able to take a task.
func (b *Balancer) HealthyWorkers(ctx context.Context) int {
	n := 0
	for _, worker := range b.workers {
		if worker.Healthy(ctx) {
			n++
		}
	}
	return n
}

// RunSweeper expires old registry entries on a fixed cadence until ctx is
// done.
func (b *Balancer) RunSweeper(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := b.registry.Sweep(ctx, ttl)
			if err != nil {
				logger.Log.Error().Err(err).Msg("registry sweep failed")
				continue
			}
			if removed > 0 {
				logger.Log.Info().Int("removed", removed).Msg("swept expired registry entries")
			}
		}
	}
}
