// Package worker exposes one build machine over HTTP: it accepts a task
// when idle, reports ticket status from the result store, and serves the
// editable project file.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"anvil/internal/builder"
	"anvil/internal/executor"
	"anvil/internal/logger"
	"anvil/internal/resultstore"
	"anvil/model"
)

// ErrUnknownProject is returned for a task or project read naming a project
// this worker is not configured with.
var ErrUnknownProject = errors.New("unknown project")

type Service struct {
	workerID string
	projects builder.Projects
	store    resultstore.Store
	exec     *executor.Executor
}

func NewService(workerID string, projects builder.Projects, store resultstore.Store, exec *executor.Executor) *Service {
	return &Service{workerID: workerID, projects: projects, store: store, exec: exec}
}

// AcceptTask admits req if the worker is idle. The returned response is
// only sent once the running record for the ticket is readable, so a client
// can poll immediately after. Tickets arrive pre-issued from the balancer;
// direct callers get one minted here.
func (s *Service) AcceptTask(ctx context.Context, req model.CreateTaskRequest) (model.CreateTaskResponse, error) {
	project, ok := s.projects.Get(req.Project)
	if !ok {
		return model.CreateTaskResponse{}, fmt.Errorf("%w: %q", ErrUnknownProject, req.Project)
	}

	ticket := req.Ticket
	if ticket == "" {
		ticket = uuid.NewString()
	}

	if err := s.exec.Submit(ctx, ticket, project, req.Patches); err != nil {
		return model.CreateTaskResponse{}, err
	}
	return model.CreateTaskResponse{Ticket: ticket, WorkerID: s.workerID}, nil
}

// PollStatus reads the whole record for ticket. It never touches the
// execution lock, so polling stays responsive while a build runs.
func (s *Service) PollStatus(ctx context.Context, ticket string) (model.ResultRecord, error) {
	return s.store.Get(ctx, ticket)
}

// Project returns the editable source file for name.
func (s *Service) Project(ctx context.Context, name string) (model.ProjectResponse, error) {
	project, ok := s.projects.Get(name)
	if !ok {
		return model.ProjectResponse{}, fmt.Errorf("%w: %q", ErrUnknownProject, name)
	}

	contents, err := os.ReadFile(project.EditorFilePath())
	if err != nil {
		return model.ProjectResponse{}, fmt.Errorf("unable to read editor file for %s: %w", name, err)
	}
	return model.ProjectResponse{
		Filename:    project.EditorFile,
		ProjectName: project.Name,
		Contents:    string(contents),
	}, nil
}

// Busy reports whether a task currently holds the worker.
func (s *Service) Busy() bool {
	return s.exec.Lock.Active()
}

// HeldBy returns the ticket of the in-flight task, empty when idle.
func (s *Service) HeldBy() string {
	return s.exec.Lock.Ticket()
}

// RunSweeper expires old terminal records on a fixed cadence until ctx is
// done. Running records are never swept, whatever their age.
func (s *Service) RunSweeper(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.store.Sweep(ctx, ttl)
			if err != nil {
				logger.Log.Error().Err(err).Msg("result sweep failed")
				continue
			}
			if removed > 0 {
				logger.Log.Info().Int("removed", removed).Msg("swept expired results")
			}
		}
	}
}
