// Package executor runs one task at a time on a worker. Submit is the only
// synchronous step: it claims the lock and writes the running record, then
// hands off to a background goroutine so the caller returns immediately.
package executor

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"anvil/internal/builder"
	"anvil/internal/logger"
	"anvil/internal/resultstore"
	"anvil/internal/storage"
	"anvil/internal/tracer"
	"anvil/internal/worklock"
	"anvil/model"
)

type Executor struct {
	WorkerID   string
	ScratchDir string
	Lock       *worklock.Lock
	Store      resultstore.Store
	Runner     builder.Runner
	// Archive keeps a durable copy of success artifacts. Nil disables it.
	Archive storage.Storage
}

// Submit claims the worker for ticket and starts the build in the
// background. It returns model.ErrWorkerBusy without blocking when another
// task holds the worker, and only returns nil once the running record is
// readable by pollers.
func (e *Executor) Submit(ctx context.Context, ticket string, project builder.Project, patches []model.Patch) error {
	ctx, span := tracer.GetTracer().Start(ctx, "executor.Submit")
	defer span.End()

	if !e.Lock.TryAcquire(ticket) {
		return fmt.Errorf("worker %s is running %s: %w", e.WorkerID, e.Lock.Ticket(), model.ErrWorkerBusy)
	}

	running := model.ResultRecord{
		Ticket:    ticket,
		Status:    model.StatusRunning,
		Detail:    model.DetailRunning,
		WrittenAt: time.Now().UTC(),
	}
	if err := e.Store.Put(ctx, running); err != nil {
		e.Lock.Release()
		tracer.RecordSpanError(span, err)
		return fmt.Errorf("unable to record running state for %s: %w", ticket, err)
	}

	logger.Log.Info().Str("ticket", ticket).Str("project", project.Name).Msg("task accepted")
	go e.execute(context.WithoutCancel(ctx), ticket, project, patches)
	return nil
}

// execute owns the lock until its terminal record is durable. The release
// is deferred first so it always runs after the terminal write, whatever
// path the run takes.
func (e *Executor) execute(ctx context.Context, ticket string, project builder.Project, patches []model.Patch) {
	defer e.Lock.Release()
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error().Str("ticket", ticket).Interface("panic", r).Msg("task panicked")
			e.writeTerminal(ctx, model.ResultRecord{
				Ticket:  ticket,
				Status:  model.StatusError,
				Detail:  model.DetailUnavailable,
				Payload: fmt.Sprintf("task aborted: %v", r),
			})
		}
	}()

	ctx, span := tracer.GetTracer().Start(ctx, "executor.execute")
	defer span.End()

	e.writeTerminal(ctx, e.run(ctx, ticket, project, patches))
}

func (e *Executor) run(ctx context.Context, ticket string, project builder.Project, patches []model.Patch) model.ResultRecord {
	staging, err := builder.Stage(e.ScratchDir, ticket, project, patches)
	if err != nil {
		detail := model.DetailUnavailable
		if errors.Is(err, builder.ErrMalformedPatch) {
			detail = model.DetailContentsMalformed
		}
		return model.ResultRecord{Ticket: ticket, Status: model.StatusError, Detail: detail, Payload: err.Error()}
	}
	defer staging.TearDown()

	res, err := e.Runner.Run(ctx, project, staging.Dir)
	if err != nil {
		logger.Log.Error().Err(err).Str("ticket", ticket).Msg("runner failed")
		return model.ResultRecord{Ticket: ticket, Status: model.StatusError, Detail: model.DetailUnavailable, Payload: err.Error()}
	}
	if !res.OK() {
		return model.ResultRecord{Ticket: ticket, Status: model.StatusError, Detail: res.Detail, Payload: res.Diagnostic}
	}

	e.archive(ctx, ticket, res.Artifact)
	return model.ResultRecord{
		Ticket:  ticket,
		Status:  model.StatusComplete,
		Detail:  model.DetailSucceeded,
		Payload: base64.StdEncoding.EncodeToString(res.Artifact),
	}
}

// archive is best effort; the record in the result store is the source of
// truth and an archive outage must not fail the task.
func (e *Executor) archive(ctx context.Context, ticket string, artifact []byte) {
	if e.Archive == nil {
		return
	}
	if err := e.Archive.Upload(ctx, ticket+".png", artifact); err != nil {
		logger.Log.Warn().Err(err).Str("ticket", ticket).Msg("unable to archive artifact")
	}
}

func (e *Executor) writeTerminal(ctx context.Context, rec model.ResultRecord) {
	rec.WrittenAt = time.Now().UTC()
	if err := e.Store.Put(ctx, rec); err != nil {
		logger.Log.Error().Err(err).Str("ticket", rec.Ticket).Msg("unable to write terminal record")
		return
	}
	logger.Log.Info().Str("ticket", rec.Ticket).Str("status", string(rec.Status)).Str("detail", string(rec.Detail)).Msg("task finished")
}
