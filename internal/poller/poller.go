// Package poller implements the client half of the status protocol: a
// fixed-cadence polling loop that stops on a terminal status or its own
// local deadline. The server never times a task out; only this loop does.
package poller

import (
	"context"
	"errors"
	"time"

	"anvil/internal/logger"
	"anvil/model"
)

// StatusClient is the one call the poller needs. *balancer.WorkerClient
// satisfies it.
type StatusClient interface {
	Status(ctx context.Context, ticket string) (model.StatusResponse, error)
}

type Poller struct {
	client   StatusClient
	interval time.Duration
	deadline time.Duration
	// OnUpdate is called whenever the observed status or detail changes,
	// including the final one. Optional.
	OnUpdate func(model.StatusResponse)
}

func New(client StatusClient, interval, deadline time.Duration) *Poller {
	return &Poller{client: client, interval: interval, deadline: deadline}
}

// Poll watches ticket until it reaches a terminal status. When the local
// deadline passes first it synthesizes a timeout response; the task may
// still finish on the worker afterwards. Transport errors are retried on
// the next tick. An unknown ticket ends the loop, the record is gone.
func (p *Poller) Poll(ctx context.Context, ticket string) (model.StatusResponse, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	expired := time.NewTimer(p.deadline)
	defer expired.Stop()

	var last model.StatusResponse
	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()

		case <-expired.C:
			timedOut := model.StatusResponse{Status: model.StatusTimeout}
			p.notify(&last, timedOut)
			return timedOut, nil

		case <-ticker.C:
			status, err := p.client.Status(ctx, ticket)
			if err != nil {
				if errors.Is(err, model.ErrUnknownTicket) {
					return last, err
				}
				logger.Log.Warn().Err(err).Str("ticket", ticket).Msg("poll failed, will retry")
				continue
			}

			p.notify(&last, status)
			if status.Status.Terminal() {
				return status, nil
			}
		}
	}
}

func (p *Poller) notify(last *model.StatusResponse, status model.StatusResponse) {
	if status == *last {
		return
	}
	*last = status
	if p.OnUpdate != nil {
		p.OnUpdate(status)
	}
}
