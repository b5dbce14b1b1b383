package model

import "errors"

// ErrWorkerBusy is returned when a build/run is requested while the worker
// already holds its execution lock. Expected under load, not a bug.
var ErrWorkerBusy = errors.New("anvil: worker busy")

// ErrUnknownTicket is returned for a poll or lookup of a ticket not present
// in the relevant store. Expected after garbage collection or a balancer
// restart.
var ErrUnknownTicket = errors.New("anvil: unknown ticket")

// ErrNoWorkerAvailable is returned when the balancer could not find or reach
// any worker for a new task.
var ErrNoWorkerAvailable = errors.New("anvil: no worker available")

// Wire error codes carried in the JSON error envelope so callers can tell
// "wait" from "fix your code" from "reload".
const (
	CodeWorkerBusy        = "worker_busy"
	CodeUnknownTicket     = "unknown_ticket"
	CodeNoWorkerAvailable = "no_worker_available"
	CodeBadRequest        = "bad_request"
	CodeInternal          = "internal"
)

// ErrorBody is the JSON error envelope returned by both services.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CodeFor maps the shared sentinel errors onto wire codes.
func CodeFor(err error) string {
	switch {
	case errors.Is(err, ErrWorkerBusy):
		return CodeWorkerBusy
	case errors.Is(err, ErrUnknownTicket):
		return CodeUnknownTicket
	case errors.Is(err, ErrNoWorkerAvailable):
		return CodeNoWorkerAvailable
	default:
		return CodeInternal
	}
}

// ErrFor is the inverse of CodeFor, used by the balancer's worker client to
// rehydrate sentinel errors from a worker response.
func ErrFor(code string) error {
	switch code {
	case CodeWorkerBusy:
		return ErrWorkerBusy
	case CodeUnknownTicket:
		return ErrUnknownTicket
	case CodeNoWorkerAvailable:
		return ErrNoWorkerAvailable
	default:
		return nil
	}
}
