package model

import "time"

// TaskStatus is the coarse task state visible to clients.
type TaskStatus string

const (
	StatusCreated  TaskStatus = "created"
	StatusRunning  TaskStatus = "running"
	StatusComplete TaskStatus = "complete"
	StatusError    TaskStatus = "error"
	// StatusTimeout is synthesized by the client-side poller when its local
	// deadline passes. The server never returns it.
	StatusTimeout TaskStatus = "timeout"
)

// Terminal reports whether no further transition follows s.
func (s TaskStatus) Terminal() bool {
	return s == StatusComplete || s == StatusError || s == StatusTimeout
}

// StatusDetail is the fine-grained stage the worker reached. It refines, but
// never contradicts, the coarse TaskStatus on the record.
type StatusDetail string

const (
	DetailBuildFailed       StatusDetail = "build_failed"
	DetailContentsMalformed StatusDetail = "contents_malformed"
	DetailRunFailed         StatusDetail = "run_failed"
	DetailRunning           StatusDetail = "tests_running"
	DetailSucceeded         StatusDetail = "tests_succeeded"
	DetailUnavailable       StatusDetail = "unavailable"
)

// Patch is one {filename, contents} pair applied to the staged project
// sources before building. Later patches to the same file win.
type Patch struct {
	Filename string `json:"filename"`
	Contents string `json:"contents"`
}

// Task is the unit of work for one build-and-run attempt.
type Task struct {
	Ticket         string  `json:"ticket"`
	Project        string  `json:"project"`
	UserID         string  `json:"userId"`
	Patches        []Patch `json:"patches"`
	AssignedWorker string  `json:"assignedWorker"`
}

// ResultRecord is the durable outcome record for one ticket. It is
// overwritten in place as the task progresses; readers always observe a
// whole record, never a torn status/payload pair.
type ResultRecord struct {
	Ticket    string       `json:"ticket" msgpack:"ticket"`
	Status    TaskStatus   `json:"status" msgpack:"status"`
	Detail    StatusDetail `json:"detail,omitempty" msgpack:"detail"`
	Payload   string       `json:"payload,omitempty" msgpack:"payload"`
	WrittenAt time.Time    `json:"writtenAt" msgpack:"writtenAt"`
}

// RegistryEntry is the balancer-side row for one ticket.
type RegistryEntry struct {
	Ticket    string     `json:"ticket" db:"ticket"`
	WorkerID  string     `json:"workerId" db:"worker_id"`
	WorkerURL string     `json:"workerUrl" db:"worker_url"`
	Project   string     `json:"project" db:"project"`
	UserID    string     `json:"userId" db:"user_id"`
	Status    TaskStatus `json:"status" db:"status"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
}

// CreateTaskRequest is the client-facing and worker-facing create payload.
// The balancer fills Ticket before forwarding; clients leave it empty.
type CreateTaskRequest struct {
	Ticket  string  `json:"ticket,omitempty"`
	Project string  `json:"project"`
	Patches []Patch `json:"patches"`
	UserID  string  `json:"userId"`
}

// CreateTaskResponse acknowledges an accepted task.
type CreateTaskResponse struct {
	Ticket   string `json:"ticket"`
	WorkerID string `json:"workerId"`
}

// StatusResponse is the poll-status payload relayed unchanged from the
// worker's result record.
type StatusResponse struct {
	Status  TaskStatus   `json:"status"`
	Detail  StatusDetail `json:"detail,omitempty"`
	Payload string       `json:"payload,omitempty"`
}

// ProjectResponse carries the editable source file for a project.
type ProjectResponse struct {
	Filename    string `json:"filename"`
	ProjectName string `json:"projectName"`
	Contents    string `json:"contents"`
}
