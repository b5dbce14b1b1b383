// Package builder stages project sources, applies patches, and runs the
// opaque build-and-run collaborator. The collaborator yields either a
// success artifact (a screenshot) or a failure diagnostic; everything else
// about it is a black box with unbounded but usually short running time.
package builder

import (
	"context"

	"anvil/model"
)

// Result is the outcome of one build-and-run.
type Result struct {
	// Artifact holds the raw success artifact bytes; nil on failure.
	Artifact []byte
	// Diagnostic is the human-readable failure output; empty on success.
	Diagnostic string
	Detail     model.StatusDetail
}

// OK reports whether the run produced a success artifact.
func (r *Result) OK() bool {
	return r.Detail == model.DetailSucceeded
}

// Runner executes a staged project. A non-nil error means the runner itself
// broke; a build or test failure is a normal Result with a Diagnostic.
type Runner interface {
	Run(ctx context.Context, project Project, dir string) (*Result, error)
}
