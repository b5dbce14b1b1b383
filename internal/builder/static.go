package builder

import (
	"context"

	"anvil/model"
)

// StaticRunner returns a fixed artifact without building anything. It backs
// the "static" runner type used for smoke deployments.
type StaticRunner struct {
	Artifact []byte
}

func (s *StaticRunner) Run(ctx context.Context, project Project, dir string) (*Result, error) {
	return &Result{Artifact: s.Artifact, Detail: model.DetailSucceeded}, nil
}
