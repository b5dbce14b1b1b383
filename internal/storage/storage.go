// Package storage is the artifact archive: raw screenshots and build logs
// kept outside the result records, keyed by object path. Archiving is
// best-effort; a failed upload never fails the task.
package storage

import "context"

type Storage interface {
	Upload(ctx context.Context, objectPath string, data []byte) error
	Download(ctx context.Context, objectPath string) ([]byte, error)
	Close()
}
