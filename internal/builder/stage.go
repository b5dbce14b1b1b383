package builder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"anvil/internal/logger"
	"anvil/model"
)

// pruneDirs are not needed for a scratch build and can be large.
var pruneDirs = map[string]bool{".git": true, ".gradle": true}

// Staging is a per-ticket scratch copy of a project with patches applied.
type Staging struct {
	Ticket string
	Dir    string // staged project root
	root   string // per-ticket scratch root, removed on TearDown
}

// Stage copies the pristine project tree into scratchDir/<ticket>/ and
// applies the patches in order; a later patch to the same file wins.
func Stage(scratchDir, ticket string, project Project, patches []model.Patch) (*Staging, error) {
	root := filepath.Join(scratchDir, ticket)
	dir := filepath.Join(root, project.Name)

	if err := copyTree(project.Path, dir); err != nil {
		os.RemoveAll(root)
		return nil, fmt.Errorf("unable to stage project %s: %w", project.Name, err)
	}

	for _, patch := range patches {
		if err := applyPatch(dir, patch); err != nil {
			os.RemoveAll(root)
			return nil, err
		}
	}

	logger.Log.Info().Str("project", project.Name).Str("dir", dir).Msg("project staged")
	return &Staging{Ticket: ticket, Dir: dir, root: root}, nil
}

// TearDown removes the scratch copy. Safe to call after a failed run; the
// tree may already be gone if housekeeping removed it by age.
func (s *Staging) TearDown() {
	if err := os.RemoveAll(s.root); err != nil {
		logger.Log.Error().Err(err).Str("dir", s.root).Msg("unable to unstage project")
		return
	}
	logger.Log.Info().Str("dir", s.Dir).Msg("project unstaged")
}

// ErrMalformedPatch marks a patch that cannot be applied to any project,
// as opposed to an environment failure.
var ErrMalformedPatch = errors.New("malformed patch")

func applyPatch(dir string, patch model.Patch) error {
	rel := filepath.Clean(patch.Filename)
	if rel == "" || rel == "." || filepath.IsAbs(rel) || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("patch filename %q escapes the project: %w", patch.Filename, ErrMalformedPatch)
	}

	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(patch.Contents), 0o644)
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if pruneDirs[d.Name()] {
				return filepath.SkipDir
			}
			return os.MkdirAll(filepath.Join(dst, rel), 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, filepath.Join(dst, rel), d)
	})
}

func copyFile(src, dst string, d os.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
