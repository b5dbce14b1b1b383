// Package fs is the disk-backed result store. It is the authoritative
// backend on a worker: one JSON file per ticket under the results
// directory, written via temp-file + rename so polls always read a whole
// record.
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"anvil/internal/logger"
	"anvil/internal/resultstore"
	"anvil/internal/tracer"
	"anvil/model"
)

type FSStore struct {
	dir string
}

func NewFSStore(dir string) (resultstore.Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create results directory %s: %w", dir, err)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) Put(ctx context.Context, rec model.ResultRecord) error {
	_, span := tracer.GetTracer().Start(ctx, "FSStore/Put")
	defer span.End()

	path, err := s.path(rec.Ticket)
	if err != nil {
		tracer.RecordSpanError(span, err)
		return err
	}

	b, err := json.Marshal(rec)
	if err != nil {
		err = fmt.Errorf("failed to marshal record for ticket %s: %w", rec.Ticket, err)
		tracer.RecordSpanError(span, err)
		return err
	}

	tmp, err := os.CreateTemp(s.dir, rec.Ticket+".*.tmp")
	if err != nil {
		tracer.RecordSpanError(span, err)
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		tracer.RecordSpanError(span, err)
		return err
	}
	if err := tmp.Close(); err != nil {
		tracer.RecordSpanError(span, err)
		return err
	}

	// Rename is atomic on POSIX; a concurrent Get sees either the old or the
	// new record, never a partial write.
	if err := os.Rename(tmp.Name(), path); err != nil {
		tracer.RecordSpanError(span, err)
		return err
	}
	return nil
}

func (s *FSStore) Get(ctx context.Context, ticket string) (model.ResultRecord, error) {
	_, span := tracer.GetTracer().Start(ctx, "FSStore/Get")
	defer span.End()

	path, err := s.path(ticket)
	if err != nil {
		tracer.RecordSpanError(span, err)
		return model.ResultRecord{}, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.ResultRecord{}, model.ErrUnknownTicket
		}
		tracer.RecordSpanError(span, err)
		return model.ResultRecord{}, err
	}

	var rec model.ResultRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		err = fmt.Errorf("record for ticket %s is malformed: %w", ticket, err)
		tracer.RecordSpanError(span, err)
		return model.ResultRecord{}, err
	}
	return rec, nil
}

func (s *FSStore) Sweep(ctx context.Context, ttl time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	cutoff := time.Now().Add(-ttl)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		ticket := strings.TrimSuffix(e.Name(), ".json")
		rec, err := s.Get(ctx, ticket)
		if err == nil && rec.Status == model.StatusRunning {
			// An in-flight task owns this record regardless of age.
			continue
		}

		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			logger.Log.Error().Err(err).Str("ticket", ticket).Msg("unable to sweep result record")
			continue
		}
		removed++
	}
	return removed, nil
}

func (s *FSStore) Close() error {
	return nil
}

func (s *FSStore) path(ticket string) (string, error) {
	if ticket == "" || strings.ContainsAny(ticket, `/\`) || strings.Contains(ticket, "..") {
		return "", fmt.Errorf("invalid ticket %q", ticket)
	}
	return filepath.Join(s.dir, ticket+".json"), nil
}
