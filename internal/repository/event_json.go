package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"power_monitor/internal/models"
)

const (
	jsonIndent   = "    "
	jsonFileMode = 0o644
)

// EventJSONFile keeps the whole timeline in one JSON array document.
// Every Append reads the document, appends and rewrites it, so it is only
// meant for small device-local logs. Single writer only.
type EventJSONFile struct {
	path string
}

func NewEventJSONFile(path string) *EventJSONFile { return &EventJSONFile{path: path} }

// Path returns the backing document location.
func (r *EventJSONFile) Path() string { return r.path }

// Append adds rec to the end of the document. A missing document is
// treated as empty; a malformed one yields ErrCorruptLog and is left untouched.
func (r *EventJSONFile) Append(ctx context.Context, rec models.LogRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	recs, err := r.load()
	if err != nil {
		return err
	}
	recs = append(recs, rec)
	return r.store(recs)
}

// List returns records filtered by [from, to] and kind, in append order.
func (r *EventJSONFile) List(ctx context.Context, from, to time.Time, kind models.RecordKind) ([]models.LogRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	recs, err := r.load()
	if err != nil {
		return nil, err
	}
	return filterRecords(recs, from, to, kind), nil
}

func (r *EventJSONFile) load() ([]models.LogRecord, error) {
	b, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []models.LogRecord{}, nil
		}
		return nil, fmt.Errorf("read event log %q: %w", r.path, err)
	}
	return decodeRecords(b)
}

// decodeRecords parses a timeline document. An empty or whitespace-only
// file is still a document the store did not write, so it counts as corrupt.
func decodeRecords(b []byte) ([]models.LogRecord, error) {
	var recs []models.LogRecord
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptLog, err)
	}
	if recs == nil {
		// "null" is valid JSON but not a timeline.
		return nil, fmt.Errorf("%w: document is not an array", ErrCorruptLog)
	}
	return recs, nil
}

func encodeRecords(recs []models.LogRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", jsonIndent)
	if err := enc.Encode(recs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// store replaces the document through a temp file and rename so a crash
// mid-write never leaves a half-written array behind.
func (r *EventJSONFile) store(recs []models.LogRecord) error {
	b, err := encodeRecords(recs)
	if err != nil {
		return fmt.Errorf("encode event log: %w", err)
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for event log %q: %w", r.path, err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once renamed
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write event log %q: %w", r.path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync event log %q: %w", r.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close event log %q: %w", r.path, err)
	}
	if err := os.Chmod(tmpName, jsonFileMode); err != nil {
		return fmt.Errorf("chmod event log %q: %w", r.path, err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("replace event log %q: %w", r.path, err)
	}
	return nil
}
