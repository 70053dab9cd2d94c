// Package statestore is Component H: a single JSON document under the
// user's configuration directory recording one DownloadRecord per episode
// job, written with a .tmp-then-rename atomic upsert.
package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a DownloadRecord's lifecycle state.
type Status string

const (
	StatusInProgress Status = "InProgress"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
	StatusCancelled  Status = "Cancelled"
)

// DownloadRecord is one persisted episode download job.
type DownloadRecord struct {
	ID              string     `json:"id"`
	AnimeName       string     `json:"anime_name"`
	Slug            string     `json:"slug"`
	Episode         int        `json:"episode"`
	Status          Status     `json:"status"`
	FilePath        string     `json:"file_path"`
	DownloadedBytes int64      `json:"downloaded_bytes"`
	FileSize        *int64     `json:"file_size,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	AudioType       string     `json:"audio_type,omitempty"`
	Resolution      string     `json:"resolution,omitempty"`
}

const documentVersion = 1

type document struct {
	Version int                        `json:"version"`
	Records map[string]DownloadRecord `json:"records"`
}

// Store is a process-local handle on the on-disk state document. All
// operations are serialized behind a single mutex; §5 of SPEC_FULL.md only
// requires atomicity across crashes, not high write concurrency.
type Store struct {
	path string
	mu   sync.Mutex
}

// Open returns a Store backed by path, creating an empty document if the
// file does not yet exist.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.write(document{Version: documentVersion, Records: map[string]DownloadRecord{}}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) read() (document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return document{}, fmt.Errorf("statestore: read: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("statestore: corrupt document: %w", err)
	}
	if doc.Records == nil {
		doc.Records = map[string]DownloadRecord{}
	}
	return doc, nil
}

// write serializes doc to a temp file in the same directory, syncs it, and
// renames it over path — the rename is atomic on POSIX and Windows
// filesystems, so a crash mid-write never leaves a half-written document.
func (s *Store) write(doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("statestore: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("statestore: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".statestore-*.tmp")
	if err != nil {
		return fmt.Errorf("statestore: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("statestore: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("statestore: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("statestore: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("statestore: rename: %w", err)
	}
	return nil
}

// Upsert writes record into the document, generating an ID via uuid.NewString
// when record.ID is empty, and returns the stored record's ID.
func (s *Store) Upsert(record DownloadRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.UpdatedAt = time.Now()
	if record.StartedAt.IsZero() {
		record.StartedAt = record.UpdatedAt
	}

	doc, err := s.read()
	if err != nil {
		return "", err
	}
	doc.Records[record.ID] = record
	if err := s.write(doc); err != nil {
		return "", err
	}
	return record.ID, nil
}

// Get returns the record with the given id, or false if absent.
func (s *Store) Get(id string) (DownloadRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return DownloadRecord{}, false, err
	}
	rec, ok := doc.Records[id]
	return rec, ok, nil
}

// ListIncomplete returns every record with status InProgress or Failed.
func (s *Store) ListIncomplete() ([]DownloadRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	var out []DownloadRecord
	for _, r := range doc.Records {
		if r.Status == StatusInProgress || r.Status == StatusFailed {
			out = append(out, r)
		}
	}
	return out, nil
}

// Remove deletes the record with the given id, if present.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	delete(doc.Records, id)
	return s.write(doc)
}

// ClearCompleted removes every record with status Completed.
func (s *Store) ClearCompleted() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	for id, r := range doc.Records {
		if r.Status == StatusCompleted {
			delete(doc.Records, id)
		}
	}
	return s.write(doc)
}

// Validate checks that a record's file_path exists and, when downloaded
// bytes is known, that the file is at least that large. It never mutates
// the store.
func (s *Store) Validate(id string) (bool, error) {
	rec, ok, err := s.Get(id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	info, err := os.Stat(rec.FilePath)
	if err != nil {
		return false, nil
	}
	if info.Size() < rec.DownloadedBytes {
		return false, nil
	}
	return true, nil
}
