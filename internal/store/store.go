// Package store owns the on-disk queue and agency registry documents.
//
// Both files are plain JSON read and written wholesale. The store does no
// locking; callers (the bus) must serialize Load/Replace cycles.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FormatVersion tags queue and registry documents written by this store.
const FormatVersion = "1.0"

// ErrCorrupted reports a state file that exists but cannot be decoded.
// Distinct from an absent file, which loads as an empty document.
var ErrCorrupted = errors.New("store: corrupted state file")

// Status is the delivery lifecycle state of a message.
type Status string

const (
	StatusPending      Status = "pending"
	StatusDelivered    Status = "delivered"
	StatusAcknowledged Status = "acknowledged"
)

// Valid reports whether s is one of the three lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDelivered, StatusAcknowledged:
		return true
	}
	return false
}

// Message is one unit of inter-agency communication.
type Message struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	FromAgency     string         `json:"from_agency"`
	ToAgency       string         `json:"to_agency"`
	Priority       string         `json:"priority"`
	Type           string         `json:"type"`
	Payload        map[string]any `json:"payload"`
	Status         Status         `json:"status"`
	DeliveredAt    *time.Time     `json:"delivered_at"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at"`
}

// Queue is the append-only message log. Messages are mutated in place for
// status transitions but never reordered; removal happens only via pruning.
type Queue struct {
	Messages    []Message  `json:"messages"`
	LastUpdated *time.Time `json:"last_updated"`
	Version     string     `json:"version"`
}

// Agency is one registered participant. The registry is maintained
// externally; the store only reads it outside of provisioning.
type Agency struct {
	Name    string   `json:"name"`
	Session string   `json:"session,omitempty"`
	Agents  []string `json:"agents,omitempty"`
}

// Registry is the set of active agencies.
type Registry struct {
	Agencies    []Agency   `json:"agencies"`
	LastUpdated *time.Time `json:"last_updated"`
	Version     string     `json:"version"`
}

// Names returns the agency names in registry order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.Agencies))
	for _, a := range r.Agencies {
		names = append(names, a.Name)
	}
	return names
}

// Store reads and writes the queue and registry files under one directory.
type Store struct {
	dir string
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("store: dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the registry directory the store is rooted at.
func (s *Store) Dir() string { return s.dir }

func (s *Store) queuePath() string {
	return filepath.Join(s.dir, "message_queue.json")
}

func (s *Store) registryPath() string {
	return filepath.Join(s.dir, "active_agencies.json")
}

// Load reads the full queue. An absent file yields an empty version-tagged
// queue; an unreadable or undecodable file yields ErrCorrupted.
func (s *Store) Load() (*Queue, error) {
	var q Queue
	if err := s.loadJSON(s.queuePath(), &q); err != nil {
		return nil, err
	}
	if q.Version == "" {
		q.Version = FormatVersion
	}
	return &q, nil
}

// Replace writes the entire queue back atomically, stamping last_updated.
func (s *Store) Replace(q *Queue) error {
	now := time.Now()
	q.LastUpdated = &now
	if q.Version == "" {
		q.Version = FormatVersion
	}
	return s.writeJSON(s.queuePath(), q)
}

// LoadRegistry reads the agency registry with the same absent/corrupt split
// as Load.
func (s *Store) LoadRegistry() (*Registry, error) {
	var r Registry
	if err := s.loadJSON(s.registryPath(), &r); err != nil {
		return nil, err
	}
	if r.Version == "" {
		r.Version = FormatVersion
	}
	return &r, nil
}

// ReplaceRegistry writes the registry wholesale. The bus never calls this;
// it exists for provisioning (`sb start`) and tests.
func (s *Store) ReplaceRegistry(r *Registry) error {
	now := time.Now()
	r.LastUpdated = &now
	if r.Version == "" {
		r.Version = FormatVersion
	}
	return s.writeJSON(s.registryPath(), r)
}

func (s *Store) loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupted, path, err)
	}
	return nil
}

// writeJSON commits v to path via a temp file and atomic rename, so a
// partially written document is never observable.
func (s *Store) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", path, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("store: temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("store: sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("store: chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("store: commit %s: %w", path, err)
	}
	return nil
}
