package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNew_MissingDir(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty dir")
	}
}

func TestLoad_AbsentFileIsEmptyQueue(t *testing.T) {
	s := newTestStore(t)

	q, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(q.Messages) != 0 {
		t.Errorf("messages = %d, want 0", len(q.Messages))
	}
	if q.Version != FormatVersion {
		t.Errorf("version = %q, want %q", q.Version, FormatVersion)
	}
	if q.LastUpdated != nil {
		t.Errorf("last_updated = %v, want nil", q.LastUpdated)
	}
}

func TestReplace_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	now := time.Now()
	q := &Queue{
		Messages: []Message{{
			ID:         "msg-20260830-120000-abc123",
			Timestamp:  now,
			FromAgency: "CodeAgency",
			ToAgency:   "TestAgency",
			Priority:   "medium",
			Type:       "handoff",
			Payload:    map[string]any{"task": "review"},
			Status:     StatusPending,
		}},
		Version: FormatVersion,
	}
	if err := s.Replace(q); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if q.LastUpdated == nil {
		t.Fatal("Replace did not stamp last_updated")
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(got.Messages))
	}
	m := got.Messages[0]
	if m.ID != "msg-20260830-120000-abc123" {
		t.Errorf("id = %q", m.ID)
	}
	if m.Status != StatusPending {
		t.Errorf("status = %q, want pending", m.Status)
	}
	if m.DeliveredAt != nil || m.AcknowledgedAt != nil {
		t.Error("delivery stamps should be nil before transition")
	}
	if got.LastUpdated == nil {
		t.Error("last_updated missing after round trip")
	}
}

func TestLoad_CorruptFileIsNotEmpty(t *testing.T) {
	s := newTestStore(t)

	path := filepath.Join(s.Dir(), "message_queue.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := s.Load()
	if err == nil {
		t.Fatal("expected error for corrupt queue file")
	}
	if !errors.Is(err, ErrCorrupted) {
		t.Errorf("error = %v, want ErrCorrupted", err)
	}
}

func TestLoadRegistry_CorruptFile(t *testing.T) {
	s := newTestStore(t)

	path := filepath.Join(s.Dir(), "active_agencies.json")
	if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := s.LoadRegistry(); !errors.Is(err, ErrCorrupted) {
		t.Errorf("error = %v, want ErrCorrupted", err)
	}
}

func TestLoadRegistry_AbsentIsEmpty(t *testing.T) {
	s := newTestStore(t)

	r, err := s.LoadRegistry()
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if len(r.Agencies) != 0 {
		t.Errorf("agencies = %d, want 0", len(r.Agencies))
	}
	if r.Version != FormatVersion {
		t.Errorf("version = %q", r.Version)
	}
}

func TestReplaceRegistry_Names(t *testing.T) {
	s := newTestStore(t)

	r := &Registry{Agencies: []Agency{
		{Name: "CodeAgency", Agents: []string{"lead", "builder"}},
		{Name: "TestAgency"},
	}}
	if err := s.ReplaceRegistry(r); err != nil {
		t.Fatalf("ReplaceRegistry: %v", err)
	}

	got, err := s.LoadRegistry()
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	names := got.Names()
	if len(names) != 2 || names[0] != "CodeAgency" || names[1] != "TestAgency" {
		t.Errorf("names = %v", names)
	}
}

func TestReplace_LeavesNoTempFiles(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		if err := s.Replace(&Queue{Version: FormatVersion}); err != nil {
			t.Fatalf("Replace: %v", err)
		}
	}

	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			t.Errorf("leftover temp file %q", e.Name())
		}
	}
}

func TestStatus_Valid(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, true},
		{StatusDelivered, true},
		{StatusAcknowledged, true},
		{Status(""), false},
		{Status("archived"), false},
	}
	for _, tt := range tests {
		if got := tt.status.Valid(); got != tt.want {
			t.Errorf("Valid(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
