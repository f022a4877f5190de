package bus

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/switchboard/internal/store"
)

func newTestBus(t *testing.T) (*Bus, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	return New(st, nil), st
}

func seedRegistry(t *testing.T, st *store.Store, names ...string) {
	t.Helper()
	var reg store.Registry
	for _, n := range names {
		reg.Agencies = append(reg.Agencies, store.Agency{Name: n})
	}
	if err := st.ReplaceRegistry(&reg); err != nil {
		t.Fatalf("ReplaceRegistry: %v", err)
	}
}

var idPattern = regexp.MustCompile(`^msg-\d{8}-\d{6}-[0-9a-f]{6}$`)

func TestSend_AppendsPendingMessage(t *testing.T) {
	b, _ := newTestBus(t)

	id, err := b.Send("CodeAgency", "TestAgency", "handoff", map[string]any{"task": "review"}, SendOpts{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !idPattern.MatchString(id) {
		t.Errorf("id %q does not match expected format", id)
	}

	msgs, err := b.Get("TestAgency", "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	m := msgs[0]
	if m.ID != id {
		t.Errorf("id = %q, want %q", m.ID, id)
	}
	if m.Status != store.StatusPending {
		t.Errorf("status = %q, want pending", m.Status)
	}
	if m.Priority != PriorityMedium {
		t.Errorf("priority = %q, want medium", m.Priority)
	}
	if m.Payload["task"] != "review" {
		t.Errorf("payload = %v", m.Payload)
	}
}

func TestSend_Validation(t *testing.T) {
	b, _ := newTestBus(t)

	tests := []struct {
		name     string
		from, to string
		msgType  string
		opts     SendOpts
		wantErr  string
	}{
		{"missing from", "", "B", "request", SendOpts{}, "bus: from is required"},
		{"missing to", "A", "", "request", SendOpts{}, "bus: to is required"},
		{"missing type", "A", "B", "", SendOpts{}, "bus: type is required"},
		{"bad priority", "A", "B", "request", SendOpts{Priority: "urgent"}, `bus: invalid priority "urgent"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Send(tt.from, tt.to, tt.msgType, nil, tt.opts)
			if err == nil {
				t.Fatal("expected error")
			}
			if err.Error() != tt.wantErr {
				t.Errorf("error = %q, want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestSend_UnknownRecipientAccepted(t *testing.T) {
	b, _ := newTestBus(t)

	// No registry at all; sends must still succeed.
	if _, err := b.Send("A", "Nobody", "alert", nil, SendOpts{}); err != nil {
		t.Fatalf("Send to unknown agency: %v", err)
	}
}

func TestGet_OrderAndStatusFilter(t *testing.T) {
	b, _ := newTestBus(t)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := b.Send("A", "B", "request", map[string]any{"n": i}, SendOpts{})
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
		ids = append(ids, id)
	}
	if err := b.MarkDelivered(ids[1]); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}

	all, err := b.Get("B", "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("messages = %d, want 3", len(all))
	}
	for i, m := range all {
		if m.ID != ids[i] {
			t.Errorf("position %d: id = %q, want %q (send order must be preserved)", i, m.ID, ids[i])
		}
	}

	pending, err := b.Get("B", store.StatusPending)
	if err != nil {
		t.Fatalf("Get pending: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("pending = %d, want 2", len(pending))
	}

	if _, err := b.Get("B", store.Status("bogus")); err == nil {
		t.Error("expected error for invalid status filter")
	}
}

func TestTransitions_Monotonic(t *testing.T) {
	b, _ := newTestBus(t)

	id, err := b.Send("A", "B", "request", nil, SendOpts{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if err := b.MarkDelivered(id); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	m, err := b.Find(id)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if m.Status != store.StatusDelivered || m.DeliveredAt == nil {
		t.Fatalf("after deliver: status=%q delivered_at=%v", m.Status, m.DeliveredAt)
	}
	deliveredAt := *m.DeliveredAt

	if err := b.MarkAcknowledged(id); err != nil {
		t.Fatalf("MarkAcknowledged: %v", err)
	}
	m, _ = b.Find(id)
	if m.Status != store.StatusAcknowledged || m.AcknowledgedAt == nil {
		t.Fatalf("after ack: status=%q ack_at=%v", m.Status, m.AcknowledgedAt)
	}
	ackedAt := *m.AcknowledgedAt

	// Re-marking in either direction changes nothing.
	if err := b.MarkDelivered(id); err != nil {
		t.Fatalf("re-deliver: %v", err)
	}
	if err := b.MarkAcknowledged(id); err != nil {
		t.Fatalf("re-ack: %v", err)
	}
	m, _ = b.Find(id)
	if m.Status != store.StatusAcknowledged {
		t.Errorf("status reverted to %q", m.Status)
	}
	if !m.DeliveredAt.Equal(deliveredAt) {
		t.Error("delivered_at changed on re-mark")
	}
	if !m.AcknowledgedAt.Equal(ackedAt) {
		t.Error("acknowledged_at changed on re-mark")
	}
}

func TestMarkAcknowledged_SkipsDelivered(t *testing.T) {
	b, _ := newTestBus(t)

	id, err := b.Send("A", "B", "request", nil, SendOpts{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := b.MarkAcknowledged(id); err != nil {
		t.Fatalf("MarkAcknowledged: %v", err)
	}

	m, err := b.Find(id)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if m.Status != store.StatusAcknowledged {
		t.Errorf("status = %q, want acknowledged", m.Status)
	}
	if m.DeliveredAt != nil {
		t.Error("delivered_at should stay nil when delivery was skipped")
	}
	if m.AcknowledgedAt == nil {
		t.Error("acknowledged_at not stamped")
	}
}

func TestMark_UnknownIDIsNoop(t *testing.T) {
	b, _ := newTestBus(t)

	// The id may have been pruned; marking it must not fail.
	if err := b.MarkDelivered("msg-20260101-000000-abcdef"); err != nil {
		t.Errorf("MarkDelivered unknown id: %v", err)
	}
	if err := b.MarkAcknowledged("msg-20260101-000000-abcdef"); err != nil {
		t.Errorf("MarkAcknowledged unknown id: %v", err)
	}
}

func TestBroadcast_ExcludesSender(t *testing.T) {
	b, st := newTestBus(t)
	seedRegistry(t, st, "A", "B", "C")

	ids, err := b.Broadcast("A", "alert", map[string]any{"msg": "standup"}, SendOpts{})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("ids = %d, want 2", len(ids))
	}

	for i, agency := range []string{"B", "C"} {
		msgs, err := b.Get(agency, store.StatusPending)
		if err != nil {
			t.Fatalf("Get %s: %v", agency, err)
		}
		if len(msgs) != 1 {
			t.Fatalf("%s messages = %d, want 1", agency, len(msgs))
		}
		if msgs[0].ID != ids[i] {
			t.Errorf("%s: id = %q, want %q (registry order)", agency, msgs[0].ID, ids[i])
		}
		if msgs[0].Priority != PriorityHigh {
			t.Errorf("%s: priority = %q, want high", agency, msgs[0].Priority)
		}
	}

	// The sender receives nothing.
	self, err := b.Get("A", "")
	if err != nil {
		t.Fatalf("Get A: %v", err)
	}
	if len(self) != 0 {
		t.Errorf("sender received %d messages", len(self))
	}
}

func TestBroadcast_UnregisteredSender(t *testing.T) {
	b, st := newTestBus(t)
	seedRegistry(t, st, "B", "C")

	// Exclusion is by name equality, not registry membership.
	ids, err := b.Broadcast("Outsider", "alert", nil, SendOpts{})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("ids = %d, want 2", len(ids))
	}
}

func TestPendingCount(t *testing.T) {
	b, _ := newTestBus(t)

	for i := 0; i < 3; i++ {
		if _, err := b.Send("A", "B", "request", nil, SendOpts{}); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	id, _ := b.Send("A", "B", "request", nil, SendOpts{})
	if err := b.MarkAcknowledged(id); err != nil {
		t.Fatalf("MarkAcknowledged: %v", err)
	}

	n, err := b.PendingCount("B")
	if err != nil {
		t.Fatalf("PendingCount: %v", err)
	}
	if n != 3 {
		t.Errorf("pending = %d, want 3", n)
	}
}

func TestConcurrentSends_NoLostUpdates(t *testing.T) {
	b, _ := newTestBus(t)

	const n = 25
	var wg sync.WaitGroup
	idCh := make(chan string, n)
	errCh := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := b.Send("A", "B", "request", map[string]any{"n": i}, SendOpts{})
			if err != nil {
				errCh <- err
				return
			}
			idCh <- id
		}(i)
	}
	wg.Wait()
	close(idCh)
	close(errCh)

	for err := range errCh {
		t.Fatalf("concurrent Send: %v", err)
	}

	seen := make(map[string]bool)
	for id := range idCh {
		if seen[id] {
			t.Errorf("duplicate id %q", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("distinct ids = %d, want %d", len(seen), n)
	}

	msgs, err := b.Get("B", "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(msgs) != n {
		t.Errorf("queue holds %d messages, want %d (lost update)", len(msgs), n)
	}
}

func TestPrune_StrictCutoff(t *testing.T) {
	b, st := newTestBus(t)

	maxAge := time.Hour
	now := time.Now()
	q := &store.Queue{Messages: []store.Message{
		{ID: "msg-old", Timestamp: now.Add(-maxAge - time.Second), ToAgency: "B", Status: store.StatusAcknowledged},
		{ID: "msg-new", Timestamp: now.Add(-maxAge + time.Second), ToAgency: "B", Status: store.StatusPending},
	}}
	if err := st.Replace(q); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	res, err := b.Prune(maxAge)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if res.Pruned != 1 {
		t.Errorf("pruned = %d, want 1", res.Pruned)
	}

	msgs, err := b.Get("B", "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "msg-new" {
		t.Errorf("surviving messages = %v", msgs)
	}
}

type recordingArchiver struct {
	stored []store.Message
	err    error
}

func (a *recordingArchiver) Store(msgs []store.Message) error {
	if a.err != nil {
		return a.err
	}
	a.stored = append(a.stored, msgs...)
	return nil
}

func TestPrune_ArchivesBeforeRemoval(t *testing.T) {
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	arch := &recordingArchiver{}
	b := New(st, arch)

	now := time.Now()
	q := &store.Queue{Messages: []store.Message{
		{ID: "msg-old", Timestamp: now.Add(-48 * time.Hour), ToAgency: "B"},
	}}
	if err := st.Replace(q); err != nil {
		t.Fatal(err)
	}

	res, err := b.Prune(24 * time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if res.Archived != 1 {
		t.Errorf("archived = %d, want 1", res.Archived)
	}
	if len(arch.stored) != 1 || arch.stored[0].ID != "msg-old" {
		t.Errorf("archiver received %v", arch.stored)
	}
}

func TestPrune_ArchiveFailureAborts(t *testing.T) {
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	arch := &recordingArchiver{err: errors.New("disk full")}
	b := New(st, arch)

	now := time.Now()
	if err := st.Replace(&store.Queue{Messages: []store.Message{
		{ID: "msg-old", Timestamp: now.Add(-48 * time.Hour), ToAgency: "B"},
	}}); err != nil {
		t.Fatal(err)
	}

	if _, err := b.Prune(24 * time.Hour); err == nil {
		t.Fatal("expected error when archiver fails")
	}

	// The queue must be untouched.
	q, err := st.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(q.Messages) != 1 {
		t.Errorf("queue = %d messages, want 1 (prune must not drop unarchived history)", len(q.Messages))
	}
}

func TestStats(t *testing.T) {
	b, _ := newTestBus(t)

	ids := make([]string, 4)
	for i := range ids {
		id, err := b.Send("A", "B", "request", nil, SendOpts{})
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
		ids[i] = id
	}
	b.MarkDelivered(ids[0])
	b.MarkAcknowledged(ids[1])

	stats, err := b.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := QueueStats{Total: 4, Pending: 2, Delivered: 1, Acknowledged: 1, LastUpdated: stats.LastUpdated}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
	if stats.LastUpdated == nil {
		t.Error("last_updated missing")
	}
}

func TestOperations_SurfaceCorruption(t *testing.T) {
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	b := New(st, nil)

	path := filepath.Join(st.Dir(), "message_queue.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := b.Send("A", "B", "request", nil, SendOpts{}); !errors.Is(err, store.ErrCorrupted) {
		t.Errorf("Send error = %v, want ErrCorrupted", err)
	}
	if _, err := b.Get("B", ""); !errors.Is(err, store.ErrCorrupted) {
		t.Errorf("Get error = %v, want ErrCorrupted", err)
	}
	if _, err := b.Stats(); !errors.Is(err, store.ErrCorrupted) {
		t.Errorf("Stats error = %v, want ErrCorrupted", err)
	}
}

func TestNewMessageID_Format(t *testing.T) {
	ts := time.Date(2026, 8, 30, 14, 5, 9, 0, time.UTC)
	id, err := newMessageID(ts)
	if err != nil {
		t.Fatal(err)
	}
	if want := "msg-20260830-140509-"; id[:len(want)] != want {
		t.Errorf("id = %q, want prefix %q", id, want)
	}
	if !idPattern.MatchString(id) {
		t.Errorf("id %q does not match pattern", id)
	}
}

func TestList(t *testing.T) {
	b, _ := newTestBus(t)

	id1, err := b.Send("A", "B", "request", nil, SendOpts{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	id2, err := b.Send("B", "C", "response", nil, SendOpts{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := b.MarkDelivered(id2); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}

	all, err := b.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || all[0].ID != id1 || all[1].ID != id2 {
		t.Errorf("List = %v", all)
	}

	delivered, err := b.List(store.StatusDelivered)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(delivered) != 1 || delivered[0].ID != id2 {
		t.Errorf("delivered = %v", delivered)
	}

	if _, err := b.List("bogus"); err == nil {
		t.Error("expected error for invalid status filter")
	}
}

func TestRegister_Idempotent(t *testing.T) {
	b, st := newTestBus(t)

	if err := b.Register("Alice", "Bob"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := b.Register("Bob", "Carol"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	reg, err := st.LoadRegistry()
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	got := reg.Names()
	want := []string{"Alice", "Bob", "Carol"}
	if len(got) != len(want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if err := b.Register(""); err == nil {
		t.Error("expected error for empty agency name")
	}
}
