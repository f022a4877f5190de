// Package bus implements message routing between agencies over the durable
// queue store: send, fetch, broadcast fan-out, delivery lifecycle transitions
// and retention pruning.
package bus

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/zulandar/switchboard/internal/store"
)

// Priorities accepted on send. Broadcasts default to high, everything else
// to medium.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Archiver receives messages removed by Prune before they leave the live
// queue. A nil Archiver discards pruned messages.
type Archiver interface {
	Store(msgs []store.Message) error
}

// Bus is the message routing engine. Every operation is a single
// load→mutate→replace cycle over the store, serialized by one process-wide
// mutex so concurrent operations can never lose each other's writes.
type Bus struct {
	mu       sync.Mutex
	store    *store.Store
	archiver Archiver
}

// New creates a Bus over st. archiver may be nil.
func New(st *store.Store, archiver Archiver) *Bus {
	return &Bus{store: st, archiver: archiver}
}

// SendOpts holds optional parameters for sending a message.
type SendOpts struct {
	Priority string // high, medium (default), low
}

// QueueStats summarizes the live queue by lifecycle state.
type QueueStats struct {
	Total        int        `json:"total_messages"`
	Pending      int        `json:"pending"`
	Delivered    int        `json:"delivered"`
	Acknowledged int        `json:"acknowledged"`
	LastUpdated  *time.Time `json:"last_updated"`
}

// PruneResult reports what a Prune pass removed.
type PruneResult struct {
	Pruned   int
	Archived int
}

// Send appends a pending message to the queue and returns its id. The
// recipient is not checked against the registry; sends to unknown agencies
// are accepted.
func (b *Bus) Send(from, to, msgType string, payload map[string]any, opts SendOpts) (string, error) {
	if from == "" {
		return "", fmt.Errorf("bus: from is required")
	}
	if to == "" {
		return "", fmt.Errorf("bus: to is required")
	}
	if msgType == "" {
		return "", fmt.Errorf("bus: type is required")
	}
	priority := opts.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	if priority != PriorityHigh && priority != PriorityMedium && priority != PriorityLow {
		return "", fmt.Errorf("bus: invalid priority %q", priority)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	q, err := b.store.Load()
	if err != nil {
		return "", err
	}

	now := time.Now()
	id, err := newMessageID(now)
	if err != nil {
		return "", err
	}

	q.Messages = append(q.Messages, store.Message{
		ID:         id,
		Timestamp:  now,
		FromAgency: from,
		ToAgency:   to,
		Priority:   priority,
		Type:       msgType,
		Payload:    payload,
		Status:     store.StatusPending,
	})

	if err := b.store.Replace(q); err != nil {
		return "", err
	}
	return id, nil
}

// Get returns all messages addressed to agency in send order, optionally
// filtered by status (empty status means no filter).
func (b *Bus) Get(agency string, status store.Status) ([]store.Message, error) {
	if agency == "" {
		return nil, fmt.Errorf("bus: agency is required")
	}
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("bus: invalid status %q", status)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	q, err := b.store.Load()
	if err != nil {
		return nil, err
	}

	var msgs []store.Message
	for _, m := range q.Messages {
		if m.ToAgency != agency {
			continue
		}
		if status != "" && m.Status != status {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// List returns every message in the queue, optionally filtered by status.
// Queue order is preserved.
func (b *Bus) List(status store.Status) ([]store.Message, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("bus: invalid status %q", status)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	q, err := b.store.Load()
	if err != nil {
		return nil, err
	}
	matched := []store.Message{}
	for _, m := range q.Messages {
		if status != "" && m.Status != status {
			continue
		}
		matched = append(matched, m)
	}
	return matched, nil
}

// Find returns the message with the given id, or nil if it is not in the
// live queue (it may have been pruned).
func (b *Bus) Find(id string) (*store.Message, error) {
	if id == "" {
		return nil, fmt.Errorf("bus: id is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	q, err := b.store.Load()
	if err != nil {
		return nil, err
	}
	for i := range q.Messages {
		if q.Messages[i].ID == id {
			m := q.Messages[i]
			return &m, nil
		}
	}
	return nil, nil
}

// MarkDelivered advances a pending message to delivered and stamps
// delivered_at. Unknown ids and messages already at delivered or
// acknowledged are no-ops.
func (b *Bus) MarkDelivered(id string) error {
	return b.transition(id, func(m *store.Message) bool {
		if m.Status != store.StatusPending {
			return false
		}
		now := time.Now()
		m.Status = store.StatusDelivered
		m.DeliveredAt = &now
		return true
	})
}

// MarkAcknowledged advances a message to acknowledged and stamps
// acknowledged_at. A pending message may skip delivered entirely. Unknown
// ids and already-acknowledged messages are no-ops; acknowledged never
// reverts.
func (b *Bus) MarkAcknowledged(id string) error {
	return b.transition(id, func(m *store.Message) bool {
		if m.Status == store.StatusAcknowledged {
			return false
		}
		now := time.Now()
		m.Status = store.StatusAcknowledged
		m.AcknowledgedAt = &now
		return true
	})
}

// transition applies mutate to the message with the given id. The queue is
// rewritten only when mutate reports a change.
func (b *Bus) transition(id string, mutate func(*store.Message) bool) error {
	if id == "" {
		return fmt.Errorf("bus: id is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	q, err := b.store.Load()
	if err != nil {
		return err
	}

	for i := range q.Messages {
		if q.Messages[i].ID != id {
			continue
		}
		if !mutate(&q.Messages[i]) {
			return nil
		}
		return b.store.Replace(q)
	}
	return nil
}

// Broadcast sends one copy of the message to every registered agency except
// the sender, in registry order, and returns the ids. Sender exclusion is by
// name equality; the sender need not be registered itself.
func (b *Bus) Broadcast(from, msgType string, payload map[string]any, opts SendOpts) ([]string, error) {
	if from == "" {
		return nil, fmt.Errorf("bus: from is required")
	}
	if opts.Priority == "" {
		opts.Priority = PriorityHigh
	}

	b.mu.Lock()
	reg, err := b.store.LoadRegistry()
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, name := range reg.Names() {
		if name == from {
			continue
		}
		id, err := b.Send(from, name, msgType, payload, opts)
		if err != nil {
			return ids, fmt.Errorf("bus: broadcast to %s: %w", name, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// PendingCount returns the number of pending messages addressed to agency.
func (b *Bus) PendingCount(agency string) (int, error) {
	msgs, err := b.Get(agency, store.StatusPending)
	if err != nil {
		return 0, err
	}
	return len(msgs), nil
}

// Prune removes messages whose timestamp is strictly older than now-maxAge.
// Messages exactly at the boundary are retained. Removed messages are handed
// to the archiver first; an archive failure aborts the prune with the queue
// untouched.
func (b *Bus) Prune(maxAge time.Duration) (PruneResult, error) {
	if maxAge <= 0 {
		return PruneResult{}, fmt.Errorf("bus: max age must be positive")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	q, err := b.store.Load()
	if err != nil {
		return PruneResult{}, err
	}

	cutoff := time.Now().Add(-maxAge)
	var kept, pruned []store.Message
	for _, m := range q.Messages {
		if m.Timestamp.Before(cutoff) {
			pruned = append(pruned, m)
		} else {
			kept = append(kept, m)
		}
	}
	if len(pruned) == 0 {
		return PruneResult{}, nil
	}

	res := PruneResult{Pruned: len(pruned)}
	if b.archiver != nil {
		if err := b.archiver.Store(pruned); err != nil {
			return PruneResult{}, fmt.Errorf("bus: archive pruned messages: %w", err)
		}
		res.Archived = len(pruned)
	}

	q.Messages = kept
	if err := b.store.Replace(q); err != nil {
		return PruneResult{}, err
	}
	return res, nil
}

// Stats returns queue totals by lifecycle state.
func (b *Bus) Stats() (QueueStats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, err := b.store.Load()
	if err != nil {
		return QueueStats{}, err
	}

	stats := QueueStats{Total: len(q.Messages), LastUpdated: q.LastUpdated}
	for _, m := range q.Messages {
		switch m.Status {
		case store.StatusPending:
			stats.Pending++
		case store.StatusDelivered:
			stats.Delivered++
		case store.StatusAcknowledged:
			stats.Acknowledged++
		}
	}
	return stats, nil
}

// Register adds agencies to the registry. Names already present are left
// in place, so registration is idempotent.
func (b *Bus) Register(names ...string) error {
	for _, n := range names {
		if n == "" {
			return fmt.Errorf("bus: agency name is required")
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	reg, err := b.store.LoadRegistry()
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(reg.Agencies))
	for _, a := range reg.Agencies {
		known[a.Name] = true
	}

	changed := false
	for _, n := range names {
		if known[n] {
			continue
		}
		reg.Agencies = append(reg.Agencies, store.Agency{Name: n})
		known[n] = true
		changed = true
	}
	if !changed {
		return nil
	}
	return b.store.ReplaceRegistry(reg)
}

// Registry returns a snapshot of the agency registry.
func (b *Bus) Registry() (*store.Registry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.LoadRegistry()
}

// newMessageID builds an id in the form msg-YYYYMMDD-HHMMSS-xxxxxx with a
// random 6-hex-digit suffix. Ids are generated once at send time and never
// reused.
func newMessageID(now time.Time) (string, error) {
	var buf [3]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("bus: generate id: %w", err)
	}
	return fmt.Sprintf("msg-%s-%s", now.Format("20060102-150405"), hex.EncodeToString(buf[:])), nil
}
