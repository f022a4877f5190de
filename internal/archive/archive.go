// Package archive persists pruned messages to a local sqlite database so
// retention pruning never silently destroys history.
package archive

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/zulandar/switchboard/internal/store"
)

// ArchivedMessage is a pruned message row. Payload is stored as JSON text.
type ArchivedMessage struct {
	ID             string `gorm:"primaryKey;size:64"`
	Timestamp      time.Time
	FromAgency     string `gorm:"size:64;not null;index"`
	ToAgency       string `gorm:"size:64;not null;index"`
	Priority       string `gorm:"size:8"`
	Type           string `gorm:"size:64"`
	Payload        string `gorm:"type:text"`
	Status         string `gorm:"size:16"`
	DeliveredAt    *time.Time
	AcknowledgedAt *time.Time
	ArchivedAt     time.Time
}

// DecodePayload unmarshals the stored payload JSON.
func (m *ArchivedMessage) DecodePayload() (map[string]any, error) {
	if m.Payload == "" {
		return nil, nil
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(m.Payload), &payload); err != nil {
		return nil, fmt.Errorf("archive: decode payload of %s: %w", m.ID, err)
	}
	return payload, nil
}

// Archive is a sqlite-backed message archive. It implements bus.Archiver.
type Archive struct {
	db *gorm.DB
}

// Open opens (or creates) the archive database at path and migrates the
// schema.
func Open(path string) (*Archive, error) {
	if path == "" {
		return nil, fmt.Errorf("archive: path is required")
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&ArchivedMessage{}); err != nil {
		return nil, fmt.Errorf("archive: auto-migrate: %w", err)
	}
	return &Archive{db: db}, nil
}

// Store writes messages into the archive. Re-archiving an id already present
// is a no-op, so a retried prune cannot fail or duplicate rows.
func (a *Archive) Store(msgs []store.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	rows := make([]ArchivedMessage, 0, len(msgs))
	now := time.Now()
	for _, m := range msgs {
		payload, err := json.Marshal(m.Payload)
		if err != nil {
			return fmt.Errorf("archive: encode payload of %s: %w", m.ID, err)
		}
		rows = append(rows, ArchivedMessage{
			ID:             m.ID,
			Timestamp:      m.Timestamp,
			FromAgency:     m.FromAgency,
			ToAgency:       m.ToAgency,
			Priority:       m.Priority,
			Type:           m.Type,
			Payload:        string(payload),
			Status:         string(m.Status),
			DeliveredAt:    m.DeliveredAt,
			AcknowledgedAt: m.AcknowledgedAt,
			ArchivedAt:     now,
		})
	}

	result := a.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
	if result.Error != nil {
		return fmt.Errorf("archive: store %d messages: %w", len(rows), result.Error)
	}
	return nil
}

// List returns archived messages, newest first, optionally filtered by
// recipient agency. limit <= 0 means no limit.
func (a *Archive) List(agency string, limit int) ([]ArchivedMessage, error) {
	q := a.db.Order("timestamp DESC")
	if agency != "" {
		q = q.Where("to_agency = ?", agency)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []ArchivedMessage
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	return rows, nil
}

// Count returns the total number of archived messages.
func (a *Archive) Count() (int64, error) {
	var n int64
	if err := a.db.Model(&ArchivedMessage{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("archive: count: %w", err)
	}
	return n, nil
}
