package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mstfa13/asura-backend/internal/queue"

	"github.com/sirupsen/logrus"
)

// errPermanent marks failures that retrying cannot fix.
var errPermanent = errors.New("permanent failure")

// AuditRecord is one line of the audit log.
type AuditRecord struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	UserID      int64     `json:"user_id"`
	Username    string    `json:"username,omitempty"`
	Key         string    `json:"key,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
	ProcessedAt time.Time `json:"processed_at"`
	Worker      int       `json:"worker"`
}

// AuditLog appends JSON lines to w. It is safe for concurrent use.
type AuditLog struct {
	mu  sync.Mutex
	enc *json.Encoder
	now func() time.Time
}

func NewAuditLog(w io.Writer) *AuditLog {
	return &AuditLog{enc: json.NewEncoder(w), now: time.Now}
}

func (a *AuditLog) write(rec AuditRecord) error {
	rec.ProcessedAt = a.now().UTC()

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enc.Encode(rec)
}

func handleEvent(audit *AuditLog, ev queue.Event, workerID int) error {
	rec := AuditRecord{
		EventID:    ev.ID,
		EventType:  ev.Type,
		OccurredAt: ev.Timestamp,
		Worker:     workerID,
	}

	switch ev.Type {
	case queue.EventUserRegistered:
		var p queue.UserRegisteredPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return fmt.Errorf("%w: decode %s payload: %v", errPermanent, ev.Type, err)
		}
		rec.UserID = p.UserID
		rec.Username = p.Username

	case queue.EventUserDataUpdated:
		var p queue.UserDataUpdatedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return fmt.Errorf("%w: decode %s payload: %v", errPermanent, ev.Type, err)
		}
		rec.UserID = p.UserID
		rec.Key = p.Key

	default:
		return fmt.Errorf("%w: unknown event type: %s", errPermanent, ev.Type)
	}

	if err := audit.write(rec); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"worker":     workerID,
		"event_id":   ev.ID,
		"event_type": ev.Type,
		"user_id":    rec.UserID,
	}).Info("Event audited")
	return nil
}
