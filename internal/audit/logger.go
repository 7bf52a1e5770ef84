package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insurai/compliance-engine/internal/config"
)

// Event types
const (
	EventLogin          = "auth.login"
	EventRecordCreated  = "record.created"
	EventStatusUpdated  = "record.status_updated"
	EventReportExported = "report.exported"
	EventDigestSent     = "digest.sent"
)

// Entry is one audit trail event. Checksum chains each entry to its predecessor.
type Entry struct {
	ID        string            `json:"id"`
	EventType string            `json:"event_type"`
	Actor     string            `json:"actor"`
	EntityID  string            `json:"entity_id,omitempty"`
	Action    string            `json:"action"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Checksum  string            `json:"checksum"`
}

// Filter narrows an audit listing. Zero values match everything.
type Filter struct {
	EventType string
	Actor     string
	Limit     int
}

// Logger keeps a bounded in-memory audit trail
type Logger struct {
	logger     *zap.Logger
	maxEntries int
	now        func() time.Time
	entries    []Entry
	anchor     string // checksum of the last evicted entry
	mu         sync.RWMutex
}

// NewLogger creates an audit logger retaining at most cfg.MaxEntries events
func NewLogger(cfg config.AuditConfig, logger *zap.Logger) *Logger {
	limit := cfg.MaxEntries
	if limit <= 0 {
		limit = 1000
	}
	return &Logger{
		logger:     logger.Named("audit"),
		maxEntries: limit,
		now:        time.Now,
		entries:    make([]Entry, 0, 64),
	}
}

// LogEvent appends an event to the trail, evicting the oldest entry when full
func (l *Logger) LogEvent(eventType, actor, entityID, action string, details map[string]string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	previous := l.anchor
	if n := len(l.entries); n > 0 {
		previous = l.entries[n-1].Checksum
	}

	entry := Entry{
		ID:        uuid.New().String(),
		EventType: eventType,
		Actor:     actor,
		EntityID:  entityID,
		Action:    action,
		Details:   copyDetails(details),
		Timestamp: l.now().UTC(),
	}
	entry.Checksum = checksum(previous, entry)

	if len(l.entries) >= l.maxEntries {
		l.anchor = l.entries[0].Checksum
		l.entries = append(l.entries[:0], l.entries[1:]...)
	}
	l.entries = append(l.entries, entry)

	l.logger.Info("Audit event",
		zap.String("event_type", eventType),
		zap.String("actor", actor),
		zap.String("entity_id", entityID),
		zap.String("action", action),
	)

	return entry
}

// List returns matching entries, newest first
func (l *Logger) List(f Filter) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, 0, len(l.entries))
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if f.EventType != "" && e.EventType != f.EventType {
			continue
		}
		if f.Actor != "" && e.Actor != f.Actor {
			continue
		}
		e.Details = copyDetails(e.Details)
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

// Len reports how many entries are retained
func (l *Logger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Verify recomputes the checksum chain over retained entries, starting from
// the checksum of the last evicted entry.
func (l *Logger) Verify() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	previous := l.anchor
	for _, e := range l.entries {
		if e.Checksum != checksum(previous, e) {
			return fmt.Errorf("audit entry %s checksum mismatch", e.ID)
		}
		previous = e.Checksum
	}
	return nil
}

func checksum(previous string, e Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%s", previous, e.ID, e.EventType, e.Actor, e.EntityID, e.Action,
		e.Timestamp.Format(time.RFC3339Nano))

	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "|%s=%s", k, e.Details[k])
	}

	return hex.EncodeToString(h.Sum(nil))
}

func copyDetails(details map[string]string) map[string]string {
	if details == nil {
		return nil
	}
	out := make(map[string]string, len(details))
	for k, v := range details {
		out[k] = v
	}
	return out
}
