// Package events defines the journal events recorded for a review session.
package events

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Journal event types.
const (
	TypeFlowSelected     = "session.flow_selected"
	TypeDocumentAttached = "session.document_attached"
	TypeSubmitted        = "session.submitted"
	TypeGenerated        = "session.generated"
	TypeGenerationFailed = "session.generation_failed"
	TypeResumed          = "session.resumed"
	TypeReset            = "session.reset"
	TypeCellEdited       = "grid.cell_edited"
	TypeCellNotPersisted = "grid.cell_not_persisted"
	TypeGridRefreshed    = "grid.refreshed"
	TypeChatCompleted    = "chat.turn_completed"
)

// DomainEvent is the interface dispatched to handlers.
type DomainEvent interface {
	EventType() string
	SessionID() string
	OccurredAt() time.Time
}

// BaseEvent is the journal record. Events are hash chained in append order.
type BaseEvent struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Session   string                 `json:"session_id,omitempty"`
	Flow      string                 `json:"flow,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	PrevHash  string                 `json:"prev_hash,omitempty"`
	Hash      string                 `json:"hash,omitempty"`
}

// New creates an event stamped with a fresh id and the current time.
func New(eventType, sessionID, flow string, metadata map[string]interface{}) *BaseEvent {
	return &BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Session:   sessionID,
		Flow:      flow,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
}

func (e BaseEvent) EventType() string     { return e.Type }
func (e BaseEvent) SessionID() string     { return e.Session }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// CalculateHash generates a deterministic SHA256 hash of the event.
func (e *BaseEvent) CalculateHash() string {
	h := sha256.New()
	h.Write([]byte(e.PrevHash))
	h.Write([]byte(e.ID))
	h.Write([]byte(e.Timestamp.Format(time.RFC3339Nano)))
	h.Write([]byte(e.Type))
	h.Write([]byte(e.Session))
	h.Write([]byte(e.Flow))
	h.Write([]byte(canonicalJSON(e.Metadata)))
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalJSON produces a deterministic JSON representation.
func canonicalJSON(m map[string]interface{}) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]byte, 0, 256)
	ordered = append(ordered, '{')
	for i, k := range keys {
		if i > 0 {
			ordered = append(ordered, ',')
		}
		keyJSON, _ := json.Marshal(k)
		valJSON, _ := json.Marshal(m[k])
		ordered = append(ordered, keyJSON...)
		ordered = append(ordered, ':')
		ordered = append(ordered, valJSON...)
	}
	ordered = append(ordered, '}')
	return string(ordered)
}

// VerifyChain checks that every event's hash matches its content and links
// to its predecessor. It returns the index of the first broken event, or -1.
func VerifyChain(events []*BaseEvent) int {
	prev := ""
	for i, e := range events {
		if e.PrevHash != prev || e.Hash != e.CalculateHash() {
			return i
		}
		prev = e.Hash
	}
	return -1
}
