package realtime

import (
	"bytes"
	"encoding/json"
	"time"

	"bbqstall/crew-monitor/internal/models"
)

const (
	Channel = "crew-monitoring"

	TableOnlineStatus = "crew_online_status"
	TableSessions     = "crew_sessions"
	TableActivityLogs = "crew_activity_logs"
)

// Tables lists the tables the crew monitor listens to.
var Tables = []string{TableOnlineStatus, TableSessions, TableActivityLogs}

// Phase is the subscription state reported to status handlers.
type Phase string

const (
	PhaseConnecting   Phase = "CONNECTING"
	PhaseSubscribed   Phase = "SUBSCRIBED"
	PhaseChannelError Phase = "CHANNEL_ERROR"
	PhaseTimedOut     Phase = "TIMED_OUT"
	PhaseDisconnected Phase = "DISCONNECTED"
	PhaseClosed       Phase = "CLOSED"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

const (
	envelopeChange = "change"
	envelopeStatus = "status"
)

// Envelope is the JSON frame sent to realtime clients.
type Envelope struct {
	Type      string          `json:"type"`
	Channel   string          `json:"channel,omitempty"`
	Table     string          `json:"table,omitempty"`
	EventType EventType       `json:"event_type,omitempty"`
	BranchID  string          `json:"branch_id,omitempty"`
	New       json.RawMessage `json:"new,omitempty"`
	Old       json.RawMessage `json:"old,omitempty"`
	Status    Phase           `json:"status,omitempty"`
	Message   string          `json:"message,omitempty"`
	CreatedAt *time.Time      `json:"created_at,omitempty"`
}

func ChangeEnvelope(table string, eventType EventType, branchID string, newRow, oldRow []byte, createdAt time.Time) Envelope {
	at := createdAt.UTC()
	return Envelope{
		Type:      envelopeChange,
		Channel:   Channel,
		Table:     table,
		EventType: eventType,
		BranchID:  branchID,
		New:       rawOrNil(newRow),
		Old:       rawOrNil(oldRow),
		CreatedAt: &at,
	}
}

func StatusEnvelope(channel string, phase Phase, message string) Envelope {
	return Envelope{Type: envelopeStatus, Channel: channel, Status: phase, Message: message}
}

// ChangeEvent is one row change on a tracked table. The concrete type is one
// of OnlineStatusChange, SessionChange, ActivityLogChange or UnknownChange.
type ChangeEvent interface {
	Table() string
	Type() EventType
	changeEvent()
}

type OnlineStatusChange struct {
	EventType EventType
	New       *models.CrewOnlineStatus
	Old       *models.CrewOnlineStatus
}

func (e OnlineStatusChange) Table() string   { return TableOnlineStatus }
func (e OnlineStatusChange) Type() EventType { return e.EventType }
func (OnlineStatusChange) changeEvent()      {}

type SessionChange struct {
	EventType EventType
	New       *models.CrewSession
	Old       *models.CrewSession
}

func (e SessionChange) Table() string   { return TableSessions }
func (e SessionChange) Type() EventType { return e.EventType }
func (SessionChange) changeEvent()      {}

type ActivityLogChange struct {
	EventType EventType
	New       *models.CrewActivityLog
	Old       *models.CrewActivityLog
}

func (e ActivityLogChange) Table() string   { return TableActivityLogs }
func (e ActivityLogChange) Type() EventType { return e.EventType }
func (ActivityLogChange) changeEvent()      {}

// UnknownChange carries events for tables the monitor does not model.
type UnknownChange struct {
	TableName string
	EventType EventType
	New       json.RawMessage
	Old       json.RawMessage
}

func (e UnknownChange) Table() string   { return e.TableName }
func (e UnknownChange) Type() EventType { return e.EventType }
func (UnknownChange) changeEvent()      {}

// Decode maps a change envelope to its typed event. Rows that fail to decode
// are left nil so the table-level signal still reaches the handler.
func Decode(env Envelope) ChangeEvent {
	switch env.Table {
	case TableOnlineStatus:
		return OnlineStatusChange{
			EventType: env.EventType,
			New:       decodeRow[models.CrewOnlineStatus](env.New),
			Old:       decodeRow[models.CrewOnlineStatus](env.Old),
		}
	case TableSessions:
		return SessionChange{
			EventType: env.EventType,
			New:       decodeRow[models.CrewSession](env.New),
			Old:       decodeRow[models.CrewSession](env.Old),
		}
	case TableActivityLogs:
		return ActivityLogChange{
			EventType: env.EventType,
			New:       decodeRow[models.CrewActivityLog](env.New),
			Old:       decodeRow[models.CrewActivityLog](env.Old),
		}
	default:
		return UnknownChange{TableName: env.Table, EventType: env.EventType, New: env.New, Old: env.Old}
	}
}

func decodeRow[T any](raw json.RawMessage) *T {
	if isEmptyJSON(raw) {
		return nil
	}
	var row T
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil
	}
	return &row
}

func rawOrNil(raw []byte) json.RawMessage {
	if isEmptyJSON(raw) {
		return nil
	}
	return json.RawMessage(raw)
}

func isEmptyJSON(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
