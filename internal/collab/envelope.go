package collab

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"collab/api/internal/store"
	"collab/api/internal/util"
)

type MessageType string

const (
	TypeEdit        MessageType = "edit"
	TypeCursor      MessageType = "cursor"
	TypePing        MessageType = "ping"
	TypePong        MessageType = "pong"
	TypeUserJoined  MessageType = "user_joined"
	TypeUserLeft    MessageType = "user_left"
	TypeActiveUsers MessageType = "active_users"
	TypeError       MessageType = "error"
)

// Identity is the public view of a member that peers see as user_info.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

type ActiveUser struct {
	UserID      string    `json:"user_id"`
	UserInfo    Identity  `json:"user_info"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Envelope is one outbound message. Fields carries sender-supplied keys
// that are echoed verbatim; the typed fields always win over them.
type Envelope struct {
	Type      MessageType
	UserID    string
	UserInfo  *Identity
	Users     []ActiveUser
	Code      string
	Message   string
	Timestamp time.Time
	Fields    map[string]json.RawMessage
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Fields)+6)
	for key, value := range e.Fields {
		out[key] = value
	}
	out["type"] = e.Type
	if e.UserID != "" {
		out["user_id"] = e.UserID
	}
	if e.UserInfo != nil {
		out["user_info"] = e.UserInfo
	}
	if e.Type == TypeActiveUsers {
		users := e.Users
		if users == nil {
			users = []ActiveUser{}
		}
		out["users"] = users
	}
	if e.Code != "" {
		out["code"] = e.Code
	}
	if e.Message != "" {
		out["message"] = e.Message
	}
	out["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	return json.Marshal(out)
}

var ErrMalformed = errors.New("malformed message")

// Inbound is a decoded client message. Server-owned keys are stripped from
// Fields so a client cannot spoof identity or timestamps on broadcast copies.
type Inbound struct {
	Type   MessageType
	Fields map[string]json.RawMessage
}

var serverOwnedKeys = []string{"type", "user_id", "user_info", "timestamp"}

func DecodeEnvelope(data []byte) (Inbound, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw == nil {
		return Inbound{}, fmt.Errorf("%w: expected a JSON object", ErrMalformed)
	}
	// A missing or non-string type decodes as an unknown message type.
	var kind string
	if typeRaw, ok := raw["type"]; ok {
		_ = json.Unmarshal(typeRaw, &kind)
	}
	for _, key := range serverOwnedKeys {
		delete(raw, key)
	}
	return Inbound{Type: MessageType(kind), Fields: raw}, nil
}

func (in Inbound) Known() bool {
	switch in.Type {
	case TypeEdit, TypeCursor, TypePing:
		return true
	}
	return false
}

// EditRecord projects an edit message onto its persisted form. Missing
// action or object_type are recorded as "unknown".
func (in Inbound) EditRecord(projectID, userID string, now time.Time) store.EditRecord {
	return store.EditRecord{
		ID:           util.NewUUID(),
		ProjectID:    projectID,
		UserID:       userID,
		Action:       in.stringField("action", "unknown"),
		ObjectType:   in.stringField("object_type", "unknown"),
		ObjectID:     in.optionalString("object_id"),
		Changes:      in.jsonField("changes"),
		PreviousData: in.jsonField("previous_data"),
		NewData:      in.jsonField("new_data"),
		SessionID:    in.optionalString("session_id"),
		CreatedAt:    now,
	}
}

func (in Inbound) stringField(key, fallback string) string {
	if value := in.optionalString(key); value != nil && *value != "" {
		return *value
	}
	return fallback
}

func (in Inbound) optionalString(key string) *string {
	raw, ok := in.Fields[key]
	if !ok {
		return nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil || value == nil {
		return nil
	}
	var s string
	switch v := value.(type) {
	case string:
		s = v
	default:
		s = string(raw)
	}
	return &s
}

func (in Inbound) jsonField(key string) json.RawMessage {
	raw, ok := in.Fields[key]
	if !ok || string(raw) == "null" {
		return nil
	}
	return raw
}
