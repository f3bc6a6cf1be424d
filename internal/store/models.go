package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID           string
	Email        string
	Username     string
	FullName     string
	PasswordHash string
	IsActive     bool
	IsSuperuser  bool
	IsVerified   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Project struct {
	ID          string
	Name        string
	Description string
	OwnerID     string
	IsActive    bool
	IsPublic    bool
	Metadata    json.RawMessage
	Settings    json.RawMessage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Layer groups drawing objects inside a project. Geometry is stored as an
// opaque string; the server never interprets it.
type Layer struct {
	ID               string
	ProjectID        string
	Name             string
	LayerType        string
	IsVisible        bool
	IsLocked         bool
	ZIndex           int
	Geometry         *string
	Style            json.RawMessage
	Properties       json.RawMessage
	ExternalObjectID *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ProjectFilter narrows ListProjects to what a viewer may see.
type ProjectFilter struct {
	ViewerID   string
	PublicOnly bool
	Search     string
	Skip       int
	Limit      int
}

// EditRecord is one row of the append-only edit_history table.
type EditRecord struct {
	ID           string
	ProjectID    string
	UserID       string
	Action       string
	ObjectType   string
	ObjectID     *string
	Changes      json.RawMessage
	PreviousData json.RawMessage
	NewData      json.RawMessage
	SessionID    *string
	CreatedAt    time.Time
}
