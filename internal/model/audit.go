package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ChangeLogEntry records one state transition of an entity.
type ChangeLogEntry struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	Actor      string          `json:"actor" db:"actor"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id" db:"entity_id"`
	Operation  string          `json:"operation" db:"operation"`
	Before     json.RawMessage `json:"before,omitempty" db:"before_state"`
	After      json.RawMessage `json:"after,omitempty" db:"after_state"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

const (
	// Operations
	AuditActionCreate  = "create"
	AuditActionResolve = "resolve"

	// Entity types
	AuditEntityAlert = "alert"
)
