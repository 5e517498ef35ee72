package core

import (
	"context"
	"time"
)

// AuditEntry records a sensitive action (admission decisions, grade
// finalization, manual unlocks) against the object it touched.
type AuditEntry struct {
	ID         string    `json:"id" db:"id"`
	SchoolID   string    `json:"school_id" db:"school_id"`
	ActorID    string    `json:"actor_id" db:"actor_id"`
	Action     string    `json:"action" db:"action"`
	ObjectType string    `json:"object_type" db:"object_type"`
	ObjectID   string    `json:"object_id" db:"object_id"`
	Detail     string    `json:"detail,omitempty" db:"detail"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"` // UTC
}

// AuditTrail persists audit entries. Recording is best effort: services
// log failures but never fail the action over its audit row.
type AuditTrail interface {
	Record(ctx context.Context, entry AuditEntry) error
}
