// Package models provides data model definitions for the Duet client core.
package models

import (
	"encoding/json"
	"time"
)

// OperationType identifies which remote call replays a queued mutation.
type OperationType string

const (
	OpCreateJournalEntry OperationType = "create_journal_entry"
	OpCreateMoodEntry    OperationType = "create_mood_entry"
	OpCreateTodoItem     OperationType = "create_todo_item"
	OpUpdateTodoItem     OperationType = "update_todo_item"
	OpCompleteTodoItem   OperationType = "complete_todo_item"
	OpCreatePost         OperationType = "create_post"
	OpLikePost           OperationType = "like_post"
	OpCreateComment      OperationType = "create_comment"
)

// KnownOperationTypes lists every operation type the sync engine can replay.
var KnownOperationTypes = []OperationType{
	OpCreateJournalEntry,
	OpCreateMoodEntry,
	OpCreateTodoItem,
	OpUpdateTodoItem,
	OpCompleteTodoItem,
	OpCreatePost,
	OpLikePost,
	OpCreateComment,
}

// IsValid reports whether t is a recognized operation type.
func (t OperationType) IsValid() bool {
	for _, known := range KnownOperationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// OperationStatus tracks a queued operation's lifecycle.
type OperationStatus string

const (
	// OperationStatusPending means the operation awaits replay.
	OperationStatusPending OperationStatus = "pending"
	// OperationStatusDead means the operation exceeded its retry bound and
	// is retained for inspection rather than retried further.
	OperationStatusDead OperationStatus = "dead"
)

// QueuedOperation is a durable record of a mutation performed offline,
// awaiting replay against the remote service. Type and Payload are immutable
// after enqueue; only RetryCount and Status change.
type QueuedOperation struct {
	ID         UUID            `db:"id" json:"id"`
	UserID     string          `db:"user_id" json:"user_id"`
	Type       OperationType   `db:"operation_type" json:"operation_type"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	RetryCount int             `db:"retry_count" json:"retry_count"`
	Status     OperationStatus `db:"status" json:"status"`
	LastError  string          `db:"last_error" json:"last_error,omitempty"`
	CreatedAt  int64           `db:"created_at" json:"created_at"`
	UpdatedAt  int64           `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for QueuedOperation.
func (QueuedOperation) TableName() string {
	return "pending_operations"
}

// CreatedAtTime returns CreatedAt as time.Time.
func (o *QueuedOperation) CreatedAtTime() time.Time {
	return time.Unix(o.CreatedAt, 0)
}
