// Package models provides data model definitions for the Duet client core.
package models

// SyncResult reports the outcome of one drain of the pending operation queue.
// It is produced once per sync pass and never mutated after return.
type SyncResult struct {
	Success              bool     `json:"success"`
	SuccessfulOperations int      `json:"successful_operations"`
	FailedOperations     int      `json:"failed_operations"`
	Errors               []string `json:"errors,omitempty"`
}

// SyncStatus is the payload of the sync engine's status event, emitted when a
// drain starts, progresses, and finishes.
type SyncStatus struct {
	IsSyncing        bool   `json:"is_syncing"`
	Total            int    `json:"total"`
	Completed        int    `json:"completed"`
	CurrentOperation string `json:"current_operation,omitempty"`
}
