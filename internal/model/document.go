package model

import "time"

type SyncStatus string

const (
	SyncStatusLocalOnly   SyncStatus = "local_only"
	SyncStatusPrimaryOnly SyncStatus = "primary_only"
	SyncStatusFullySynced SyncStatus = "fully_synced"
	SyncStatusPending     SyncStatus = "sync_pending"
	SyncStatusFailed      SyncStatus = "sync_failed"
)

// NeedsSync reports whether a document in this status should be picked up
// by the reconnect reconciliation pass.
func (s SyncStatus) NeedsSync() bool {
	return s == SyncStatusPending || s == SyncStatusFailed
}

// Document is a locally cached document record tracked by the replication
// core. RemoteRefs maps location id to the opaque remote reference returned
// by that location's adapter once an upload succeeds.
type Document struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	SizeBytes    int64             `json:"size_bytes"`
	MimeType     string            `json:"mime_type"`
	Category     string            `json:"category"`
	SectionRef   string            `json:"section_ref"`
	Version      int64             `json:"version"`
	SyncStatus   SyncStatus        `json:"sync_status"`
	RemoteRefs   map[string]string `json:"remote_refs,omitempty"`
	LastSyncTime *time.Time        `json:"last_sync_time,omitempty"`
	SyncError    string            `json:"sync_error,omitempty"`
	Content      []byte            `json:"-"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// SyncedTo reports whether the document holds a remote reference for the
// given location.
func (d *Document) SyncedTo(locationID string) bool {
	_, ok := d.RemoteRefs[locationID]
	return ok
}
