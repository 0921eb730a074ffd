package model

import "time"

type LocationType string

const (
	LocationTypePrimary    LocationType = "primary-object-store"
	LocationTypeCloudDrive LocationType = "cloud-drive"
)

type LocationStatus string

const (
	LocationStatusActive   LocationStatus = "active"
	LocationStatusInactive LocationStatus = "inactive"
	LocationStatusError    LocationStatus = "error"
)

// PrimaryLocationID is the fixed id of the primary object-store location.
// Exactly one location carries it and it is created at initialization.
const PrimaryLocationID = "primary"

// BackupLocation is a configured remote storage destination.
type BackupLocation struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Type              LocationType   `json:"type"`
	Status            LocationStatus `json:"status"`
	LastBackupTime    *time.Time     `json:"last_backup_time,omitempty"`
	SpaceUsed         int64          `json:"space_used,omitempty"`
	SpaceLimit        int64          `json:"space_limit,omitempty"`
	AccountIdentifier string         `json:"account_identifier,omitempty"`
	RemoteFolderRef   string         `json:"remote_folder_ref,omitempty"`
}

// IsPrimary reports whether this is the primary object-store location.
func (l BackupLocation) IsPrimary() bool {
	return l.Type == LocationTypePrimary
}
