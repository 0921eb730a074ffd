package backup

import (
	"time"

	"github.com/calperrin/orgvault/internal/model"
)

// Stats is the operator-facing summary, recomputed on demand so it is
// always consistent with the latest mutation.
type Stats struct {
	TotalLocations  int        `json:"total_locations"`
	ActiveLocations int        `json:"active_locations"`
	LastBackupTime  *time.Time `json:"last_backup_time,omitempty"`
	TotalBytes      int64      `json:"total_bytes"`
	QueueDepth      int        `json:"queue_depth"`
}

// ComputeStats aggregates the current registry and queue state.
func ComputeStats(locations []model.BackupLocation, queueDepth int) Stats {
	stats := Stats{
		TotalLocations: len(locations),
		QueueDepth:     queueDepth,
	}
	for _, loc := range locations {
		if loc.Status == model.LocationStatusActive {
			stats.ActiveLocations++
			stats.TotalBytes += loc.SpaceUsed
		}
		if loc.LastBackupTime != nil {
			if stats.LastBackupTime == nil || loc.LastBackupTime.After(*stats.LastBackupTime) {
				stats.LastBackupTime = loc.LastBackupTime
			}
		}
	}
	return stats
}
