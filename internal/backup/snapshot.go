package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/calperrin/orgvault/internal/store"
)

// SnapshotSource produces the profile and configuration snapshot payloads
// the scheduler enqueues. Payloads are opaque JSON handed to adapters.
type SnapshotSource interface {
	ProfileSnapshot(ctx context.Context) ([]byte, error)
	ConfigurationSnapshot(ctx context.Context) ([]byte, error)
}

// StoreSnapshotSource builds snapshots from the local stores: the profile
// snapshot carries document metadata grouped by profile section, the
// configuration snapshot carries the full settings table.
type StoreSnapshotSource struct {
	docs   *store.DocumentStore
	config *store.ConfigStore
}

func NewStoreSnapshotSource(docs *store.DocumentStore, config *store.ConfigStore) *StoreSnapshotSource {
	return &StoreSnapshotSource{docs: docs, config: config}
}

type profileSnapshot struct {
	TakenAt  time.Time              `json:"taken_at"`
	Sections map[string][]docRecord `json:"sections"`
}

type docRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	SizeBytes int64  `json:"size_bytes"`
	Version   int64  `json:"version"`
}

func (s *StoreSnapshotSource) ProfileSnapshot(ctx context.Context) ([]byte, error) {
	docs, err := s.docs.List()
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	snap := profileSnapshot{
		TakenAt:  time.Now().UTC(),
		Sections: make(map[string][]docRecord),
	}
	for _, d := range docs {
		snap.Sections[d.SectionRef] = append(snap.Sections[d.SectionRef], docRecord{
			ID:        d.ID,
			Name:      d.Name,
			Category:  d.Category,
			SizeBytes: d.SizeBytes,
			Version:   d.Version,
		})
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode profile snapshot: %w", err)
	}
	return data, nil
}

func (s *StoreSnapshotSource) ConfigurationSnapshot(ctx context.Context) ([]byte, error) {
	settings, err := s.config.GetAll()
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	data, err := json.Marshal(map[string]any{
		"taken_at": time.Now().UTC(),
		"settings": settings,
	})
	if err != nil {
		return nil, fmt.Errorf("encode configuration snapshot: %w", err)
	}
	return data, nil
}
