package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/calperrin/orgvault/internal/model"
	"github.com/calperrin/orgvault/internal/store"
)

// Registry holds the set of configured backup locations. State lives in
// memory and is persisted as a JSON blob to the durable configuration
// store on every mutation; a persistence failure is logged and the
// in-process state stays authoritative.
type Registry struct {
	mu        sync.RWMutex
	locations map[string]model.BackupLocation
	order     []string

	config *store.ConfigStore
	logger *slog.Logger
}

// NewRegistry loads the location set from the configuration store and
// guarantees the primary object-store location exists.
func NewRegistry(cfg *store.ConfigStore, logger *slog.Logger) (*Registry, error) {
	r := &Registry{
		locations: make(map[string]model.BackupLocation),
		config:    cfg,
		logger:    logger,
	}

	ok, err := cfg.Has(store.KeyBackupLocations)
	if err != nil {
		return nil, fmt.Errorf("load locations: %w", err)
	}
	if ok {
		raw, err := cfg.Get(store.KeyBackupLocations)
		if err != nil {
			return nil, fmt.Errorf("load locations: %w", err)
		}
		var locs []model.BackupLocation
		if err := json.Unmarshal([]byte(raw), &locs); err != nil {
			return nil, fmt.Errorf("decode locations: %w", err)
		}
		for _, l := range locs {
			r.locations[l.ID] = l
			r.order = append(r.order, l.ID)
		}
	}

	if !r.hasPrimary() {
		r.locations[model.PrimaryLocationID] = model.BackupLocation{
			ID:     model.PrimaryLocationID,
			Name:   "Primary object store",
			Type:   model.LocationTypePrimary,
			Status: model.LocationStatusActive,
		}
		r.order = append([]string{model.PrimaryLocationID}, r.order...)
		r.persist()
	}

	return r, nil
}

func (r *Registry) hasPrimary() bool {
	for _, l := range r.locations {
		if l.IsPrimary() {
			return true
		}
	}
	return false
}

// List returns all locations, primary first, then in configuration order.
func (r *Registry) List() []model.BackupLocation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

func (r *Registry) listLocked() []model.BackupLocation {
	out := make([]model.BackupLocation, 0, len(r.locations))
	for _, id := range r.order {
		if l, ok := r.locations[id]; ok {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].IsPrimary() && !out[j].IsPrimary()
	})
	return out
}

// Get returns a location by id.
func (r *Registry) Get(id string) (model.BackupLocation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.locations[id]
	return l, ok
}

// Primary returns the primary object-store location.
func (r *Registry) Primary() model.BackupLocation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, l := range r.locations {
		if l.IsPrimary() {
			return l
		}
	}
	// Unreachable: the constructor guarantees a primary.
	return model.BackupLocation{}
}

// Upsert adds or replaces a location. A second primary is rejected, as is
// changing the type of the existing primary.
func (r *Registry) Upsert(loc model.BackupLocation) error {
	if loc.ID == "" {
		return fmt.Errorf("location id required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.locations[loc.ID]
	if loc.Type == model.LocationTypePrimary {
		if !exists || !existing.IsPrimary() {
			return fmt.Errorf("primary location already exists")
		}
	} else if exists && existing.IsPrimary() {
		return fmt.Errorf("cannot change type of primary location")
	}

	r.locations[loc.ID] = loc
	if !exists {
		r.order = append(r.order, loc.ID)
	}
	r.persist()
	return nil
}

// Remove deletes a secondary location. The primary is never removable.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	loc, ok := r.locations[id]
	if !ok {
		return fmt.Errorf("location %q not found", id)
	}
	if loc.IsPrimary() {
		return fmt.Errorf("primary location cannot be removed")
	}

	delete(r.locations, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.persist()
	return nil
}

// SetStatus updates a location's live status.
func (r *Registry) SetStatus(id string, status model.LocationStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	loc, ok := r.locations[id]
	if !ok || loc.Status == status {
		return
	}
	loc.Status = status
	r.locations[id] = loc
	r.persist()
}

// RecordBackup marks a successful backup to the location, advancing its
// last-backup time and space usage.
func (r *Registry) RecordBackup(id string, at time.Time, bytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	loc, ok := r.locations[id]
	if !ok {
		return
	}
	loc.LastBackupTime = &at
	loc.SpaceUsed += bytes
	loc.Status = model.LocationStatusActive
	r.locations[id] = loc
	r.persist()
}

// SetQuota overwrites a location's space usage from a quota probe.
func (r *Registry) SetQuota(id string, used, limit int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	loc, ok := r.locations[id]
	if !ok {
		return
	}
	loc.SpaceUsed = used
	loc.SpaceLimit = limit
	r.locations[id] = loc
	r.persist()
}

// persist writes the full location set to the configuration store with a
// short bounded retry. Callers hold the write lock. Failures are logged;
// in-memory state is not rolled back.
func (r *Registry) persist() {
	data, err := json.Marshal(r.listLocked())
	if err != nil {
		r.logger.Error("encode locations", "error", err)
		return
	}

	backoff := retry.WithMaxRetries(2, retry.NewConstant(50*time.Millisecond))
	err = retry.Do(context.Background(), backoff, func(ctx context.Context) error {
		if err := r.config.Set(store.KeyBackupLocations, string(data)); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		r.logger.Warn("persist locations failed, in-memory state still authoritative", "error", err)
	}
}
