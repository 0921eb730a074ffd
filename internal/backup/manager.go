package backup

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/multierr"

	"github.com/calperrin/orgvault/internal/model"
	"github.com/calperrin/orgvault/internal/store"
)

const (
	defaultPacing    = 500 * time.Millisecond
	scheduleTick     = time.Minute
	snapshotSaltKey  = "snapshot_salt"
	driveLocationPfx = "drive-"
)

// Config holds replication manager configuration.
type Config struct {
	S3     S3Config
	Pacing time.Duration
}

// State represents the worker state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateError   State = "error"
)

// Status holds the current replication status, pushed to the status
// callback after every change.
type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	Error      string     `json:"error,omitempty"`
	InProgress bool       `json:"in_progress"`
	QueueDepth int        `json:"queue_depth"`
}

// StatusCallback is called whenever the replication status changes.
type StatusCallback func(Status)

// DriveFactory builds a destination adapter for a configured cloud-drive
// account. It returns an error when the account credentials are missing or
// unusable, which rejects the configuration call.
type DriveFactory func(account model.DriveAccount) (Adapter, error)

// Manager orchestrates replication of documents and snapshots to the
// registered backup locations. All state is owned by the single Manager
// instance constructed at process start; the worker goroutine is the only
// writer of sync-status transitions.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	status   Status
	callback StatusCallback
	online   bool

	registry  *Registry
	docs      *store.DocumentStore
	config    *store.ConfigStore
	snapshots SnapshotSource
	queue     *Queue

	adapters     map[string]Adapter
	driveFactory DriveFactory

	adminCfg        model.AdminBackupConfig
	snapshotPass    string
	lastScheduledAt time.Time

	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates the replication manager. The primary object-store
// adapter is registered automatically when the S3 configuration is
// complete; cloud-drive adapters are registered as accounts are configured.
func NewManager(cfg Config, registry *Registry, docs *store.DocumentStore, configStore *store.ConfigStore,
	snapshots SnapshotSource, driveFactory DriveFactory, callback StatusCallback, logger *slog.Logger) *Manager {

	if cfg.Pacing <= 0 {
		cfg.Pacing = defaultPacing
	}

	m := &Manager{
		cfg:          cfg,
		status:       Status{State: StateIdle},
		callback:     callback,
		online:       true,
		registry:     registry,
		docs:         docs,
		config:       configStore,
		snapshots:    snapshots,
		queue:        NewQueue(),
		adapters:     make(map[string]Adapter),
		driveFactory: driveFactory,
		adminCfg:     model.DefaultAdminBackupConfig(),
		logger:       logger,
	}

	if cfg.S3.Configured() {
		m.adapters[m.registry.Primary().ID] = NewObjectStoreAdapter(cfg.S3)
	}

	m.loadAdminConfig()
	return m
}

func (m *Manager) loadAdminConfig() {
	ok, err := m.config.Has(store.KeyAdminBackupConfig)
	if err != nil || !ok {
		return
	}
	raw, err := m.config.Get(store.KeyAdminBackupConfig)
	if err != nil {
		m.logger.Warn("load admin backup config", "error", err)
		return
	}
	var cfg model.AdminBackupConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		m.logger.Warn("decode admin backup config", "error", err)
		return
	}
	m.adminCfg = cfg

	// Re-register drive adapters for persisted accounts.
	if m.driveFactory != nil {
		for _, acct := range cfg.DriveAccounts() {
			adapter, err := m.driveFactory(acct)
			if err != nil {
				m.logger.Warn("restore drive adapter", "account", acct.Email, "error", err)
				continue
			}
			m.adapters[driveLocationPfx+acct.Email] = adapter
		}
	}
}

// Start launches the worker and scheduler loops. It also runs one
// reconciliation pass so documents stranded in a pending or failed state
// by an unclean shutdown are re-enqueued at boot.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.mu.Unlock()

	if n, err := m.ReconcilePending(); err != nil {
		m.logger.Warn("startup reconciliation", "error", err)
	} else if n > 0 {
		m.logger.Info("startup reconciliation re-enqueued documents", "count", n)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.workerLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		m.scheduleLoop(ctx)
	}()
	go func() {
		wg.Wait()
		close(m.done)
	}()
}

// Stop gracefully stops the manager.
func (m *Manager) Stop() {
	m.mu.RLock()
	cancel := m.cancel
	done := m.done
	m.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Status returns the current worker status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.status
	s.QueueDepth = m.queue.Len()
	return s
}

func (m *Manager) setStatus(s Status) {
	s.QueueDepth = m.queue.Len()
	m.mu.Lock()
	m.status = s
	cb := m.callback
	m.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

// SetOnline records the connectivity state reported by the monitor. While
// offline the worker consumes tasks without attempting destination calls.
func (m *Manager) SetOnline(online bool) {
	m.mu.Lock()
	m.online = online
	m.mu.Unlock()
}

// Online reports the last known connectivity state.
func (m *Manager) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// RegisterAdapter binds a destination adapter to a location id.
func (m *Manager) RegisterAdapter(locationID string, a Adapter) {
	m.mu.Lock()
	m.adapters[locationID] = a
	m.mu.Unlock()
}

func (m *Manager) adapter(locationID string) Adapter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.adapters[locationID]
}

// Locations returns the registered backup locations, primary first.
func (m *Manager) Locations() []model.BackupLocation {
	return m.registry.List()
}

// Stats aggregates the current registry and queue state.
func (m *Manager) Stats() Stats {
	return ComputeStats(m.registry.List(), m.queue.Len())
}

// AdminConfig returns the current admin backup configuration.
func (m *Manager) AdminConfig() model.AdminBackupConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.adminCfg
}

// CacheSnapshotPassphrase caches the snapshot encryption passphrase in
// memory and ensures a key-derivation salt is persisted.
func (m *Manager) CacheSnapshotPassphrase(passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("passphrase required")
	}

	if ok, err := m.config.Has(snapshotSaltKey); err == nil && !ok {
		salt, err := GenerateSalt()
		if err != nil {
			return err
		}
		if err := m.config.Set(snapshotSaltKey, hex.EncodeToString(salt)); err != nil {
			return fmt.Errorf("persist salt: %w", err)
		}
	}

	m.mu.Lock()
	m.snapshotPass = passphrase
	m.mu.Unlock()
	return nil
}

// ConfigureAdminBackup validates and applies the admin backup
// configuration. Validation failures reject the call with no partial state
// applied; adapters and registry locations are only touched after every
// account has produced a working adapter.
func (m *Manager) ConfigureAdminBackup(cfg model.AdminBackupConfig) error {
	if cfg.EnableRealTimeSync && cfg.AutoBackupIntervalMinutes <= 0 {
		return fmt.Errorf("auto backup interval must be positive")
	}
	if cfg.RetentionDays < 0 {
		return fmt.Errorf("retention days cannot be negative")
	}

	accounts := cfg.DriveAccounts()
	for _, acct := range accounts {
		if acct.Email == "" {
			return fmt.Errorf("drive account email required")
		}
	}
	if len(accounts) > 0 && m.driveFactory == nil {
		return fmt.Errorf("cloud-drive support not configured")
	}
	if cfg.EncryptSnapshots {
		m.mu.RLock()
		hasPass := m.snapshotPass != ""
		m.mu.RUnlock()
		if !hasPass {
			return fmt.Errorf("snapshot encryption enabled but no passphrase cached")
		}
	}

	// Build every adapter before applying anything.
	built := make(map[string]Adapter, len(accounts))
	for _, acct := range accounts {
		adapter, err := m.driveFactory(acct)
		if err != nil {
			return fmt.Errorf("drive account %s: %w", acct.Email, err)
		}
		built[driveLocationPfx+acct.Email] = adapter
	}

	// Apply: persist config, sync registry locations, swap adapters.
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := m.config.Set(store.KeyAdminBackupConfig, string(data)); err != nil {
		m.logger.Warn("persist admin backup config, in-memory state still authoritative", "error", err)
	}

	keep := make(map[string]bool, len(accounts))
	for _, acct := range accounts {
		id := driveLocationPfx + acct.Email
		keep[id] = true
		loc, ok := m.registry.Get(id)
		if !ok {
			loc = model.BackupLocation{
				ID:     id,
				Name:   "Drive (" + acct.Email + ")",
				Type:   model.LocationTypeCloudDrive,
				Status: model.LocationStatusActive,
			}
		}
		loc.AccountIdentifier = acct.Email
		loc.RemoteFolderRef = acct.RemoteFolderRef
		if err := m.registry.Upsert(loc); err != nil {
			return err
		}
	}
	for _, loc := range m.registry.List() {
		if loc.Type == model.LocationTypeCloudDrive && !keep[loc.ID] {
			if err := m.registry.Remove(loc.ID); err != nil {
				m.logger.Warn("remove drive location", "location", loc.ID, "error", err)
			}
		}
	}

	m.mu.Lock()
	m.adminCfg = cfg
	for _, loc := range m.registry.List() {
		if loc.Type == model.LocationTypeCloudDrive && !keep[loc.ID] {
			delete(m.adapters, loc.ID)
		}
	}
	for id, adapter := range built {
		m.adapters[id] = adapter
	}
	m.mu.Unlock()

	m.logger.Info("admin backup config applied",
		"accounts", len(accounts),
		"interval_minutes", cfg.AutoBackupIntervalMinutes,
		"real_time_sync", cfg.EnableRealTimeSync)
	return nil
}

// BackupDocument stores the document locally and enqueues a replication
// task. Intake always succeeds locally even if every destination is down.
func (m *Manager) BackupDocument(doc *model.Document, priority model.TaskPriority) (*model.Document, error) {
	stored, err := m.docs.Upsert(doc)
	if err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}
	if err := m.docs.UpdateSync(stored.ID, model.SyncStatusPending, "", nil); err != nil {
		return nil, err
	}
	stored.SyncStatus = model.SyncStatusPending

	m.enqueue(NewTask(model.TaskKindDocument, stored.ID, priority))
	return stored, nil
}

// BackupProfileData enqueues a profile snapshot task.
func (m *Manager) BackupProfileData() {
	m.enqueue(NewTask(model.TaskKindProfile, "", model.TaskPriorityNormal))
}

// BackupApplicationConfig enqueues a configuration snapshot task at high
// priority so it is processed before any pending document backlog.
func (m *Manager) BackupApplicationConfig() {
	m.enqueue(NewTask(model.TaskKindConfiguration, "", model.TaskPriorityHigh))
}

// DeleteDocument attempts a remote delete at every location holding a copy
// and then removes the document locally. Remote deletes are best effort:
// failures are logged as warnings and never block local removal.
func (m *Manager) DeleteDocument(ctx context.Context, id string) error {
	doc, err := m.docs.Get(id)
	if err != nil {
		return err
	}
	if doc == nil {
		return nil
	}

	for locID, ref := range doc.RemoteRefs {
		adapter := m.adapter(locID)
		if adapter == nil {
			m.logger.Warn("no adapter for remote delete", "location", locID, "document", id)
			continue
		}
		if err := adapter.Delete(ctx, ref); err != nil {
			m.logger.Warn("remote delete failed", "location", locID, "document", id, "error", err)
		}
	}

	return m.docs.Delete(id)
}

// TestConnectivity probes every registered location. It never mutates
// location status, so it is safe to call frequently from a dashboard.
func (m *Manager) TestConnectivity(ctx context.Context) map[string]bool {
	results := make(map[string]bool)
	for _, loc := range m.registry.List() {
		adapter := m.adapter(loc.ID)
		if adapter == nil {
			results[loc.ID] = false
			continue
		}
		results[loc.ID] = adapter.Probe(ctx) == nil
	}
	return results
}

// RefreshQuotas polls every drive adapter's quota endpoint and records the
// result on the registry.
func (m *Manager) RefreshQuotas(ctx context.Context) {
	for _, loc := range m.registry.List() {
		if loc.IsPrimary() {
			continue
		}
		adapter := m.adapter(loc.ID)
		if adapter == nil {
			continue
		}
		used, limit, err := adapter.Quota(ctx)
		if err != nil {
			m.logger.Debug("quota probe failed", "location", loc.ID, "error", err)
			continue
		}
		if used > 0 || limit > 0 {
			m.registry.SetQuota(loc.ID, used, limit)
		}
	}
}

// ReconcilePending re-enqueues one document task per record stuck in
// sync_pending or sync_failed. Called on reconnect and at startup.
func (m *Manager) ReconcilePending() (int, error) {
	docs, err := m.docs.ListNeedingSync()
	if err != nil {
		return 0, fmt.Errorf("list documents needing sync: %w", err)
	}
	for _, d := range docs {
		m.enqueue(NewTask(model.TaskKindDocument, d.ID, model.TaskPriorityNormal))
	}
	return len(docs), nil
}

func (m *Manager) enqueue(t model.Task) {
	m.queue.Push(t)
	m.setStatus(m.Status())
}

// workerLoop drains the queue sequentially with a fixed pacing delay
// between tasks. There is no cross-task concurrency.
func (m *Manager) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.queue.Wake():
		}

		for {
			task, ok := m.queue.Pop()
			if !ok {
				break
			}

			task.State = model.TaskStateInProgress
			m.setStatus(Status{State: StateRunning, InProgress: true})

			err := m.process(ctx, &task)
			now := time.Now().UTC()
			if err != nil {
				task.State = model.TaskStateFailed
				m.logger.Warn("task failed", "task", task.ID, "kind", task.Kind, "error", err)
				m.setStatus(Status{State: StateError, Error: err.Error()})
			} else {
				task.State = model.TaskStateCompleted
				m.setStatus(Status{State: StateIdle, LastBackup: &now})
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(m.cfg.Pacing):
			}
		}
	}
}

func (m *Manager) process(ctx context.Context, task *model.Task) error {
	switch task.Kind {
	case model.TaskKindDocument:
		return m.processDocument(ctx, task)
	case model.TaskKindProfile, model.TaskKindConfiguration:
		return m.processSnapshot(ctx, task)
	default:
		return fmt.Errorf("unknown task kind %q", task.Kind)
	}
}

// destinationsForDocument computes the applicable destination set: the
// primary always, every non-disabled secondary whose tier replicates
// documents, and the profile's personal drive account for profile-section
// documents. Locations in error status stay applicable so the reconnect
// pass can heal them; inactive means disabled by an operator.
func (m *Manager) destinationsForDocument(doc *model.Document) []model.BackupLocation {
	cfg := m.AdminConfig()

	var personalID string
	if cfg.PrimaryDrive != nil && doc.SectionRef != "" {
		personalID = driveLocationPfx + cfg.PrimaryDrive.Email
	}

	var dests []model.BackupLocation
	seen := make(map[string]bool)
	for _, loc := range m.registry.List() {
		if seen[loc.ID] {
			continue
		}
		switch {
		case loc.IsPrimary():
		case loc.Status == model.LocationStatusInactive:
			continue
		case loc.ID == personalID:
		case !cfg.BackupTypes.Documents:
			continue
		}
		seen[loc.ID] = true
		dests = append(dests, loc)
	}
	return dests
}

func (m *Manager) processDocument(ctx context.Context, task *model.Task) error {
	doc, err := m.docs.Get(task.PayloadRef)
	if err != nil {
		return err
	}
	if doc == nil {
		// Deleted while queued.
		m.logger.Debug("document gone, dropping task", "document", task.PayloadRef)
		return nil
	}

	if !m.Online() {
		// No destination attempts while offline; the monitor re-enqueues
		// on reconnect.
		return m.docs.UpdateSync(doc.ID, model.SyncStatusPending, "", nil)
	}

	dests := m.destinationsForDocument(doc)

	missing := 0
	for _, dest := range dests {
		if !doc.SyncedTo(dest.ID) {
			missing++
		}
	}
	if missing == 0 && doc.SyncStatus == model.SyncStatusFullySynced {
		// Already replicated everywhere applicable; no adapter calls.
		return nil
	}

	var attemptErr error
	now := time.Now().UTC()
	for _, dest := range dests {
		if doc.SyncedTo(dest.ID) {
			continue
		}

		adapter := m.adapter(dest.ID)
		if adapter == nil {
			attemptErr = multierr.Append(attemptErr, fmt.Errorf("%s: no adapter registered", dest.ID))
			m.registry.SetStatus(dest.ID, model.LocationStatusError)
			continue
		}

		item := Item{
			Key:         "documents/" + doc.ID,
			Name:        doc.Name,
			Description: doc.SectionRef,
			MimeType:    doc.MimeType,
			Data:        doc.Content,
		}
		ref, err := adapter.Upload(ctx, item)
		if err != nil {
			attemptErr = multierr.Append(attemptErr, fmt.Errorf("%s: %w", dest.ID, err))
			m.registry.SetStatus(dest.ID, model.LocationStatusError)
			continue
		}

		if err := m.docs.SetRemoteRef(doc.ID, dest.ID, ref.ID); err != nil {
			attemptErr = multierr.Append(attemptErr, err)
			continue
		}
		doc.RemoteRefs[dest.ID] = ref.ID
		m.registry.RecordBackup(dest.ID, now, doc.SizeBytes)
		m.logger.Info("document replicated",
			"document", doc.ID,
			"location", dest.ID,
			"size", humanize.Bytes(uint64(doc.SizeBytes)))
	}

	status := aggregateSyncStatus(doc, dests, attemptErr)
	syncError := ""
	if attemptErr != nil {
		syncError = attemptErr.Error()
	}

	var syncedAt *time.Time
	if status == model.SyncStatusFullySynced || status == model.SyncStatusPrimaryOnly {
		syncedAt = &now
	}
	if err := m.docs.UpdateSync(doc.ID, status, syncError, syncedAt); err != nil {
		return multierr.Append(attemptErr, err)
	}
	return attemptErr
}

// aggregateSyncStatus recomputes the document's sync status from the
// destinations reached: fully_synced iff every applicable destination
// (primary included) holds a reference.
func aggregateSyncStatus(doc *model.Document, dests []model.BackupLocation, attemptErr error) model.SyncStatus {
	covered := true
	primarySynced := false
	for _, dest := range dests {
		if !doc.SyncedTo(dest.ID) {
			covered = false
		} else if dest.IsPrimary() {
			primarySynced = true
		}
	}

	switch {
	case attemptErr != nil:
		return model.SyncStatusFailed
	case covered:
		return model.SyncStatusFullySynced
	case primarySynced:
		return model.SyncStatusPrimaryOnly
	default:
		return model.SyncStatusLocalOnly
	}
}

func (m *Manager) processSnapshot(ctx context.Context, task *model.Task) error {
	cfg := m.AdminConfig()

	var payload []byte
	var err error
	var name string
	switch task.Kind {
	case model.TaskKindProfile:
		payload, err = m.snapshots.ProfileSnapshot(ctx)
		name = "profile"
	default:
		payload, err = m.snapshots.ConfigurationSnapshot(ctx)
		name = "configuration"
	}
	if err != nil {
		return fmt.Errorf("build %s snapshot: %w", name, err)
	}

	key := fmt.Sprintf("snapshots/%s-%s.json", name, time.Now().UTC().Format("2006-01-02T150405Z"))
	if cfg.EncryptSnapshots {
		payload, err = m.encryptSnapshot(payload)
		if err != nil {
			return err
		}
		key += ".enc"
	}

	item := Item{
		Key:      key,
		Name:     name + " snapshot",
		MimeType: "application/json",
		Data:     payload,
	}

	var attemptErr error
	now := time.Now().UTC()
	for _, dest := range m.destinationsForSnapshot(task.Kind, cfg) {
		adapter := m.adapter(dest.ID)
		if adapter == nil {
			attemptErr = multierr.Append(attemptErr, fmt.Errorf("%s: no adapter registered", dest.ID))
			m.registry.SetStatus(dest.ID, model.LocationStatusError)
			continue
		}
		if _, err := adapter.Upload(ctx, item); err != nil {
			attemptErr = multierr.Append(attemptErr, fmt.Errorf("%s: %w", dest.ID, err))
			m.registry.SetStatus(dest.ID, model.LocationStatusError)
			continue
		}
		m.registry.RecordBackup(dest.ID, now, int64(len(payload)))
	}
	return attemptErr
}

func (m *Manager) destinationsForSnapshot(kind model.TaskKind, cfg model.AdminBackupConfig) []model.BackupLocation {
	replicate := cfg.BackupTypes.Configuration
	if kind == model.TaskKindProfile {
		replicate = cfg.BackupTypes.Profile
	}

	var dests []model.BackupLocation
	for _, loc := range m.registry.List() {
		if loc.IsPrimary() {
			dests = append(dests, loc)
			continue
		}
		if replicate && loc.Status != model.LocationStatusInactive {
			dests = append(dests, loc)
		}
	}
	return dests
}

func (m *Manager) encryptSnapshot(payload []byte) ([]byte, error) {
	m.mu.RLock()
	pass := m.snapshotPass
	m.mu.RUnlock()
	if pass == "" {
		return nil, fmt.Errorf("snapshot encryption enabled but no passphrase cached")
	}

	saltHex, err := m.config.Get(snapshotSaltKey)
	if err != nil {
		return nil, fmt.Errorf("snapshot salt not configured: %w", err)
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	return EncryptBytes(payload, pass, salt)
}

// scheduleLoop ticks once a minute and fires a backup cycle whenever the
// configured interval has elapsed.
func (m *Manager) scheduleLoop(ctx context.Context) {
	ticker := time.NewTicker(scheduleTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkSchedule(ctx)
		}
	}
}

func (m *Manager) checkSchedule(ctx context.Context) {
	cfg := m.AdminConfig()
	if !cfg.EnableRealTimeSync || cfg.AutoBackupIntervalMinutes <= 0 {
		return
	}

	interval := time.Duration(cfg.AutoBackupIntervalMinutes) * time.Minute
	m.mu.Lock()
	if time.Since(m.lastScheduledAt) < interval {
		m.mu.Unlock()
		return
	}
	m.lastScheduledAt = time.Now().UTC()
	m.mu.Unlock()

	if cfg.BackupTypes.Profile {
		m.enqueue(NewTask(model.TaskKindProfile, "", model.TaskPriorityNormal))
	}
	m.enqueue(NewTask(model.TaskKindConfiguration, "", model.TaskPriorityHigh))

	m.RefreshQuotas(ctx)
}
