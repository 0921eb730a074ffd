package store

import (
	"bytes"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/calperrin/orgvault/internal/model"
)

// Change describes a document store mutation, emitted once per logical
// operation to the registered subscriber.
type Change struct {
	Action   string
	Document model.Document
}

const (
	ChangeUpserted    = "upserted"
	ChangeSyncUpdated = "sync_updated"
	ChangeDeleted     = "deleted"
)

// DocumentStore is the local document cache. Sync-status transitions are
// written here by the replication worker; remote references are recorded
// per location as uploads succeed.
type DocumentStore struct {
	db       *sql.DB
	onChange func(Change)
}

func NewDocumentStore(db *sql.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// OnChange registers the change subscriber. Set once at wiring time,
// before any mutation path runs.
func (s *DocumentStore) OnChange(fn func(Change)) {
	s.onChange = fn
}

func (s *DocumentStore) notify(action string, doc model.Document) {
	if s.onChange != nil {
		s.onChange(Change{Action: action, Document: doc})
	}
}

const documentColumns = `id, name, size_bytes, mime_type, category, section_ref,
	version, sync_status, sync_error, last_sync_time, content, created_at, updated_at`

func (s *DocumentStore) scanDocument(row interface{ Scan(...any) error }) (*model.Document, error) {
	d := &model.Document{}
	var syncErr sql.NullString
	var lastSync sql.NullTime
	err := row.Scan(&d.ID, &d.Name, &d.SizeBytes, &d.MimeType, &d.Category, &d.SectionRef,
		&d.Version, &d.SyncStatus, &syncErr, &lastSync, &d.Content, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.SyncError = syncErr.String
	if lastSync.Valid {
		d.LastSyncTime = &lastSync.Time
	}
	return d, nil
}

func (s *DocumentStore) loadRemoteRefs(docID string) (map[string]string, error) {
	rows, err := s.db.Query(
		`SELECT location_id, remote_ref FROM document_remote_refs WHERE document_id = ?`, docID,
	)
	if err != nil {
		return nil, fmt.Errorf("load remote refs: %w", err)
	}
	defer rows.Close()

	refs := make(map[string]string)
	for rows.Next() {
		var locID, ref string
		if err := rows.Scan(&locID, &ref); err != nil {
			return nil, fmt.Errorf("scan remote ref: %w", err)
		}
		refs[locID] = ref
	}
	return refs, rows.Err()
}

func (s *DocumentStore) Get(id string) (*model.Document, error) {
	d, err := s.scanDocument(s.db.QueryRow(
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	if d.RemoteRefs, err = s.loadRemoteRefs(id); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *DocumentStore) list(query string, args ...any) ([]model.Document, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		d, err := s.scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range docs {
		if docs[i].RemoteRefs, err = s.loadRemoteRefs(docs[i].ID); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

func (s *DocumentStore) List() ([]model.Document, error) {
	return s.list(`SELECT ` + documentColumns + ` FROM documents ORDER BY created_at`)
}

func (s *DocumentStore) ListByCategory(category string) ([]model.Document, error) {
	return s.list(`SELECT `+documentColumns+` FROM documents WHERE category = ? ORDER BY created_at`, category)
}

// ListNeedingSync returns documents stuck in sync_pending or sync_failed,
// for the reconnect reconciliation pass.
func (s *DocumentStore) ListNeedingSync() ([]model.Document, error) {
	return s.list(
		`SELECT `+documentColumns+` FROM documents WHERE sync_status IN (?, ?) ORDER BY created_at`,
		model.SyncStatusPending, model.SyncStatusFailed,
	)
}

// Upsert creates the document or updates it in place. A content change
// bumps the version, drops the now-stale remote references, and resets the
// sync status to local_only. Emits one change notification.
func (s *DocumentStore) Upsert(doc *model.Document) (*model.Document, error) {
	now := time.Now().UTC()

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	existing, err := s.Get(doc.ID)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		doc.Version = 1
		doc.SyncStatus = model.SyncStatusLocalOnly
		doc.SizeBytes = int64(len(doc.Content))
		doc.CreatedAt = now
		doc.UpdatedAt = now
		doc.RemoteRefs = map[string]string{}

		_, err := s.db.Exec(
			`INSERT INTO documents (id, name, size_bytes, mime_type, category, section_ref,
			 version, sync_status, content, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			doc.ID, doc.Name, doc.SizeBytes, doc.MimeType, doc.Category, doc.SectionRef,
			doc.Version, doc.SyncStatus, doc.Content, doc.CreatedAt, doc.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("insert document: %w", err)
		}
		s.notify(ChangeUpserted, *doc)
		return doc, nil
	}

	contentChanged := !bytes.Equal(existing.Content, doc.Content)

	updated := *existing
	updated.Name = doc.Name
	updated.MimeType = doc.MimeType
	updated.Category = doc.Category
	updated.SectionRef = doc.SectionRef
	updated.Content = doc.Content
	updated.SizeBytes = int64(len(doc.Content))
	updated.UpdatedAt = now

	if contentChanged {
		updated.Version = existing.Version + 1
		updated.SyncStatus = model.SyncStatusLocalOnly
		updated.SyncError = ""
		updated.RemoteRefs = map[string]string{}
	}

	var syncErr *string
	if updated.SyncError != "" {
		syncErr = &updated.SyncError
	}
	_, err = s.db.Exec(
		`UPDATE documents SET name = ?, size_bytes = ?, mime_type = ?, category = ?,
		 section_ref = ?, version = ?, sync_status = ?, sync_error = ?, content = ?, updated_at = ?
		 WHERE id = ?`,
		updated.Name, updated.SizeBytes, updated.MimeType, updated.Category,
		updated.SectionRef, updated.Version, updated.SyncStatus, syncErr, updated.Content,
		updated.UpdatedAt, updated.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}

	if contentChanged {
		if _, err := s.db.Exec(`DELETE FROM document_remote_refs WHERE document_id = ?`, updated.ID); err != nil {
			return nil, fmt.Errorf("clear remote refs: %w", err)
		}
	}

	s.notify(ChangeUpserted, updated)
	return &updated, nil
}

// SetRemoteRef records a successful upload of the document to a location.
func (s *DocumentStore) SetRemoteRef(docID, locationID, ref string) error {
	_, err := s.db.Exec(
		`INSERT INTO document_remote_refs (document_id, location_id, remote_ref, synced_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(document_id, location_id) DO UPDATE SET remote_ref = excluded.remote_ref, synced_at = excluded.synced_at`,
		docID, locationID, ref, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set remote ref %s/%s: %w", docID, locationID, err)
	}
	return nil
}

// ClearRemoteRef removes a location's reference, e.g. after a remote delete
// or when a location is removed from the registry.
func (s *DocumentStore) ClearRemoteRef(docID, locationID string) error {
	_, err := s.db.Exec(
		`DELETE FROM document_remote_refs WHERE document_id = ? AND location_id = ?`,
		docID, locationID,
	)
	if err != nil {
		return fmt.Errorf("clear remote ref %s/%s: %w", docID, locationID, err)
	}
	return nil
}

// UpdateSync writes the aggregate sync outcome of a replication attempt.
// Emits one change notification.
func (s *DocumentStore) UpdateSync(id string, status model.SyncStatus, syncError string, at *time.Time) error {
	var errPtr *string
	if syncError != "" {
		errPtr = &syncError
	}
	_, err := s.db.Exec(
		`UPDATE documents SET sync_status = ?, sync_error = ?, last_sync_time = COALESCE(?, last_sync_time), updated_at = ?
		 WHERE id = ?`,
		status, errPtr, at, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update sync status: %w", err)
	}

	if doc, err := s.Get(id); err == nil && doc != nil {
		s.notify(ChangeSyncUpdated, *doc)
	}
	return nil
}

// Delete removes the document and its remote references. Remote copies are
// the caller's responsibility; local removal always proceeds.
func (s *DocumentStore) Delete(id string) error {
	doc, err := s.Get(id)
	if err != nil {
		return err
	}
	if doc == nil {
		return nil
	}

	if _, err := s.db.Exec(`DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	s.notify(ChangeDeleted, *doc)
	return nil
}
