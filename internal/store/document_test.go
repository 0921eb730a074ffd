package store

import (
	"testing"
	"time"

	"github.com/calperrin/orgvault/internal/database"
	"github.com/calperrin/orgvault/internal/model"
)

func setupDocumentTestDB(t *testing.T) *DocumentStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewDocumentStore(db)
}

func TestDocumentCreate(t *testing.T) {
	ds := setupDocumentTestDB(t)

	doc, err := ds.Upsert(&model.Document{
		Name:       "bylaws.pdf",
		MimeType:   "application/pdf",
		Category:   "governance",
		SectionRef: "legal",
		Content:    []byte("pdf bytes"),
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if doc.ID == "" {
		t.Error("expected generated id")
	}
	if doc.Version != 1 {
		t.Errorf("version = %d, want 1", doc.Version)
	}
	if doc.SyncStatus != model.SyncStatusLocalOnly {
		t.Errorf("sync_status = %q, want %q", doc.SyncStatus, model.SyncStatusLocalOnly)
	}
	if doc.SizeBytes != int64(len("pdf bytes")) {
		t.Errorf("size_bytes = %d, want %d", doc.SizeBytes, len("pdf bytes"))
	}
}

func TestDocumentContentEditBumpsVersion(t *testing.T) {
	ds := setupDocumentTestDB(t)

	doc, _ := ds.Upsert(&model.Document{Name: "form.txt", Content: []byte("v1")})
	ds.SetRemoteRef(doc.ID, "primary", "documents/"+doc.ID)
	ds.UpdateSync(doc.ID, model.SyncStatusFullySynced, "", nil)

	edited, err := ds.Upsert(&model.Document{ID: doc.ID, Name: "form.txt", Content: []byte("v2")})
	if err != nil {
		t.Fatalf("upsert edit: %v", err)
	}
	if edited.Version != 2 {
		t.Errorf("version = %d, want 2", edited.Version)
	}
	if edited.SyncStatus != model.SyncStatusLocalOnly {
		t.Errorf("sync_status = %q, want %q", edited.SyncStatus, model.SyncStatusLocalOnly)
	}
	if len(edited.RemoteRefs) != 0 {
		t.Errorf("expected stale remote refs cleared, got %v", edited.RemoteRefs)
	}
}

func TestDocumentMetadataEditKeepsVersion(t *testing.T) {
	ds := setupDocumentTestDB(t)

	doc, _ := ds.Upsert(&model.Document{Name: "old name", Content: []byte("same")})
	ds.SetRemoteRef(doc.ID, "primary", "ref-1")

	renamed, err := ds.Upsert(&model.Document{ID: doc.ID, Name: "new name", Content: []byte("same")})
	if err != nil {
		t.Fatalf("upsert rename: %v", err)
	}
	if renamed.Version != 1 {
		t.Errorf("version = %d, want 1", renamed.Version)
	}
	if !renamed.SyncedTo("primary") {
		t.Error("expected remote ref kept on metadata-only edit")
	}
}

func TestDocumentRemoteRefs(t *testing.T) {
	ds := setupDocumentTestDB(t)

	doc, _ := ds.Upsert(&model.Document{Name: "a.txt", Content: []byte("a")})

	if err := ds.SetRemoteRef(doc.ID, "primary", "ref-p"); err != nil {
		t.Fatalf("set ref: %v", err)
	}
	if err := ds.SetRemoteRef(doc.ID, "drive-ops@example.org", "ref-d"); err != nil {
		t.Fatalf("set second ref: %v", err)
	}
	// Overwrite is allowed
	if err := ds.SetRemoteRef(doc.ID, "primary", "ref-p2"); err != nil {
		t.Fatalf("overwrite ref: %v", err)
	}

	got, _ := ds.Get(doc.ID)
	if len(got.RemoteRefs) != 2 {
		t.Fatalf("refs = %d, want 2", len(got.RemoteRefs))
	}
	if got.RemoteRefs["primary"] != "ref-p2" {
		t.Errorf("primary ref = %q, want %q", got.RemoteRefs["primary"], "ref-p2")
	}

	if err := ds.ClearRemoteRef(doc.ID, "primary"); err != nil {
		t.Fatalf("clear ref: %v", err)
	}
	got, _ = ds.Get(doc.ID)
	if got.SyncedTo("primary") {
		t.Error("expected primary ref cleared")
	}
}

func TestDocumentUpdateSync(t *testing.T) {
	ds := setupDocumentTestDB(t)

	doc, _ := ds.Upsert(&model.Document{Name: "a.txt", Content: []byte("a")})

	now := time.Now().UTC()
	if err := ds.UpdateSync(doc.ID, model.SyncStatusFailed, "drive: quota exceeded", &now); err != nil {
		t.Fatalf("update sync: %v", err)
	}

	got, _ := ds.Get(doc.ID)
	if got.SyncStatus != model.SyncStatusFailed {
		t.Errorf("sync_status = %q, want %q", got.SyncStatus, model.SyncStatusFailed)
	}
	if got.SyncError != "drive: quota exceeded" {
		t.Errorf("sync_error = %q, want %q", got.SyncError, "drive: quota exceeded")
	}
	if got.LastSyncTime == nil {
		t.Error("expected last_sync_time set")
	}

	// Clearing the error
	if err := ds.UpdateSync(doc.ID, model.SyncStatusFullySynced, "", nil); err != nil {
		t.Fatalf("update sync clear: %v", err)
	}
	got, _ = ds.Get(doc.ID)
	if got.SyncError != "" {
		t.Errorf("sync_error = %q, want empty", got.SyncError)
	}
	if got.LastSyncTime == nil {
		t.Error("expected last_sync_time preserved when at is nil")
	}
}

func TestDocumentListByCategory(t *testing.T) {
	ds := setupDocumentTestDB(t)

	ds.Upsert(&model.Document{Name: "a", Category: "financial", Content: []byte("a")})
	ds.Upsert(&model.Document{Name: "b", Category: "governance", Content: []byte("b")})
	ds.Upsert(&model.Document{Name: "c", Category: "financial", Content: []byte("c")})

	fin, err := ds.ListByCategory("financial")
	if err != nil {
		t.Fatalf("list by category: %v", err)
	}
	if len(fin) != 2 {
		t.Errorf("financial docs = %d, want 2", len(fin))
	}

	all, _ := ds.List()
	if len(all) != 3 {
		t.Errorf("all docs = %d, want 3", len(all))
	}
}

func TestDocumentListNeedingSync(t *testing.T) {
	ds := setupDocumentTestDB(t)

	a, _ := ds.Upsert(&model.Document{Name: "a", Content: []byte("a")})
	b, _ := ds.Upsert(&model.Document{Name: "b", Content: []byte("b")})
	c, _ := ds.Upsert(&model.Document{Name: "c", Content: []byte("c")})

	ds.UpdateSync(a.ID, model.SyncStatusPending, "", nil)
	ds.UpdateSync(b.ID, model.SyncStatusFailed, "primary: timeout", nil)
	ds.UpdateSync(c.ID, model.SyncStatusFullySynced, "", nil)

	pending, err := ds.ListNeedingSync()
	if err != nil {
		t.Fatalf("list needing sync: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("needing sync = %d, want 2", len(pending))
	}
}

func TestDocumentDelete(t *testing.T) {
	ds := setupDocumentTestDB(t)

	doc, _ := ds.Upsert(&model.Document{Name: "a", Content: []byte("a")})
	ds.SetRemoteRef(doc.ID, "primary", "ref")

	if err := ds.Delete(doc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ := ds.Get(doc.ID)
	if got != nil {
		t.Error("expected document gone")
	}

	// Deleting a missing document is a no-op
	if err := ds.Delete("missing"); err != nil {
		t.Errorf("delete missing: %v", err)
	}
}

func TestDocumentChangeNotifications(t *testing.T) {
	ds := setupDocumentTestDB(t)

	var changes []Change
	ds.OnChange(func(c Change) { changes = append(changes, c) })

	doc, _ := ds.Upsert(&model.Document{Name: "a", Content: []byte("a")})
	ds.UpdateSync(doc.ID, model.SyncStatusPending, "", nil)
	ds.Delete(doc.ID)

	if len(changes) != 3 {
		t.Fatalf("changes = %d, want 3", len(changes))
	}
	want := []string{ChangeUpserted, ChangeSyncUpdated, ChangeDeleted}
	for i, c := range changes {
		if c.Action != want[i] {
			t.Errorf("change[%d] = %q, want %q", i, c.Action, want[i])
		}
	}
}
