package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/calperrin/orgvault/internal/backup"
	"github.com/calperrin/orgvault/internal/model"
	"github.com/calperrin/orgvault/internal/store"
)

// maxUploadBytes bounds document intake; this system targets forms and
// scanned documents, not bulk media.
const maxUploadBytes = 32 << 20

// DocumentHandler handles document intake and listing.
type DocumentHandler struct {
	docs    *store.DocumentStore
	manager *backup.Manager
	logger  *slog.Logger
}

func NewDocumentHandler(docs *store.DocumentStore, m *backup.Manager, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{docs: docs, manager: m, logger: logger}
}

// List returns document records, optionally filtered by category.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		docs []model.Document
		err  error
	)
	if cat := r.URL.Query().Get("category"); cat != "" {
		docs, err = h.docs.ListByCategory(cat)
	} else {
		docs, err = h.docs.List()
	}
	if err != nil {
		h.logger.Error("list documents", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list documents"})
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// Get returns a single document record.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.docs.Get(r.PathValue("id"))
	if err != nil {
		h.logger.Error("get document", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get document"})
		return
	}
	if doc == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "document not found"})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Upload takes a document via multipart form and enqueues replication.
// Intake always succeeds locally even when every destination is down.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file is required"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read file"})
		return
	}

	priority := model.TaskPriorityNormal
	if r.FormValue("priority") == string(model.TaskPriorityHigh) {
		priority = model.TaskPriorityHigh
	}

	doc := &model.Document{
		ID:         r.FormValue("id"),
		Name:       header.Filename,
		MimeType:   header.Header.Get("Content-Type"),
		Category:   r.FormValue("category"),
		SectionRef: r.FormValue("section_ref"),
		Content:    content,
	}

	stored, err := h.manager.BackupDocument(doc, priority)
	if err != nil {
		h.logger.Error("backup document", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to store document"})
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// Delete removes a document locally after best-effort remote deletes.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.DeleteDocument(r.Context(), r.PathValue("id")); err != nil {
		h.logger.Error("delete document", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete document"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
