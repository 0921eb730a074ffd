package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/calperrin/orgvault/internal/backup"
	"github.com/calperrin/orgvault/internal/model"
	"github.com/calperrin/orgvault/internal/websocket"
)

// BackupHandler exposes the replication core to operator tooling.
type BackupHandler struct {
	manager *backup.Manager
	hub     *websocket.Hub
	logger  *slog.Logger
}

func NewBackupHandler(m *backup.Manager, hub *websocket.Hub, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{manager: m, hub: hub, logger: logger}
}

func (h *BackupHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

// Status returns the registered backup locations.
func (h *BackupHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Locations())
}

// Stats returns the aggregate backup statistics.
func (h *BackupHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Stats())
}

// Connectivity probes every location and returns per-id reachability.
func (h *BackupHandler) Connectivity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.TestConnectivity(r.Context()))
}

// Configure applies the admin backup configuration.
func (h *BackupHandler) Configure(w http.ResponseWriter, r *http.Request) {
	var cfg model.AdminBackupConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	if err := h.manager.ConfigureAdminBackup(cfg); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}

	h.broadcast(websocket.NewMessage("backup_config", "updated", "", nil))
	writeJSON(w, http.StatusOK, h.manager.AdminConfig())
}

// Passphrase caches the snapshot encryption passphrase for scheduled runs.
func (h *BackupHandler) Passphrase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Passphrase string `json:"passphrase"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if err := h.manager.CacheSnapshotPassphrase(req.Passphrase); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cached"})
}

// Run enqueues an immediate profile and configuration snapshot cycle.
func (h *BackupHandler) Run(w http.ResponseWriter, r *http.Request) {
	h.manager.BackupProfileData()
	h.manager.BackupApplicationConfig()
	writeJSON(w, http.StatusAccepted, h.manager.Status())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
