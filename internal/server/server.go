package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/calperrin/orgvault/internal/backup"
	"github.com/calperrin/orgvault/internal/handler"
	"github.com/calperrin/orgvault/internal/middleware"
	"github.com/calperrin/orgvault/internal/store"
	ws "github.com/calperrin/orgvault/internal/websocket"
)

// Server wires the replication core and exposes it over HTTP.
type Server struct {
	db        *sql.DB
	hub       *ws.Hub
	docStore  *store.DocumentStore
	manager   *backup.Manager
	monitor   *backup.Monitor
	backupH   *handler.BackupHandler
	documentH *handler.DocumentHandler
	logger    *slog.Logger
}

// New constructs the service. driveFactory may be nil when no cloud-drive
// provider is wired, and connEvents may be nil when no connectivity signal
// source exists; the core then assumes it is always online.
func New(db *sql.DB, backupCfg backup.Config, driveFactory backup.DriveFactory,
	connEvents <-chan bool, logger *slog.Logger) (*Server, error) {

	hub := ws.NewHub(logger.With("component", "websocket"))

	configStore := store.NewConfigStore(db)
	docStore := store.NewDocumentStore(db)

	registry, err := backup.NewRegistry(configStore, logger.With("component", "registry"))
	if err != nil {
		return nil, err
	}

	snapshots := backup.NewStoreSnapshotSource(docStore, configStore)

	mgr := backup.NewManager(backupCfg, registry, docStore, configStore, snapshots, driveFactory,
		func(s backup.Status) {
			hub.Broadcast(ws.Message{
				Type:   "backup_status",
				Entity: "backup",
				Action: string(s.State),
				Extra: map[string]any{
					"in_progress": s.InProgress,
					"queue_depth": s.QueueDepth,
					"error":       s.Error,
				},
			})
		}, logger.With("component", "backup"))

	docStore.OnChange(func(c store.Change) {
		hub.Broadcast(ws.NewMessage("document", c.Action, c.Document.ID, map[string]any{
			"sync_status": string(c.Document.SyncStatus),
			"version":     c.Document.Version,
		}))
	})

	var monitor *backup.Monitor
	if connEvents != nil {
		monitor = backup.NewMonitor(connEvents, mgr, logger.With("component", "connectivity"))
	}

	return &Server{
		db:        db,
		hub:       hub,
		docStore:  docStore,
		manager:   mgr,
		monitor:   monitor,
		backupH:   handler.NewBackupHandler(mgr, hub, logger.With("component", "backup_handler")),
		documentH: handler.NewDocumentHandler(docStore, mgr, logger.With("component", "document_handler")),
		logger:    logger,
	}, nil
}

// Manager returns the replication manager.
func (s *Server) Manager() *backup.Manager {
	return s.manager
}

// Start launches the replication worker, scheduler, and connectivity
// monitor.
func (s *Server) Start(ctx context.Context) {
	s.manager.Start(ctx)
	if s.monitor != nil {
		s.monitor.Start(ctx)
	}
}

// Stop gracefully stops background loops.
func (s *Server) Stop() {
	if s.monitor != nil {
		s.monitor.Stop()
	}
	s.manager.Stop()
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))

	mux.HandleFunc("GET /api/backup/status", s.backupH.Status)
	mux.HandleFunc("GET /api/backup/stats", s.backupH.Stats)
	mux.HandleFunc("GET /api/backup/connectivity", s.backupH.Connectivity)
	mux.HandleFunc("PUT /api/backup/config", s.backupH.Configure)
	mux.HandleFunc("POST /api/backup/passphrase", s.backupH.Passphrase)
	mux.HandleFunc("POST /api/backup/run", s.backupH.Run)

	mux.HandleFunc("GET /api/documents", s.documentH.List)
	mux.HandleFunc("POST /api/documents", s.documentH.Upload)
	mux.HandleFunc("GET /api/documents/{id}", s.documentH.Get)
	mux.HandleFunc("DELETE /api/documents/{id}", s.documentH.Delete)

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"sync":   s.manager.Status().State,
		"online": s.manager.Online(),
	})
}
