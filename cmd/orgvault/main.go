package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calperrin/orgvault/internal/backup"
	"github.com/calperrin/orgvault/internal/database"
	"github.com/calperrin/orgvault/internal/logging"
	"github.com/calperrin/orgvault/internal/server"
)

func main() {
	logger := logging.Setup(os.Getenv("ORGVAULT_LOG_LEVEL"))

	port := os.Getenv("ORGVAULT_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("ORGVAULT_DB_PATH")
	if dbPath == "" {
		dbPath = "orgvault.db"
	}

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	backupCfg := backup.Config{
		S3: backup.S3Config{
			Endpoint:  os.Getenv("ORGVAULT_S3_ENDPOINT"),
			Bucket:    os.Getenv("ORGVAULT_S3_BUCKET"),
			Region:    os.Getenv("ORGVAULT_S3_REGION"),
			AccessKey: os.Getenv("ORGVAULT_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("ORGVAULT_S3_SECRET_KEY"),
		},
	}

	// Cloud-drive providers and the OS connectivity signal are wired by
	// deployment-specific builds; without them the core replicates to the
	// primary object store only and assumes it is online.
	srv, err := server.New(db, backupCfg, nil, nil, logger)
	if err != nil {
		log.Fatalf("failed to build server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv.Start(ctx)
	defer srv.Stop()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		fmt.Printf("OrgVault running at http://localhost:%s\n", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
