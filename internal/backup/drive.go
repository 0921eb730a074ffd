package backup

import (
	"context"
	"fmt"
	"sync"
)

// DriveClient is the cloud-drive account surface the core consumes. The
// concrete provider implementation lives outside this module.
type DriveClient interface {
	SignIn(ctx context.Context) error
	IsSignedIn(ctx context.Context) (bool, error)
	CreateFolder(ctx context.Context, name string) (string, error)
	Upload(ctx context.Context, data []byte, name, description, folderID string) (remoteID, remoteURL string, err error)
	Delete(ctx context.Context, remoteID string) error
	Quota(ctx context.Context) (used, limit int64, err error)
}

// defaultFolderName is created on first upload when the account has no
// configured backup folder.
const defaultFolderName = "OrgVault Backups"

// DriveAdapter adapts one cloud-drive account to the uniform destination
// contract. The backup folder is created lazily on first upload.
type DriveAdapter struct {
	client DriveClient

	mu       sync.Mutex
	folderID string
}

// NewDriveAdapter wraps a drive client. folderRef may be empty, in which
// case a folder is created on first upload.
func NewDriveAdapter(client DriveClient, folderRef string) *DriveAdapter {
	return &DriveAdapter{client: client, folderID: folderRef}
}

// FolderRef returns the current backup folder id, empty until first upload
// if none was configured.
func (a *DriveAdapter) FolderRef() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.folderID
}

func (a *DriveAdapter) ensureFolder(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.folderID != "" {
		return a.folderID, nil
	}
	id, err := a.client.CreateFolder(ctx, defaultFolderName)
	if err != nil {
		return "", fmt.Errorf("create backup folder: %w", err)
	}
	a.folderID = id
	return id, nil
}

func (a *DriveAdapter) Upload(ctx context.Context, item Item) (RemoteRef, error) {
	signedIn, err := a.client.IsSignedIn(ctx)
	if err != nil {
		return RemoteRef{}, fmt.Errorf("check sign-in: %w", err)
	}
	if !signedIn {
		return RemoteRef{}, fmt.Errorf("drive account not signed in")
	}

	folderID, err := a.ensureFolder(ctx)
	if err != nil {
		return RemoteRef{}, err
	}

	remoteID, remoteURL, err := a.client.Upload(ctx, item.Data, item.Name, item.Description, folderID)
	if err != nil {
		return RemoteRef{}, fmt.Errorf("upload to drive: %w", err)
	}
	return RemoteRef{ID: remoteID, URL: remoteURL}, nil
}

func (a *DriveAdapter) Delete(ctx context.Context, remoteID string) error {
	if err := a.client.Delete(ctx, remoteID); err != nil {
		return fmt.Errorf("delete from drive: %w", err)
	}
	return nil
}

// Probe checks the account is signed in and the quota endpoint responds.
func (a *DriveAdapter) Probe(ctx context.Context) error {
	signedIn, err := a.client.IsSignedIn(ctx)
	if err != nil {
		return fmt.Errorf("check sign-in: %w", err)
	}
	if !signedIn {
		return fmt.Errorf("drive account not signed in")
	}
	if _, _, err := a.client.Quota(ctx); err != nil {
		return fmt.Errorf("get quota: %w", err)
	}
	return nil
}

func (a *DriveAdapter) Quota(ctx context.Context) (int64, int64, error) {
	used, limit, err := a.client.Quota(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("get quota: %w", err)
	}
	return used, limit, nil
}
