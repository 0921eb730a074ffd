package model

// DriveAccount describes one configured cloud-drive account.
type DriveAccount struct {
	Email              string `json:"email"`
	IsWorkspaceAccount bool   `json:"is_workspace_account"`
	RemoteFolderRef    string `json:"remote_folder_ref,omitempty"`
}

// BackupTypes toggles which payload kinds are replicated to secondary
// locations. The primary location always receives everything.
type BackupTypes struct {
	Documents     bool `json:"documents"`
	Profile       bool `json:"profile"`
	Configuration bool `json:"configuration"`
	Logs          bool `json:"logs"`
}

// AdminBackupConfig is the admin-owned backup configuration, persisted in
// the durable configuration store and read by the scheduler and fan-out.
type AdminBackupConfig struct {
	PrimaryDrive              *DriveAccount  `json:"primary_drive,omitempty"`
	SecondaryDrives           []DriveAccount `json:"secondary_drives,omitempty"`
	AutoBackupIntervalMinutes int            `json:"auto_backup_interval_minutes"`
	RetentionDays             int            `json:"retention_days"`
	EnableRealTimeSync        bool           `json:"enable_real_time_sync"`
	EncryptSnapshots          bool           `json:"encrypt_snapshots"`
	BackupTypes               BackupTypes    `json:"backup_types"`
}

// DriveAccounts returns every configured drive account, the personal
// primary account first.
func (c AdminBackupConfig) DriveAccounts() []DriveAccount {
	var accounts []DriveAccount
	if c.PrimaryDrive != nil {
		accounts = append(accounts, *c.PrimaryDrive)
	}
	accounts = append(accounts, c.SecondaryDrives...)
	return accounts
}

// DefaultAdminBackupConfig returns the configuration used until an admin
// saves one: hourly snapshots, 30-day retention, documents and
// configuration replicated.
func DefaultAdminBackupConfig() AdminBackupConfig {
	return AdminBackupConfig{
		AutoBackupIntervalMinutes: 60,
		RetentionDays:             30,
		EnableRealTimeSync:        true,
		BackupTypes: BackupTypes{
			Documents:     true,
			Profile:       true,
			Configuration: true,
		},
	}
}
