package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkaragian/verdict/internal/reliability"
)

const backupTimeout = 10 * time.Minute

// BackupJob creates a database backup archive, uploads it and rotates old
// archives past the retention window
type BackupJob struct {
	service       *reliability.BackupService
	retentionDays int
	log           zerolog.Logger
}

// NewBackupJob creates a new BackupJob
func NewBackupJob(service *reliability.BackupService, retentionDays int, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service:       service,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "database_backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "database_backup"
}

// Run creates and uploads a backup, then prunes old ones
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), backupTimeout)
	defer cancel()

	if err := j.service.CreateAndUploadBackup(ctx); err != nil {
		return err
	}

	if err := j.service.RotateOldBackups(ctx, j.retentionDays); err != nil {
		// The backup itself succeeded; rotation can catch up next run.
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}
	return nil
}
