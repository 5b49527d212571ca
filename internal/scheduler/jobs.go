package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/avasilakis/helmsman/internal/database"
	"github.com/avasilakis/helmsman/internal/marketdata"
	"github.com/avasilakis/helmsman/internal/reliability"
	"github.com/avasilakis/helmsman/internal/services"
)

// closeRetentionDays bounds how much daily close history the maintenance
// job keeps. Volatility estimation needs weeks, not years.
const closeRetentionDays = 400

// CycleJob runs the automation cycle.
type CycleJob struct {
	cycle   *services.AutomationCycle
	timeout time.Duration
}

// NewCycleJob creates a new automation cycle job.
func NewCycleJob(cycle *services.AutomationCycle, timeout time.Duration) *CycleJob {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &CycleJob{cycle: cycle, timeout: timeout}
}

// Run executes one cycle pass with a deadline.
func (j *CycleJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	return j.cycle.Run(ctx)
}

// Name returns the job name.
func (j *CycleJob) Name() string {
	return "automation_cycle"
}

// HealthCheckJob verifies database integrity and logs system telemetry.
// Log-only: it never mutates state.
type HealthCheckJob struct {
	db      *database.DB
	dataDir string
	log     zerolog.Logger
}

// NewHealthCheckJob creates a new health check job.
func NewHealthCheckJob(db *database.DB, dataDir string, log zerolog.Logger) *HealthCheckJob {
	return &HealthCheckJob{
		db:      db,
		dataDir: dataDir,
		log:     log.With().Str("job", "health_check").Logger(),
	}
}

// Run executes the health check.
func (j *HealthCheckJob) Run() error {
	if err := j.db.Conn().Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var result string
	if err := j.db.Conn().QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database integrity check returned %q", result)
	}

	event := j.log.Info()

	if cpuPercent, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		event = event.Float64("cpu_percent", cpuPercent[0])
	}
	if memStat, err := mem.VirtualMemory(); err == nil {
		event = event.Float64("mem_used_percent", memStat.UsedPercent)
	}
	if diskStat, err := disk.Usage(j.dataDir); err == nil {
		event = event.Float64("disk_used_percent", diskStat.UsedPercent)

		if diskStat.UsedPercent > 90 {
			j.log.Warn().
				Float64("disk_used_percent", diskStat.UsedPercent).
				Str("path", j.dataDir).
				Msg("Low disk space")
		}
	}

	event.Msg("Health check passed")
	return nil
}

// Name returns the job name.
func (j *HealthCheckJob) Name() string {
	return "health_check"
}

// BackupJob archives the database to remote storage and prunes old backups.
type BackupJob struct {
	backup  *reliability.BackupService
	timeout time.Duration
}

// NewBackupJob creates a new backup job.
func NewBackupJob(backup *reliability.BackupService, timeout time.Duration) *BackupJob {
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return &BackupJob{backup: backup, timeout: timeout}
}

// Run creates and uploads one backup, then rotates old archives.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.backup.CreateAndUploadBackup(ctx); err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}
	if err := j.backup.RotateOldBackups(ctx); err != nil {
		return fmt.Errorf("backup rotation failed: %w", err)
	}
	return nil
}

// Name returns the job name.
func (j *BackupJob) Name() string {
	return "backup"
}

// MaintenanceJob prunes stale market data and compacts the database.
type MaintenanceJob struct {
	db     *database.DB
	market *marketdata.Store
	log    zerolog.Logger
}

// NewMaintenanceJob creates a new maintenance job.
func NewMaintenanceJob(db *database.DB, market *marketdata.Store, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		db:     db,
		market: market,
		log:    log.With().Str("job", "maintenance").Logger(),
	}
}

// Run executes the maintenance pass.
func (j *MaintenanceJob) Run() error {
	cutoff := time.Now().AddDate(0, 0, -closeRetentionDays)
	deleted, err := j.market.DeleteClosesBefore(cutoff)
	if err != nil {
		return fmt.Errorf("close history cleanup failed: %w", err)
	}

	if _, err := j.db.Conn().Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		j.log.Warn().Err(err).Msg("WAL checkpoint failed")
	}
	if _, err := j.db.Conn().Exec("ANALYZE"); err != nil {
		j.log.Warn().Err(err).Msg("ANALYZE failed")
	}

	j.log.Info().Int64("closes_deleted", deleted).Msg("Maintenance completed")
	return nil
}

// Name returns the job name.
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}
