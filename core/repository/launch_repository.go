package repository

import (
	"context"
	"database/sql"
	"fmt"

	"spot-trainer/core/models"
)

const launchesSchema = `
	CREATE TABLE IF NOT EXISTS launches (
		run_name         TEXT PRIMARY KEY,
		group_id         INTEGER NOT NULL,
		label            TEXT NOT NULL,
		instance_id      TEXT NOT NULL,
		public_address   TEXT NOT NULL,
		spot_request_id  TEXT,
		region           TEXT NOT NULL,
		ssh_command      TEXT NOT NULL,
		job_started      BOOLEAN NOT NULL,
		timeout_deadline TIMESTAMPTZ NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL
	)
`

// LaunchRepository handles database operations for launches
type LaunchRepository struct {
	db *DB
}

// NewLaunchRepository creates a new launch repository
func NewLaunchRepository(db *DB) *LaunchRepository {
	return &LaunchRepository{db: db}
}

// EnsureSchema creates the launches table if it does not exist
func (r *LaunchRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, launchesSchema); err != nil {
		return fmt.Errorf("creating launches table: %w", err)
	}
	return nil
}

// RecordLaunch inserts a launch
func (r *LaunchRepository) RecordLaunch(ctx context.Context, record *models.LaunchRecord) error {
	query := `
		INSERT INTO launches (
			run_name, group_id, label, instance_id, public_address, spot_request_id,
			region, ssh_command, job_started, timeout_deadline, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	var spotRequestID sql.NullString
	if record.Instance.SpotRequestID != "" {
		spotRequestID = sql.NullString{String: record.Instance.SpotRequestID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		record.Run.Name(),
		record.Run.GroupID,
		record.Run.Label,
		record.Instance.InstanceID,
		record.Instance.PublicAddress,
		spotRequestID,
		record.Instance.Region,
		record.SSHCommand,
		record.JobStarted,
		record.TimeoutDeadline,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting launch %s: %w", record.Run.Name(), err)
	}

	return nil
}

// LaunchSummary is one row of the ledger
type LaunchSummary struct {
	RunName         string
	InstanceID      string
	PublicAddress   string
	SSHCommand      string
	JobStarted      bool
	TimeoutDeadline sql.NullTime
	CreatedAt       sql.NullTime
}

// GetLaunch retrieves the launch of a run
func (r *LaunchRepository) GetLaunch(ctx context.Context, runName string) (*LaunchSummary, error) {
	query := `
		SELECT run_name, instance_id, public_address, ssh_command, job_started, timeout_deadline, created_at
		FROM launches
		WHERE run_name = $1
	`

	var s LaunchSummary
	err := r.db.QueryRowContext(ctx, query, runName).Scan(
		&s.RunName,
		&s.InstanceID,
		&s.PublicAddress,
		&s.SSHCommand,
		&s.JobStarted,
		&s.TimeoutDeadline,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("reading launch %s: %w", runName, err)
	}

	return &s, nil
}
