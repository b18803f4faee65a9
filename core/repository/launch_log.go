package repository

import (
	"context"
	"errors"
	"fmt"
	"os"

	"spot-trainer/core/models"
)

// Recorder persists a launch for the operator
type Recorder interface {
	RecordLaunch(ctx context.Context, record *models.LaunchRecord) error
}

// FileLaunchLog appends one entry per launch to a plain-text log:
// the run name, the ssh command and a blank line
type FileLaunchLog struct {
	path string
}

// NewFileLaunchLog creates a log writing to path
func NewFileLaunchLog(path string) *FileLaunchLog {
	return &FileLaunchLog{path: path}
}

// RecordLaunch implements Recorder
func (l *FileLaunchLog) RecordLaunch(_ context.Context, record *models.LaunchRecord) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening run log: %w", err)
	}

	_, err = fmt.Fprintf(f, "%s\n%s\n\n", record.Run.Name(), record.SSHCommand)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing run log: %w", err)
	}

	return nil
}

// MultiRecorder writes to every recorder, continuing past failures
type MultiRecorder []Recorder

// RecordLaunch implements Recorder
func (m MultiRecorder) RecordLaunch(ctx context.Context, record *models.LaunchRecord) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordLaunch(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
