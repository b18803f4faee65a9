package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"spot-trainer/core/models"

	"github.com/sirupsen/logrus"
)

// StateFileName stores the current best next to the local checkpoints
const StateFileName = "best.json"

// ManagerOptions configures a CheckpointManager
type ManagerOptions struct {
	RunName string
	Monitor string
	Mode    models.MonitorMode

	// StatePath persists the best checkpoint between processes; empty disables it
	StatePath string
}

type managerState struct {
	Best      *models.CheckpointArtifact `json:"best"`
	Locations map[string]string          `json:"locations"`
}

// CheckpointManager keeps the single best checkpoint of a run in every sink.
// Sinks are written independently: a failing sink neither blocks nor rolls
// back the others, so destinations can diverge.
type CheckpointManager struct {
	log   logrus.FieldLogger
	opts  ManagerOptions
	sinks []Sink

	mu        sync.Mutex
	best      *models.CheckpointArtifact
	locations map[string]string
}

// NewCheckpointManager creates a new checkpoint manager
func NewCheckpointManager(log logrus.FieldLogger, opts ManagerOptions, sinks ...Sink) *CheckpointManager {
	if opts.Mode == "" {
		opts.Mode = models.MonitorMax
	}

	return &CheckpointManager{
		log: log.WithFields(logrus.Fields{
			"component": "checkpoint-manager",
			"run":       opts.RunName,
		}),
		opts:      opts,
		sinks:     sinks,
		locations: make(map[string]string, len(sinks)),
	}
}

// Restore loads the best checkpoint recorded by an earlier process of the
// same run. State left behind by another run is ignored.
func (cm *CheckpointManager) Restore() error {
	if cm.opts.StatePath == "" {
		return nil
	}

	data, err := os.ReadFile(cm.opts.StatePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading checkpoint state: %w", err)
	}

	var state managerState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("parsing checkpoint state %s: %w", cm.opts.StatePath, err)
	}

	if state.Best == nil || state.Best.RunName != cm.opts.RunName {
		entry := cm.log.WithField("state", cm.opts.StatePath)
		if state.Best != nil {
			entry = entry.WithField("previous_run", state.Best.RunName)
		}
		entry.Info("Ignoring checkpoint state from another run")
		return nil
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.best = state.Best
	for sink, loc := range state.Locations {
		cm.locations[sink] = loc
	}

	return nil
}

// Best returns the current best checkpoint, or nil before the first one
func (cm *CheckpointManager) Best() *models.CheckpointArtifact {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.best == nil {
		return nil
	}
	best := *cm.best
	return &best
}

// Observe records a monitored metric value. When it improves on the best seen
// so far, the snapshot replaces the previous best in every sink. It returns
// nil when the value is not an improvement. An error is returned only when no
// sink could be written; per-sink outcomes are in the artifact.
func (cm *CheckpointManager) Observe(ctx context.Context, epoch int, value float64, snap Snapshot) (*models.CheckpointArtifact, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	log := cm.log.WithFields(logrus.Fields{
		"epoch":   epoch,
		"monitor": cm.opts.Monitor,
		"metric":  value,
	})

	if math.IsNaN(value) {
		log.Warn("Ignoring NaN metric")
		return nil, nil
	}

	if cm.best != nil && !cm.opts.Mode.Improves(value, cm.best.Value) {
		log.WithField("best", cm.best.Value).Debug("Metric did not improve")
		return nil, nil
	}

	artifact := &models.CheckpointArtifact{
		RunName:   cm.opts.RunName,
		Monitor:   cm.opts.Monitor,
		Mode:      cm.opts.Mode,
		Epoch:     epoch,
		Value:     value,
		FileName:  checkpointFileName(epoch, cm.opts.Monitor, value),
		CreatedAt: time.Now().UTC(),
	}

	var errs []error

	for _, sink := range cm.sinks {
		status := cm.writeSink(ctx, log, sink, artifact.FileName, snap)
		if status.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), status.Err))
		}
		artifact.Sinks = append(artifact.Sinks, status)
	}

	if !artifact.Persisted() {
		return artifact, fmt.Errorf("checkpoint not persisted to any destination: %w", errors.Join(errs...))
	}

	if len(errs) > 0 {
		log.WithError(errors.Join(errs...)).Warn("Checkpoint destinations diverged")
	}

	cm.best = artifact

	if err := cm.saveState(); err != nil {
		log.WithError(err).Warn("Failed to persist checkpoint state")
	}

	log.WithField("file", artifact.FileName).Info("Saved new best checkpoint")

	return artifact, nil
}

// writeSink puts the snapshot into one sink and supersedes that sink's previous best
func (cm *CheckpointManager) writeSink(ctx context.Context, log logrus.FieldLogger, sink Sink, fileName string, snap Snapshot) models.SinkStatus {
	status := models.SinkStatus{Sink: sink.Name()}

	location, err := sink.Put(ctx, fileName, snap)
	if err != nil {
		status.Err = err
		status.Error = err.Error()
		log.WithError(err).WithField("sink", sink.Name()).Warn("Failed to write checkpoint")
		return status
	}
	status.Location = location

	if prev, ok := cm.locations[sink.Name()]; ok && prev != location {
		if err := sink.Delete(ctx, prev); err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"sink":     sink.Name(),
				"location": prev,
			}).Warn("Failed to remove superseded checkpoint")
		}
	}
	cm.locations[sink.Name()] = location

	return status
}

func (cm *CheckpointManager) saveState() error {
	if cm.opts.StatePath == "" {
		return nil
	}

	data, err := json.MarshalIndent(managerState{Best: cm.best, Locations: cm.locations}, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cm.opts.StatePath), 0o755); err != nil {
		return err
	}

	tmp := cm.opts.StatePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, cm.opts.StatePath)
}

// checkpointFileName names a checkpoint after its epoch and metric, e.g.
// epoch=12-metrics_summary_grader=0.8123.ckpt
func checkpointFileName(epoch int, monitor string, value float64) string {
	monitor = strings.NewReplacer("/", "_", " ", "_").Replace(monitor)
	if monitor == "" {
		monitor = "metric"
	}
	return fmt.Sprintf("epoch=%d-%s=%.4f%s", epoch, monitor, value, CheckpointSuffix)
}
