package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"spot-trainer/config"
	"spot-trainer/core/models"
	"spot-trainer/core/spec"
	"spot-trainer/storage"

	"github.com/spf13/cobra"
)

var (
	checkpointRun      string
	checkpointEpoch    int
	checkpointMetric   float64
	checkpointFile     string
	checkpointLocalDir string
	checkpointNoRemote bool
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Manage checkpoints from inside a training job",
}

var checkpointSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Offer a checkpoint for the monitored metric of an epoch",
	Long: `Offer a checkpoint written by the training framework. When the metric
improves on the best seen so far for the run, the file replaces the previous
best in the local checkpoint directory and under s3://<bucket>/<run>/. Either
destination may fail without affecting the other; the command only fails when
neither could be written.`,
	RunE: runCheckpointSave,
}

func init() {
	rootCmd.AddCommand(checkpointCmd)
	checkpointCmd.AddCommand(checkpointSaveCmd)

	checkpointSaveCmd.Flags().StringVar(&checkpointRun, "run", "", "run name (default $"+config.RunNameEnv+")")
	checkpointSaveCmd.Flags().IntVar(&checkpointEpoch, "epoch", 0, "epoch of the checkpoint")
	checkpointSaveCmd.Flags().Float64Var(&checkpointMetric, "metric", 0, "value of the monitored metric")
	checkpointSaveCmd.Flags().StringVar(&checkpointFile, "file", "", "checkpoint file written by the trainer")
	checkpointSaveCmd.Flags().StringVar(&checkpointLocalDir, "local-dir", "", "local checkpoint directory (default from launch spec)")
	checkpointSaveCmd.Flags().BoolVar(&checkpointNoRemote, "no-remote", false, "only keep the local copy")

	_ = checkpointSaveCmd.MarkFlagRequired("metric")
	_ = checkpointSaveCmd.MarkFlagRequired("file")
}

func runCheckpointSave(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	run := checkpointRun
	if run == "" {
		run = cfg.RunName
	}
	if run == "" {
		return fmt.Errorf("no run name, pass --run or set %s", config.RunNameEnv)
	}

	ls, err := spec.LoadLaunchSpec(cfg.LaunchSpecPath)
	if err != nil {
		return err
	}

	localDir := checkpointLocalDir
	if localDir == "" {
		localDir = ls.Checkpoint.LocalDir
	}

	sinks := []storage.Sink{storage.NewLocalSink(localDir)}

	if !checkpointNoRemote {
		settings, err := config.LoadSettings(cfg.ConfigDir)
		if err != nil {
			return err
		}

		store, err := storage.NewS3Store(ctx, log, cfg.S3())
		if err != nil {
			return err
		}
		sinks = append(sinks, storage.NewS3Sink(store, storage.RunPrefix(settings.Bucket, run)))
	}

	manager := storage.NewCheckpointManager(log, storage.ManagerOptions{
		RunName:   run,
		Monitor:   ls.Checkpoint.Monitor,
		Mode:      models.MonitorMode(ls.Checkpoint.Mode),
		StatePath: filepath.Join(localDir, storage.StateFileName),
	}, sinks...)

	if err := manager.Restore(); err != nil {
		return err
	}

	artifact, err := manager.Observe(ctx, checkpointEpoch, checkpointMetric, storage.FileSnapshot(checkpointFile))
	if err != nil {
		return err
	}

	if artifact == nil {
		entry := log.WithField("metric", checkpointMetric)
		if best := manager.Best(); best != nil {
			entry = entry.WithField("best", best.Value)
		}
		entry.Info("Metric did not improve, checkpoint discarded")
		return nil
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(artifact)
}
