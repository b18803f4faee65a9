package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"spot-trainer/config"
	"spot-trainer/core/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTest(t *testing.T) {
	t.Helper()

	log = logrus.New()
	log.SetOutput(io.Discard)
	t.Setenv("DATABASE_URL", "")
}

func execute(t *testing.T, args ...string) error {
	t.Helper()

	rootCmd.SetArgs(args)
	rootCmd.SetOut(io.Discard)
	rootCmd.SetErr(io.Discard)
	return rootCmd.ExecuteContext(context.Background())
}

func TestInitCommand(t *testing.T) {
	setupTest(t)
	dir := filepath.Join(t.TempDir(), "aws_configs")

	require.NoError(t, execute(t, "init", "--config-dir", dir,
		"--bucket", "s3://dlad-bucket", "--group-id", "7", "--api-key", "secret"))

	settings, err := config.LoadSettings(dir)
	require.NoError(t, err)
	assert.Equal(t, "dlad-bucket", settings.Bucket)
	assert.Equal(t, 7, settings.GroupID)
}

func TestInitCommand_RejectsGroupID(t *testing.T) {
	setupTest(t)
	dir := filepath.Join(t.TempDir(), "aws_configs")

	err := execute(t, "init", "--config-dir", dir,
		"--bucket", "b", "--group-id", "100", "--api-key", "secret")
	assert.ErrorIs(t, err, config.ErrInvalidGroupID)
	assert.NoDirExists(t, dir)
}

func TestLaunchCommand_NeedsSettings(t *testing.T) {
	setupTest(t)

	err := execute(t, "launch", "--config-dir", t.TempDir())
	assert.ErrorIs(t, err, config.ErrSettingsMissing)
}

func TestCheckpointSave_LocalOnly(t *testing.T) {
	setupTest(t)
	dir := t.TempDir()
	snapshot := filepath.Join(dir, "last.ckpt")
	require.NoError(t, os.WriteFile(snapshot, []byte("weights"), 0o644))

	localDir := filepath.Join(dir, "checkpoints")
	require.NoError(t, execute(t, "checkpoint", "save", "--no-remote",
		"--launch-spec", filepath.Join(dir, "missing.yaml"),
		"--run", "G7_1016-0930_0123456789",
		"--epoch", "3", "--metric", "0.81", "--file", snapshot, "--local-dir", localDir))

	data, err := os.ReadFile(filepath.Join(localDir, "epoch=3-metrics_summary_grader=0.8100.ckpt"))
	require.NoError(t, err)
	assert.Equal(t, "weights", string(data))
	assert.FileExists(t, filepath.Join(localDir, "best.json"))
}

func TestBuildRecorder_FileOnly(t *testing.T) {
	setupTest(t)
	cfg = config.Load()
	cfg.RunLogPath = filepath.Join(t.TempDir(), "aws.log")

	recorder, closeFn, err := buildRecorder(context.Background())
	require.NoError(t, err)
	defer closeFn()

	run, err := models.NewRunIdentity(7, "", time.Now())
	require.NoError(t, err)
	require.NoError(t, recorder.RecordLaunch(context.Background(), &models.LaunchRecord{Run: run, SSHCommand: "ssh x"}))

	data, err := os.ReadFile(cfg.RunLogPath)
	require.NoError(t, err)
	assert.Equal(t, run.Name()+"\nssh x\n\n", string(data))
}

func TestJobEnv(t *testing.T) {
	run, err := models.NewRunIdentity(7, "baseline", time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC))
	require.NoError(t, err)

	env := jobEnv(run, &config.Settings{Bucket: "b", GroupID: 7, APIKey: "0123abcd"})
	assert.Equal(t, map[string]string{
		config.RunNameEnv:    run.Name(),
		config.TrackerKeyEnv: "0123abcd",
	}, env)
}
