package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"spot-trainer/core/models"
	"spot-trainer/providers/aws"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepLog struct {
	steps []string
}

type fakeProvisioner struct {
	log *stepLog
	req aws.LaunchRequest
	err error
}

func (f *fakeProvisioner) Launch(_ context.Context, req aws.LaunchRequest) (*models.InstanceRecord, error) {
	f.log.steps = append(f.log.steps, "provision")
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.InstanceRecord{
		InstanceID:    "i-0abc",
		PublicAddress: testHost,
		Tag:           req.Tag,
	}, nil
}

type fakeSyncer struct {
	log *stepLog
	err error
}

func (f *fakeSyncer) Push(context.Context, string) error {
	f.log.steps = append(f.log.steps, "sync")
	return f.err
}

type fakeGuard struct {
	log    *stepLog
	budget time.Duration
	err    error
}

func (f *fakeGuard) Install(_ context.Context, _ string, budget time.Duration) (time.Time, error) {
	f.log.steps = append(f.log.steps, "guard")
	f.budget = budget
	return time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC), f.err
}

type fakeJob struct {
	log        *stepLog
	entrypoint string
	env        map[string]string
	err        error
}

func (f *fakeJob) Start(_ context.Context, _, entrypoint string, env map[string]string) error {
	f.log.steps = append(f.log.steps, "job")
	f.entrypoint = entrypoint
	f.env = env
	return f.err
}

func (f *fakeJob) IsAlive(context.Context, string) (bool, error) { return true, nil }

func (f *fakeJob) Stop(context.Context, string) error { return nil }

func (f *fakeJob) AttachCommand(host string) string { return "attach " + host }

type fakeRecorder struct {
	log     *stepLog
	records []*models.LaunchRecord
	err     error
}

func (f *fakeRecorder) RecordLaunch(_ context.Context, r *models.LaunchRecord) error {
	f.log.steps = append(f.log.steps, "record")
	f.records = append(f.records, r)
	return f.err
}

type executorFixture struct {
	steps       *stepLog
	provisioner *fakeProvisioner
	syncer      *fakeSyncer
	guard       *fakeGuard
	job         *fakeJob
	recorder    *fakeRecorder
	executor    *TrainingExecutor
}

func newExecutorFixture() *executorFixture {
	steps := &stepLog{}
	f := &executorFixture{
		steps:       steps,
		provisioner: &fakeProvisioner{log: steps},
		syncer:      &fakeSyncer{log: steps},
		guard:       &fakeGuard{log: steps},
		job:         &fakeJob{log: steps},
		recorder:    &fakeRecorder{log: steps},
	}
	f.executor = NewTrainingExecutor(quietLogger(), f.provisioner, NewCommandBuilder(testAccessOptions()),
		f.syncer, f.guard, f.job, f.recorder)
	return f
}

func testLaunchOptions(t *testing.T) LaunchOptions {
	t.Helper()

	run, err := models.NewRunIdentity(7, "baseline", time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC))
	require.NoError(t, err)

	return LaunchOptions{
		Run:        run,
		Request:    aws.LaunchRequest{ImageID: "ami-05f6982c11ca3027d", InstanceType: "p2.xlarge"},
		Budget:     24 * time.Hour,
		Entrypoint: "bash aws_train.sh",
		Env:        map[string]string{"SPOT_TRAINER_RUN": run.Name()},
	}
}

func TestTrainingExecutor_Launch(t *testing.T) {
	f := newExecutorFixture()
	opts := testLaunchOptions(t)

	record, err := f.executor.Launch(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, []string{"provision", "sync", "guard", "job", "record"}, f.steps.steps)
	assert.Equal(t, opts.Run.Name(), f.provisioner.req.Tag)
	assert.Equal(t, "p2.xlarge", f.provisioner.req.InstanceType)
	assert.Equal(t, 24*time.Hour, f.guard.budget)
	assert.Equal(t, "bash aws_train.sh", f.job.entrypoint)
	assert.Equal(t, opts.Env, f.job.env)

	assert.True(t, record.JobStarted)
	assert.Equal(t, "i-0abc", record.Instance.InstanceID)
	assert.Equal(t, opts.Run.Name(), record.Instance.Tag)
	assert.Equal(t, NewCommandBuilder(testAccessOptions()).SSHCommand(testHost), record.SSHCommand)
	assert.Equal(t, "attach "+testHost, record.AttachCommand)
	assert.False(t, record.TimeoutDeadline.IsZero())
	require.Len(t, f.recorder.records, 1)
	assert.Same(t, record, f.recorder.records[0])
}

func TestTrainingExecutor_Bare(t *testing.T) {
	f := newExecutorFixture()
	opts := testLaunchOptions(t)
	opts.Bare = true

	record, err := f.executor.Launch(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, []string{"provision", "sync", "guard", "record"}, f.steps.steps)
	assert.False(t, record.JobStarted)
	assert.Empty(t, record.AttachCommand)
}

func TestTrainingExecutor_Failures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name      string
		setup     func(f *executorFixture)
		stage     Stage
		steps     []string
		hasRecord bool
	}{
		{
			name:  "provision",
			setup: func(f *executorFixture) { f.provisioner.err = boom },
			stage: StageProvision,
			steps: []string{"provision"},
		},
		{
			name:      "sync",
			setup:     func(f *executorFixture) { f.syncer.err = boom },
			stage:     StageSync,
			steps:     []string{"provision", "sync"},
			hasRecord: true,
		},
		{
			name:      "guard blocks job start",
			setup:     func(f *executorFixture) { f.guard.err = boom },
			stage:     StageTimeoutGuard,
			steps:     []string{"provision", "sync", "guard"},
			hasRecord: true,
		},
		{
			name:      "job",
			setup:     func(f *executorFixture) { f.job.err = boom },
			stage:     StageJob,
			steps:     []string{"provision", "sync", "guard", "job"},
			hasRecord: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newExecutorFixture()
			tt.setup(f)

			record, err := f.executor.Launch(context.Background(), testLaunchOptions(t))
			require.Error(t, err)
			assert.Nil(t, record)
			assert.ErrorIs(t, err, boom)

			var launchErr *LaunchError
			require.ErrorAs(t, err, &launchErr)
			assert.Equal(t, tt.stage, launchErr.Stage)
			assert.Equal(t, tt.steps, f.steps.steps)

			if tt.hasRecord {
				require.NotNil(t, launchErr.Instance)
				assert.Equal(t, "i-0abc", launchErr.Instance.InstanceID)
				assert.Contains(t, launchErr.SSHCommand, testHost)
				assert.Contains(t, err.Error(), "i-0abc")
			} else {
				assert.Nil(t, launchErr.Instance)
			}
		})
	}
}

func TestTrainingExecutor_RecorderFailureIsNotFatal(t *testing.T) {
	f := newExecutorFixture()
	f.recorder.err = errors.New("disk full")

	record, err := f.executor.Launch(context.Background(), testLaunchOptions(t))
	require.NoError(t, err)
	assert.NotNil(t, record)
}
