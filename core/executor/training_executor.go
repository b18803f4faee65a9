package executor

import (
	"context"
	"fmt"
	"time"

	"spot-trainer/core/models"
	"spot-trainer/providers/aws"

	"github.com/sirupsen/logrus"
)

// Stage names the launch step that failed
type Stage string

const (
	StageProvision    Stage = "provision"
	StageSync         Stage = "sync"
	StageTimeoutGuard Stage = "timeout-guard"
	StageJob          Stage = "job"
)

// InstanceProvisioner provisions one instance and waits for its address
type InstanceProvisioner interface {
	Launch(ctx context.Context, req aws.LaunchRequest) (*models.InstanceRecord, error)
}

// Syncer pushes the code snapshot to a host
type Syncer interface {
	Push(ctx context.Context, host string) error
}

// Guard installs the lifetime cap on a host
type Guard interface {
	Install(ctx context.Context, host string, budget time.Duration) (time.Time, error)
}

// LaunchRecorder keeps the operator's record of launched instances
type LaunchRecorder interface {
	RecordLaunch(ctx context.Context, record *models.LaunchRecord) error
}

// LaunchError reports a failed launch. Instance is set once provisioning
// succeeded: that instance keeps running (and billing) until reclaimed or
// stopped by its timeout guard.
type LaunchError struct {
	Stage      Stage
	Instance   *models.InstanceRecord
	SSHCommand string
	Err        error
}

func (e *LaunchError) Error() string {
	if e.Instance == nil {
		return fmt.Sprintf("launch failed during %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("launch failed during %s on instance %s: %v", e.Stage, e.Instance.InstanceID, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// LaunchOptions describes one launch
type LaunchOptions struct {
	Run        models.RunIdentity
	Request    aws.LaunchRequest
	Budget     time.Duration
	Entrypoint string
	// Env is exported to the job; values are never logged
	Env map[string]string
	// Bare provisions and syncs without starting the job
	Bare bool
}

// TrainingExecutor drives a launch through its steps in order
type TrainingExecutor struct {
	log         logrus.FieldLogger
	provisioner InstanceProvisioner
	commands    *CommandBuilder
	syncer      Syncer
	guard       Guard
	job         DetachedJob
	recorder    LaunchRecorder
	now         func() time.Time
}

// NewTrainingExecutor creates a new training executor. recorder may be nil.
func NewTrainingExecutor(
	log logrus.FieldLogger,
	provisioner InstanceProvisioner,
	commands *CommandBuilder,
	syncer Syncer,
	guard Guard,
	job DetachedJob,
	recorder LaunchRecorder,
) *TrainingExecutor {
	return &TrainingExecutor{
		log:         log.WithField("component", "training-executor"),
		provisioner: provisioner,
		commands:    commands,
		syncer:      syncer,
		guard:       guard,
		job:         job,
		recorder:    recorder,
		now:         time.Now,
	}
}

// Launch provisions an instance, pushes the code, installs the timeout guard
// and, unless bare, starts the job. The guard is always in place before the
// job starts.
func (e *TrainingExecutor) Launch(ctx context.Context, opts LaunchOptions) (*models.LaunchRecord, error) {
	log := e.log.WithField("run", opts.Run.Name())

	req := opts.Request
	req.Tag = opts.Run.Name()

	log.Info("Launching instance")
	instance, err := e.provisioner.Launch(ctx, req)
	if err != nil {
		return nil, &LaunchError{Stage: StageProvision, Err: err}
	}

	host := instance.PublicAddress
	cmds := e.commands.Build(host)
	log = log.WithFields(logrus.Fields{
		"instance_id": instance.InstanceID,
		"host":        host,
	})
	log.Info("Instance is running")

	fail := func(stage Stage, err error) error {
		log.WithError(err).WithFields(logrus.Fields{
			"stage": stage,
			"ssh":   cmds.SSH,
		}).Error("Launch failed after provisioning, instance is still running")
		return &LaunchError{Stage: stage, Instance: instance, SSHCommand: cmds.SSH, Err: err}
	}

	if err := e.syncer.Push(ctx, host); err != nil {
		return nil, fail(StageSync, err)
	}

	deadline, err := e.guard.Install(ctx, host, opts.Budget)
	if err != nil {
		return nil, fail(StageTimeoutGuard, err)
	}

	record := &models.LaunchRecord{
		Run:             opts.Run,
		Instance:        *instance,
		SSHCommand:      cmds.SSH,
		RsyncCommand:    cmds.Rsync,
		TimeoutDeadline: deadline,
	}

	if opts.Bare {
		log.Info("Bare launch, training not started")
	} else {
		if err := e.job.Start(ctx, host, opts.Entrypoint, opts.Env); err != nil {
			return nil, fail(StageJob, err)
		}
		record.JobStarted = true
		record.AttachCommand = e.job.AttachCommand(host)
	}

	record.CreatedAt = e.now().UTC()

	if e.recorder != nil {
		if err := e.recorder.RecordLaunch(ctx, record); err != nil {
			log.WithError(err).Warn("Failed to record launch")
		}
	}

	log.Info("Launch complete")
	return record, nil
}
