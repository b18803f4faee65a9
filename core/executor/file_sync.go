package executor

import (
	"context"
	"fmt"

	"spot-trainer/core/retry"

	"github.com/sirupsen/logrus"
)

// FileSync pushes the local working tree to an instance with rsync
type FileSync struct {
	log      logrus.FieldLogger
	runner   Runner
	commands *CommandBuilder
	policy   retry.Policy
}

// NewFileSync creates a new file sync
func NewFileSync(log logrus.FieldLogger, runner Runner, commands *CommandBuilder, policy retry.Policy) *FileSync {
	return &FileSync{
		log:      log.WithField("component", "file-sync"),
		runner:   runner,
		commands: commands,
		policy:   policy,
	}
}

// Push copies the local root to host, retrying until one transfer completes.
// A freshly booted instance refuses connections for a while, so early
// failures are expected.
func (f *FileSync) Push(ctx context.Context, host string) error {
	log := f.log.WithField("host", host)
	log.Info("Copying files to instance")

	args := f.commands.RsyncArgs(host)

	attempts, err := f.policy.Do(ctx, log, func(ctx context.Context) error {
		_, err := f.runner.Run(ctx, "rsync", args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("file transfer to %s: %w", host, err)
	}

	log.WithField("attempts", attempts).Info("Files copied")
	return nil
}
