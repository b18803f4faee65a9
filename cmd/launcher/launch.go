package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spot-trainer/config"
	"spot-trainer/core/executor"
	"spot-trainer/core/models"
	"spot-trainer/core/repository"
	"spot-trainer/core/resource_manager"
	"spot-trainer/core/spec"
	"spot-trainer/providers/aws"
	"spot-trainer/storage"

	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/spf13/cobra"
)

const bareLaunchPause = 5 * time.Second

var (
	launchBare  bool
	launchLabel string
)

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Provision an instance and start training on it",
	Long: `Provision a spot instance tagged with a fresh run name, copy the working
tree to it, install the lifetime timeout and start the training entrypoint in a
detached tmux session. The instance id and ssh command are appended to the run
log.`,
	RunE: runLaunch,
}

func init() {
	rootCmd.AddCommand(launchCmd)
	launchCmd.Flags().BoolVar(&launchBare, "bare", false, "provision and copy files but do not start training")
	launchCmd.Flags().StringVar(&launchLabel, "label", "", "label added to the run name")
}

func runLaunch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	settings, err := config.LoadSettings(cfg.ConfigDir)
	if err != nil {
		return err
	}

	ls, err := spec.LoadLaunchSpec(cfg.LaunchSpecPath)
	if err != nil {
		return err
	}

	region := ls.Region
	if region == "" {
		region = cfg.AWSRegion
	}

	run, err := models.NewRunIdentity(settings.GroupID, launchLabel, time.Now())
	if err != nil {
		return err
	}

	marketOptions, err := aws.LoadMarketOptions(ls.Instance.MarketOptionsFile)
	if err != nil {
		return err
	}

	accessOpts := executor.AccessOptionsFromSpec(ls)
	sshClient, err := executor.NewSSHClientFromOptions(accessOpts)
	if err != nil {
		return err
	}

	if launchBare {
		log.Warn("Launching an instance without training, press Ctrl+C within 5s if this was not intended")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(bareLaunchPause):
		}
	}

	client, err := aws.NewClient(ctx, log, region)
	if err != nil {
		return err
	}

	if err := preflight(ctx, client, ls, marketOptions); err != nil {
		return err
	}

	recorder, closeRecorder, err := buildRecorder(ctx)
	if err != nil {
		return err
	}
	defer closeRecorder()

	commands := executor.NewCommandBuilder(accessOpts)
	te := executor.NewTrainingExecutor(
		log,
		resource_manager.NewProvisioner(log, client, region, ls.Retry.Launch.Policy(), ls.Retry.Address.Policy()),
		commands,
		executor.NewFileSync(log, executor.ExecRunner{}, commands, ls.Retry.Sync.Policy()),
		executor.NewTimeoutGuard(log, sshClient, ls.Job.TimeoutAction, ls.Job.TimeoutLogPath),
		executor.NewTmuxSession(log, sshClient, commands),
		recorder,
	)

	record, err := te.Launch(ctx, executor.LaunchOptions{
		Run: run,
		Request: aws.LaunchRequest{
			ImageID:         ls.Instance.ImageID,
			InstanceType:    ls.Instance.InstanceType,
			VolumeType:      ls.Instance.VolumeType,
			RootDevice:      ls.Instance.RootDevice,
			KeyName:         ls.Instance.KeyName,
			SecurityGroups:  ls.Instance.SecurityGroups,
			InstanceProfile: ls.Instance.InstanceProfile,
			MarketOptions:   marketOptions,
		},
		Budget:     ls.Timeout(),
		Entrypoint: ls.Job.Entrypoint,
		Env:        jobEnv(run, settings),
		Bare:       launchBare,
	})
	if err != nil {
		var launchErr *executor.LaunchError
		if errors.As(err, &launchErr) && launchErr.Instance != nil {
			fmt.Printf("Instance %s is still running, connect with:\n  %s\n", launchErr.Instance.InstanceID, launchErr.SSHCommand)
		}
		return err
	}

	printLaunch(record, storage.RunPrefix(settings.Bucket, run.Name()).ConsoleURL(region))
	return nil
}

// preflight checks the image and caps the spot price before the first request
// jobEnv is exported to the training session on the instance
func jobEnv(run models.RunIdentity, settings *config.Settings) map[string]string {
	return map[string]string{
		config.RunNameEnv:    run.Name(),
		config.TrackerKeyEnv: settings.APIKey,
	}
}

func preflight(ctx context.Context, client *aws.Client, ls *spec.LaunchSpec, marketOptions *types.InstanceMarketOptionsRequest) error {
	if ls.Instance.VerifyImage {
		if err := client.VerifyImage(ctx, ls.Instance.ImageID); err != nil {
			return err
		}
	}

	if ls.Instance.CapPriceAtOnDemand && !aws.HasMaxPrice(marketOptions) {
		price, err := client.OnDemandPrice(ctx, ls.Instance.InstanceType)
		if err != nil {
			return fmt.Errorf("looking up on-demand price: %w", err)
		}
		aws.SetMaxPrice(marketOptions, price)
		log.WithField("max_price", price).Info("Capped spot price at on-demand price")
	}

	return nil
}

func buildRecorder(ctx context.Context) (repository.Recorder, func(), error) {
	recorders := repository.MultiRecorder{repository.NewFileLaunchLog(cfg.RunLogPath)}

	if cfg.DatabaseURL == "" {
		return recorders, func() {}, nil
	}

	db, err := repository.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}

	repo := repository.NewLaunchRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	return append(recorders, repo), func() { _ = db.Close() }, nil
}

func printLaunch(record *models.LaunchRecord, consoleURL string) {
	fmt.Printf("Started instance %s with tag %s\n", record.Instance.InstanceID, record.Run.Name())
	fmt.Printf("Timeout at %s\n", record.TimeoutDeadline.Format(time.RFC1123))
	fmt.Printf("\nConnect to instance using ssh:\n  %s\n", record.SSHCommand)
	fmt.Printf("Rsync file updates:\n  %s\n", record.RsyncCommand)
	if record.JobStarted {
		fmt.Printf("Connect to tmux session using ssh:\n  %s\n", record.AttachCommand)
	}
	fmt.Printf("Checkpoints:\n  %s\n", consoleURL)
}
