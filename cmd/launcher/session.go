package main

import (
	"context"
	"fmt"

	"spot-trainer/core/executor"
	"spot-trainer/core/repository"
	"spot-trainer/core/spec"

	"github.com/spf13/cobra"
)

var (
	sessionHost string
	sessionRun  string
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or stop the training session on an instance",
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the training session is still running",
	RunE:  runSessionStatus,
}

var sessionStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Kill the training session; the timeout guard keeps running",
	RunE:  runSessionStop,
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionStatusCmd, sessionStopCmd)

	sessionCmd.PersistentFlags().StringVar(&sessionHost, "host", "", "public hostname of the instance")
	sessionCmd.PersistentFlags().StringVar(&sessionRun, "run", "", "run name to look up in the launch ledger ($DATABASE_URL)")
}

func sessionTarget(ctx context.Context) (*executor.TmuxSession, *executor.SSHClient, string, error) {
	ls, err := spec.LoadLaunchSpec(cfg.LaunchSpecPath)
	if err != nil {
		return nil, nil, "", err
	}

	host := sessionHost
	switch {
	case host != "" && sessionRun != "":
		return nil, nil, "", fmt.Errorf("pass either --host or --run, not both")
	case host == "" && sessionRun == "":
		return nil, nil, "", fmt.Errorf("one of --host or --run is required")
	case host == "":
		host, err = lookupHost(ctx, sessionRun)
		if err != nil {
			return nil, nil, "", err
		}
	}

	opts := executor.AccessOptionsFromSpec(ls)
	client, err := executor.NewSSHClientFromOptions(opts)
	if err != nil {
		return nil, nil, "", err
	}

	return executor.NewTmuxSession(log, client, executor.NewCommandBuilder(opts)), client, host, nil
}

func lookupHost(ctx context.Context, run string) (string, error) {
	if cfg.DatabaseURL == "" {
		return "", fmt.Errorf("--run needs DATABASE_URL to find the instance")
	}

	db, err := repository.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return "", err
	}
	defer db.Close()

	launch, err := repository.NewLaunchRepository(db).GetLaunch(ctx, run)
	if err != nil {
		return "", err
	}
	return launch.PublicAddress, nil
}

func runSessionStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	session, client, host, err := sessionTarget(ctx)
	if err != nil {
		return err
	}

	if err := client.TestConnection(ctx, host); err != nil {
		return fmt.Errorf("instance %s is not reachable: %w", host, err)
	}

	alive, err := session.IsAlive(ctx, host)
	if err != nil {
		return err
	}

	if !alive {
		fmt.Printf("No training session on %s\n", host)
		return nil
	}

	fmt.Printf("Training session running on %s, attach with:\n  %s\n", host, session.AttachCommand(host))
	return nil
}

func runSessionStop(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	session, _, host, err := sessionTarget(ctx)
	if err != nil {
		return err
	}

	return session.Stop(ctx, host)
}
