package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"spot-trainer/config"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Version information set at build time.
	version = "dev"
	commit  = "none"
)

var (
	logLevel       string
	configDir      string
	launchSpecPath string

	cfg *config.Config
	log *logrus.Logger
)

func main() {
	log = logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.WithError(err).Fatal("Failed to execute command")
	}
}

var rootCmd = &cobra.Command{
	Use:   "spot-trainer",
	Short: "Launch training jobs on interruptible cloud instances",
	Long: `spot-trainer provisions a spot instance, copies the working tree to it,
caps its lifetime with a remote timeout and starts the training entrypoint in a
detached session. On the instance it resolves resume checkpoints and keeps the
best checkpoint both locally and in S3.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}

		log.SetLevel(level)

		cfg = config.Load()
		if configDir != "" {
			cfg.ConfigDir = configDir
		}
		if launchSpecPath != "" {
			cfg.LaunchSpecPath = launchSpecPath
		}

		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("spot-trainer %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level ("+strings.Join(logLevels(), ", ")+")")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "",
		"operator settings directory (default $CONFIG_DIR or "+config.DefaultConfigDir+")")
	rootCmd.PersistentFlags().StringVar(&launchSpecPath, "launch-spec", "",
		"launch spec YAML (default $LAUNCH_SPEC or launch.yaml)")

	rootCmd.AddCommand(versionCmd)
}

func logLevels() []string {
	levels := make([]string, 0, len(logrus.AllLevels))
	for _, level := range logrus.AllLevels {
		levels = append(levels, level.String())
	}

	return levels
}
