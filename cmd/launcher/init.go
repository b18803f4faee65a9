package main

import (
	"fmt"

	"spot-trainer/config"

	"github.com/spf13/cobra"
)

var (
	initBucket  string
	initGroupID string
	initAPIKey  string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the operator settings used by every launch",
	Long: `Write the S3 bucket, group id and experiment-tracking key into the
settings directory. Values already configured are left untouched. All values
are validated before anything is written.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initBucket, "bucket", "", "S3 bucket for checkpoints (without s3://)")
	initCmd.Flags().StringVar(&initGroupID, "group-id", "", "group id, an integer in [0, 100)")
	initCmd.Flags().StringVar(&initAPIKey, "api-key", "", "experiment-tracking API key")

	for _, name := range []string{"bucket", "group-id", "api-key"} {
		_ = initCmd.MarkFlagRequired(name)
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	settings, err := config.InitSettings(cfg.ConfigDir, initBucket, initGroupID, initAPIKey)
	if err != nil {
		return err
	}

	log.WithField("dir", cfg.ConfigDir).Info("Settings ready")
	fmt.Printf("bucket:   %s\n", settings.Bucket)
	fmt.Printf("group id: %d\n", settings.GroupID)

	return nil
}
