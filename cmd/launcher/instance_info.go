package main

import (
	"fmt"

	"spot-trainer/config"
	"spot-trainer/providers/aws"
	"spot-trainer/storage"

	"github.com/spf13/cobra"
)

var metadataEndpoint string

var instanceInfoCmd = &cobra.Command{
	Use:   "instance-info",
	Short: "Print the identity of the instance this job runs on",
	RunE:  runInstanceInfo,
}

func init() {
	rootCmd.AddCommand(instanceInfoCmd)
	instanceInfoCmd.Flags().StringVar(&metadataEndpoint, "metadata-endpoint", "",
		"instance metadata endpoint (default link-local service)")
}

func runInstanceInfo(cmd *cobra.Command, args []string) error {
	identity, err := aws.NewMetadataClient(metadataEndpoint).Identify(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("instance id: %s\n", identity.InstanceID)
	fmt.Printf("hostname:    %s\n", identity.PublicHostname)

	if cfg.RunName == "" {
		return nil
	}

	fmt.Printf("run:         %s\n", cfg.RunName)

	settings, err := config.LoadSettings(cfg.ConfigDir)
	if err != nil {
		log.WithError(err).Debug("No settings, skipping checkpoint link")
		return nil
	}
	fmt.Printf("checkpoints: %s\n", storage.RunPrefix(settings.Bucket, cfg.RunName).ConsoleURL(cfg.AWSRegion))

	return nil
}
