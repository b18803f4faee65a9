package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"spot-trainer/providers/aws"

	"github.com/spf13/cobra"
)

var (
	emulatorListen     string
	emulatorHostname   string
	emulatorInstanceID string
)

var imdsEmulatorCmd = &cobra.Command{
	Use:   "imds-emulator",
	Short: "Serve a local instance metadata endpoint for dry runs",
	Long: `Serve the instance metadata paths read by instance-info, so a job can run
on a workstation. Point instance-info at it with --metadata-endpoint.`,
	RunE: runIMDSEmulator,
}

func init() {
	rootCmd.AddCommand(imdsEmulatorCmd)
	imdsEmulatorCmd.Flags().StringVar(&emulatorListen, "listen", "127.0.0.1:1338", "listen address")
	imdsEmulatorCmd.Flags().StringVar(&emulatorHostname, "hostname", "localhost", "public hostname to report")
	imdsEmulatorCmd.Flags().StringVar(&emulatorInstanceID, "instance-id", "i-00000000000000000", "instance id to report")
}

func runIMDSEmulator(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	server := &http.Server{
		Addr: emulatorListen,
		Handler: aws.NewMetadataEmulator(aws.InstanceIdentity{
			PublicHostname: emulatorHostname,
			InstanceID:     emulatorInstanceID,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", emulatorListen).Info("Serving instance metadata")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down metadata emulator")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}
