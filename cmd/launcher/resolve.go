package main

import (
	"fmt"

	"spot-trainer/storage"

	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <pointer>",
	Short: "Resolve a resume pointer to a single checkpoint",
	Long: `Resolve a resume pointer. Local paths are printed unchanged. An
s3://bucket/prefix/ pointer must match exactly one .ckpt object below the
prefix; otherwise every candidate is listed and the command fails.`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	pointer := args[0]

	var lister storage.ObjectLister
	if storage.IsRemote(pointer) {
		store, err := storage.NewS3Store(ctx, log, cfg.S3())
		if err != nil {
			return err
		}
		lister = store
	}

	resolved, err := storage.NewCheckpointResolver(log, lister).Resolve(ctx, pointer)
	if err != nil {
		return err
	}

	fmt.Println(resolved)
	return nil
}
