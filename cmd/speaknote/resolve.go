package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var resolveKeepRemote bool

var resolveCmd = &cobra.Command{
	Use:   "resolve [id]",
	Short: "Resolve a sync conflict",
	Long: `Resolve settles a conflicted note. By default the local content wins and
is pushed over the latest remote version; with --keep-remote the local changes
are discarded and the remote copy is adopted.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := args[0]
		service, err := newService(newStdinSource())
		if err != nil {
			fatal("Failed to initialize speaknote", err)
		}
		defer service.Close()

		ctx := context.Background()
		if err := service.Start(ctx); err != nil {
			fatal("Failed to start engine", err)
		}

		if resolveKeepRemote {
			err = service.ResolveDiscard(ctx, id)
		} else {
			err = service.ResolveOverwrite(ctx, id)
		}
		if err != nil {
			fatal("Failed to resolve conflict", err)
		}
		if err := service.Wait(ctx); err != nil {
			fatal("Sync interrupted", err)
		}

		fmt.Printf("Conflict resolved: %s\n", id)
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().BoolVar(&resolveKeepRemote, "keep-remote", false, "Adopt the remote copy instead of pushing local changes")
}
