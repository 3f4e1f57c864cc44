package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Force a full resync with the remote store",
	Long: `Sync fetches every note owned by the signed-in user, reconciles the local
cache, and flushes any pending local changes.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		service, err := newService(newStdinSource())
		if err != nil {
			fatal("Failed to initialize speaknote", err)
		}
		defer service.Close()

		ctx := context.Background()
		if err := service.Start(ctx); err != nil {
			fatal("Failed to start engine", err)
		}

		fmt.Println("Syncing...")
		if err := service.Resync(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: Sync failed: %v\n", err)
			fmt.Println("Tip: Ensure the store path is reachable and you are signed in (--user).")
			os.Exit(1)
		}
		if err := service.Wait(ctx); err != nil {
			fatal("Sync interrupted", err)
		}

		fmt.Printf("Sync completed: %d notes.\n", len(service.Notes()))
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
