package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream note change events",
	Long: `Watch stays connected to the store and prints every note change as it
happens, including changes made by other processes (picked up through the
adapter's resync signals). Stop with Ctrl-C.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		service, err := newService(newStdinSource())
		if err != nil {
			fatal("Failed to initialize speaknote", err)
		}
		defer service.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		source := service.EventSource()
		if err := source.Start(ctx); err != nil {
			fatal("Failed to start event source", err)
		}
		if err := service.Start(ctx); err != nil {
			fatal("Failed to start engine", err)
		}

		fmt.Println("Watching for changes... (Ctrl-C to stop)")
		for e := range source.Events() {
			fmt.Println(e.String())
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
