package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var recordTitle string

// recordCmd represents the record command
var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Capture a note from stdin",
	Long: `Record starts a capture session fed by stdin: each line is one
transcription fragment. On end of input the session moves to review and is
committed with the given title, then the engine flushes the pending sync.`,
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

		session, err := service.StartCapture(ctx)
		if err != nil {
			fatal("Failed to start capture", err)
		}

		fmt.Println("Recording... (end input with Ctrl-D)")
		<-session.Done()

		if err := session.Stop(); err != nil {
			fatal("Failed to stop capture", err)
		}
		id, err := session.Commit(recordTitle)
		if err != nil {
			fatal("Failed to commit capture", err)
		}

		if err := service.Wait(ctx); err != nil {
			fatal("Sync interrupted", err)
		}

		// The durable ID may differ from the session's temporary one.
		fmt.Printf("Note committed: %s\n", resolveID(service, id, recordTitle))
	},
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().StringVarP(&recordTitle, "title", "t", "", "Note title")
	recordCmd.MarkFlagRequired("title")
}
