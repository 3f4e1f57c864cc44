package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	writeID      string
	writeTitle   string
	writeContent string
)

// writeCmd represents the write command
var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Create or edit a note directly",
	Long: `Write creates a note (no --id) or edits an existing one, bypassing the
capture flow. The change is applied locally first and synced in the background
before the command returns.`,
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

		n, err := service.SaveNote(writeID, writeTitle, writeContent)
		if err != nil {
			fatal("Failed to save note", err)
		}
		if err := service.Wait(ctx); err != nil {
			fatal("Sync interrupted", err)
		}

		// On create the remote assigns a durable ID after the save returns.
		fmt.Printf("Note saved: %s\n", resolveID(service, n.ID, n.Title))
	},
}

func init() {
	rootCmd.AddCommand(writeCmd)
	writeCmd.Flags().StringVar(&writeID, "id", "", "Note ID (empty creates a new note)")
	writeCmd.Flags().StringVarP(&writeTitle, "title", "t", "", "Note title")
	writeCmd.Flags().StringVarP(&writeContent, "content", "c", "", "Note content")
	writeCmd.MarkFlagRequired("title")
}
