package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a note",
	Long: `Delete flags the note for deletion locally and confirms it against the
remote store before returning.`,
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

		if err := service.DeleteNote(id); err != nil {
			fatal("Failed to delete note", err)
		}
		if err := service.Wait(ctx); err != nil {
			fatal("Sync interrupted", err)
		}

		fmt.Printf("Note deleted: %s\n", id)
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
