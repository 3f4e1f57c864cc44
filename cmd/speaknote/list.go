package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/speaknote"
)

var (
	listJSON   bool
	listSearch string
	listLocal  bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes, most recent first",
	Long: `List fetches the signed-in user's notes from the remote store and prints
them most recent first. With --local the fetch is skipped and only the local
cache is shown. Notes still carrying unsynced changes are marked.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		service, err := newService(newStdinSource())
		if err != nil {
			fatal("Failed to initialize speaknote", err)
		}
		defer service.Close()

		ctx := context.Background()
		if !listLocal {
			if err := service.Start(ctx); err != nil {
				fatal("Failed to start engine", err)
			}
		}

		var notes []speaknote.Note
		if listSearch != "" {
			notes = service.Search(listSearch)
		} else {
			notes = service.Notes()
		}

		if listJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(notes); err != nil {
				fatal("Failed to encode JSON", err)
			}
			return
		}

		for _, n := range notes {
			marker := ""
			if n.Dirty() {
				marker = fmt.Sprintf(" [%s]", n.SyncState)
			}
			fmt.Printf("%s  %s%s\n", n.ID, n.Title, marker)
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	listCmd.Flags().StringVarP(&listSearch, "search", "s", "", "Filter by title or content substring")
	listCmd.Flags().BoolVar(&listLocal, "local", false, "Skip the remote fetch, list the local cache only")
}
