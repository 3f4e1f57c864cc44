package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the engine's internal state",
	Long:  `Status prints the store and sync engine introspection state as JSON.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		service, err := newService(newStdinSource())
		if err != nil {
			fatal("Failed to initialize speaknote", err)
		}
		defer service.Close()

		state := map[string]any{
			service.Store().ComponentType():  service.Store().State(),
			service.Engine().ComponentType(): service.Engine().State(),
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(state); err != nil {
			fatal("Failed to encode JSON", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
