package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/speaknote"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of speaknote",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("speaknote version %s\n", strings.TrimSpace(speaknote.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
