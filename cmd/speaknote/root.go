package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/speaknote"
	"github.com/aretw0/speaknote/pkg/core"
)

var (
	verbose   bool
	storePath string
	adapter   string
	user      string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "speaknote",
	Short: "A local-first voice-note engine with background synchronization",
	Long: `SpeakNote captures voice notes as streamed transcription fragments and
keeps a local note cache reconciled with a remote store in the background.
Every command works offline; pending changes sync when the store is reachable.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&storePath, "path", "./notes", "Remote store location (directory for fs, file for sqlite)")
	rootCmd.PersistentFlags().StringVar(&adapter, "adapter", "fs", "Remote store adapter (fs, sqlite, memory)")
	rootCmd.PersistentFlags().StringVarP(&user, "user", "u", "local", "Identity to sign in as (empty means signed out)")
}

// newService assembles the engine from the persistent flags.
func newService(source speaknote.TranscriptionSource) (*speaknote.Service, error) {
	identity := &core.StaticIdentity{}
	if user != "" {
		identity.User = &core.Identity{ID: user}
	}
	return speaknote.New(storePath, identity, source,
		speaknote.WithAdapter(adapter),
		speaknote.WithAutoInit(true),
		speaknote.WithLogger(slog.Default()),
	)
}

// resolveID maps a temporary local note id to the durable one the remote
// store assigned during sync. Falls back to a title match when the rename
// already happened.
func resolveID(service *speaknote.Service, id, title string) string {
	if n, ok := service.Get(id); ok {
		return n.ID
	}
	for _, n := range service.Notes() {
		if n.Title == title {
			return n.ID
		}
	}
	return id
}

// stdinSource streams stdin lines as transcription fragments. The stream
// closes on end of input, so the session's Done channel fires once every
// line is accumulated.
type stdinSource struct{}

func newStdinSource() *stdinSource {
	return &stdinSource{}
}

func (s *stdinSource) Stream(ctx context.Context) (<-chan core.Fragment, error) {
	out := make(chan core.Fragment)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case out <- core.Fragment{Text: scanner.Text() + "\n"}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
