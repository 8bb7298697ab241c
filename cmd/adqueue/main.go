package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/adqueue/internal/config"
)

// version is set by goreleaser at build time.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "adqueue",
	Short:         "Change-request queue for playable ads",
	Long:          "adqueue queues change requests against a playable ad, analyzes them with a reasoning service and merges the ready ones into a new game configuration on demand.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("dir", ".", "project directory holding adqueue.yml")
	rootCmd.PersistentFlags().String("server", "", "server URL for client commands (default http://<server.addr>)")
	rootCmd.Version = version
}

// loadConfig reads the settings of the --dir project.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	dir, _ := cmd.Flags().GetString("dir")
	return config.Load(dir)
}
