package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/adqueue/internal/scaffold"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter adqueue.yml, .env.example and MCP registration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		force, _ := cmd.Flags().GetBool("force")
		fmt.Printf("Initializing adqueue in %s\n", dir)
		if err := scaffold.Install(dir, force, os.Stdout); err != nil {
			return err
		}
		fmt.Println("\nNext: copy .env.example to .env, set GEMINI_API_KEY and run \"adqueue serve\".")
		return nil
	},
}

func init() {
	initCmd.Flags().Bool("force", false, "overwrite existing files")
	rootCmd.AddCommand(initCmd)
}
