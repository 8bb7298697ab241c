package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/adqueue/internal/client"
	"github.com/dusk-indust/adqueue/internal/status"
)

var preflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Show what the next build would merge",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		p, err := c.Preflight(cmd.Context())
		if err != nil {
			return err
		}
		return status.WritePreflight(os.Stdout, p.Ready, p.Pending, p.Building, p.Conflicts)
	},
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Merge every ready request into a new build",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		rec, err := c.Build(cmd.Context(), confirm)
		if errors.Is(err, client.ErrNeedsConfirmation) {
			p, perr := c.Preflight(cmd.Context())
			if perr != nil {
				return perr
			}
			if err := status.WritePreflight(os.Stderr, p.Ready, p.Pending, p.Building, p.Conflicts); err != nil {
				return err
			}
			return errors.New("the queue has critical conflicts; rerun with --confirm to build anyway")
		}
		if err != nil {
			return err
		}
		return status.WriteBuild(os.Stdout, rec)
	},
}

var buildsCmd = &cobra.Command{
	Use:   "builds",
	Short: "List archived builds",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		builds, err := c.Builds(cmd.Context())
		if err != nil {
			return err
		}
		lines := make([]status.BuildLine, 0, len(builds))
		for _, b := range builds {
			lines = append(lines, status.BuildLine{
				ID:        b.ID,
				CreatedAt: b.CreatedAt,
				Summary:   b.Summary,
				Applied:   b.Applied,
				Skipped:   b.Skipped,
			})
		}
		return status.WriteBuilds(os.Stdout, lines)
	},
}

var showCmd = &cobra.Command{
	Use:   "show <build-id>",
	Short: "Show an archived build and its request outcomes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		rec, err := c.BuildRecord(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return status.WriteBuild(os.Stdout, rec)
	},
}

func init() {
	buildCmd.Flags().Bool("confirm", false, "build even when critical conflicts are reported")
	rootCmd.AddCommand(preflightCmd, buildCmd, buildsCmd, showCmd)
}
