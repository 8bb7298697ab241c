package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/adqueue/internal/client"
	"github.com/dusk-indust/adqueue/internal/orchestrator"
	"github.com/dusk-indust/adqueue/internal/request"
	"github.com/dusk-indust/adqueue/internal/status"
)

// newClient returns a client for --server, or for the configured listen
// address.
func newClient(cmd *cobra.Command) (*client.Client, error) {
	url, _ := cmd.Flags().GetString("server")
	if url == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return nil, err
		}
		url = "http://" + cfg.Server.Addr
	}
	return client.New(url), nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active queue and its conflicts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		q, err := c.Queue(cmd.Context())
		if err != nil {
			return err
		}
		return status.WriteQueue(os.Stdout, q.Requests, q.Conflicts)
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry <request-id>",
	Short: "Re-run the failed step of a request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		s, err := c.Retry(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s is %s\n", s.ID, s.State)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <request-id>",
	Short: "Delete an active request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		if err := c.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

var duplicateCmd = &cobra.Command{
	Use:   "duplicate <request-id>",
	Short: "Copy an active or built request into a new draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		r, err := c.Duplicate(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("created draft %s\n", r.ID)
		return nil
	},
}

var selectCmd = &cobra.Command{
	Use:   "select <request-id> <variation>",
	Short: "Pick a generated variation (1-based)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var n int
		if _, err := fmt.Sscanf(args[1], "%d", &n); err != nil || n < 1 {
			return fmt.Errorf("variation must be a number from 1, got %q", args[1])
		}
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		s, err := c.Select(cmd.Context(), args[0], n-1)
		if err != nil {
			return err
		}
		fmt.Printf("%s is %s\n", s.ID, s.State)
		return nil
	},
}

var annotateCmd = &cobra.Command{
	Use:   "annotate <request-id> [drawing.png]",
	Short: "Finish annotating the selected variation and start reasoning",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var drawing []byte
		if len(args) == 2 {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			drawing = data
		}
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		s, err := c.Annotate(cmd.Context(), args[0], drawing)
		if err != nil {
			return err
		}
		fmt.Printf("%s is %s\n", s.ID, s.State)
		return nil
	},
}

var qaCmd = &cobra.Command{
	Use:   "qa <request-id> <resolved|not_resolved>",
	Short: "Toggle the QA label of a built request",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		label, err := request.ParseQAStatus(args[1])
		if err != nil {
			return err
		}
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		s, err := c.SetQA(cmd.Context(), args[0], label)
		if err != nil {
			return err
		}
		if s.QA == request.QAUnset {
			fmt.Printf("%s: QA label cleared\n", s.ID)
		} else {
			fmt.Printf("%s: %s\n", s.ID, s.QA)
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream queue and build events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		events, err := c.Events(cmd.Context())
		if err != nil {
			return err
		}
		for se := range events {
			if se.Err != nil {
				fmt.Fprintln(os.Stderr, se.Err)
				continue
			}
			fmt.Println(orchestrator.FormatEvent(se.Event))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, retryCmd, deleteCmd, duplicateCmd, selectCmd, annotateCmd, qaCmd, watchCmd)
}
