package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/adqueue/internal/orchestrator"
	"github.com/dusk-indust/adqueue/internal/request"
)

var submitCmd = &cobra.Command{
	Use:   "submit <category> <text>",
	Short: "Queue a change request",
	Long: `Queue a change request for the next build.

Categories: ` + categoryList() + `.

Pass --draft to create the request without starting analysis; submit it
later with "adqueue submit --id <request-id>".`,
	Args: func(cmd *cobra.Command, args []string) error {
		if id, _ := cmd.Flags().GetString("id"); id != "" {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.MinimumNArgs(2)(cmd, args)
	},
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().String("id", "", "submit an existing draft instead of creating one")
	submitCmd.Flags().Int("level", 0, "level the change applies to (default: resolve from the text)")
	submitCmd.Flags().String("screenshot", "", "PNG screenshot of the current ad")
	submitCmd.Flags().String("annotations", "", "PNG drawing layered over the screenshot")
	submitCmd.Flags().String("reference", "", "PNG reference image")
	submitCmd.Flags().String("variation-prompt", "", "generate image variations from this prompt first")
	submitCmd.Flags().Int("variations", 0, "number of variations to generate")
	submitCmd.Flags().Bool("draft", false, "create a draft without starting analysis")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if id, _ := cmd.Flags().GetString("id"); id != "" {
		s, err := c.Submit(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("%s is %s\n", s.ID, s.State)
		return nil
	}

	category, err := request.ParseCategory(args[0])
	if err != nil {
		return err
	}
	in := request.Inputs{Text: strings.Join(args[1:], " ")}
	if cmd.Flags().Changed("level") {
		lvl, _ := cmd.Flags().GetInt("level")
		in.LevelSelection = request.IntPtr(lvl)
	}
	for flag, dst := range map[string]*[]byte{
		"screenshot":  &in.Screenshot,
		"annotations": &in.Annotations,
		"reference":   &in.ReferenceImage,
	} {
		path, _ := cmd.Flags().GetString(flag)
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read --%s: %w", flag, err)
		}
		*dst = data
	}
	in.HasDrawing = len(in.Annotations) > 0
	in.VariationPrompt, _ = cmd.Flags().GetString("variation-prompt")
	in.Variations, _ = cmd.Flags().GetInt("variations")

	draft, err := c.CreateDraft(ctx, orchestrator.DraftInput{Category: category, Inputs: in})
	if err != nil {
		return err
	}
	if onlyDraft, _ := cmd.Flags().GetBool("draft"); onlyDraft {
		fmt.Printf("created draft %s\n", draft.ID)
		return nil
	}
	s, err := c.Submit(ctx, draft.ID)
	if err != nil {
		return fmt.Errorf("draft %s created but not submitted: %w", draft.ID, err)
	}
	fmt.Printf("%s is %s\n", s.ID, s.State)
	return nil
}

var suggestCmd = &cobra.Command{
	Use:   "suggest <rough prompt>",
	Short: "Ask the reasoning service for refined variation prompts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var screenshot []byte
		if path, _ := cmd.Flags().GetString("screenshot"); path != "" {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			screenshot = data
		}
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		prompts, err := c.SuggestPrompts(cmd.Context(), strings.Join(args, " "), screenshot)
		if err != nil {
			return err
		}
		for i, p := range prompts {
			fmt.Printf("%d. %s\n", i+1, p)
		}
		return nil
	},
}

func init() {
	suggestCmd.Flags().String("screenshot", "", "PNG screenshot for context")
	rootCmd.AddCommand(suggestCmd)
}

func categoryList() string {
	names := make([]string, 0, len(request.Categories()))
	for _, c := range request.Categories() {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}
