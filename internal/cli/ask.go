package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

var (
	askTables []string
	askRaw    bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer one question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		res, err := s.Query.Answer(cmd.Context(), strings.Join(args, " "), askTables)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if !res.Answered {
			fmt.Fprintf(out, "No answer after %d iterations.\n", res.Iterations)
			return nil
		}
		if askRaw {
			fmt.Fprintln(out, res.Answer)
			return nil
		}
		fmt.Fprint(out, render(res.Answer))
		if res.PrimaryTable != "" {
			fmt.Fprintf(out, "table: %s\n", res.PrimaryTable)
		}
		return nil
	},
}

// render formats markdown for the terminal, falling back to the raw text.
func render(md string) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md + "\n"
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md + "\n"
	}
	return out
}

func init() {
	askCmd.Flags().StringSliceVarP(&askTables, "table", "t", nil, "table to answer from (repeatable); omit or \"auto\" to select automatically")
	askCmd.Flags().BoolVar(&askRaw, "raw", false, "print the answer without markdown rendering")
	rootCmd.AddCommand(askCmd)
}
