package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// maxExcerptRunes bounds source excerpts in text output.
const maxExcerptRunes = 160

func newQueryCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "query <project> <question>",
		Short: "Ask a question against a project's documents",
		Long: `Answer a question using the project's ingested documents.

The answer is grounded in retrieved passages and every cited passage is
listed with its source. Repeated questions are served from the result
cache until the project's documents change.

Examples:
  docuquery query support-kb "what is the refund policy?"
  docuquery query support-kb "shipping times" --format json`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args[1:], " ")
			return runQuery(cmd.Context(), cmd, args[0], question, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runQuery(ctx context.Context, cmd *cobra.Command, projectID, question, format string) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	answer, err := a.svc.Query(ctx, projectID, question)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(answer)
	}

	fmt.Fprintln(out, answer.Answer)
	if len(answer.Sources) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Sources:")
		for _, src := range answer.Sources {
			fmt.Fprintf(out, "  - %s: %s\n", src.Source, truncate(src.Content, maxExcerptRunes))
		}
	}
	return nil
}

func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
