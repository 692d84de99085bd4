package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <project>",
		Short: "List a project's documents and their lifecycle states",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			docs, err := a.svc.ListDocuments(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no documents in project %s\n", args[0])
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STATUS\tID\tSOURCE\tUPDATED\tERROR")
			for _, d := range docs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					d.Status, d.ID, d.Source, d.UpdatedAt.Format(time.RFC3339), d.Error)
			}
			return w.Flush()
		},
	}
}
