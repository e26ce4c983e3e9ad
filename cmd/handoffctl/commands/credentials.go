package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newCredentialsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Audit listing credentials",
	}
	cmd.AddCommand(newCredentialsHistoryCmd(a))
	return cmd
}

func newCredentialsHistoryCmd(a *app) *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "history <listing-id>",
		Short: "Show every credential version of a listing, oldest first",
		Long: `Show every credential version of a listing, oldest first.
Values are masked unless --reveal is given. Requires HANDOFF_SECRET_KEY.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			defer a.close()

			versions, err := a.lifecycle.CredentialHistory(cmd.Context(), operator, args[0])
			if err != nil {
				return describe(err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SEQ\tSUBMISSION\tKIND\tCREATED BY\tCREATED AT\tFIELDS")
			for _, v := range versions {
				fields := make([]string, 0, len(v.Fields))
				for _, f := range v.Fields {
					value := "****"
					if reveal {
						value = f.Value
					}
					fields = append(fields, f.Name+"="+value)
				}
				fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n",
					v.Seq, v.Submission, v.Kind, v.CreatedBy, v.CreatedAt.UTC().Format(time.RFC3339), strings.Join(fields, " "))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "print credential values")
	return cmd
}
