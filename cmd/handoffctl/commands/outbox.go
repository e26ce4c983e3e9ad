package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/handoff/internal/domain/model"
)

func newOutboxCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and repair the notification outbox",
	}
	cmd.AddCommand(newOutboxListCmd(a), newOutboxRequeueCmd(a))
	return cmd
}

func newOutboxListCmd(a *app) *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List outbox messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			defer a.close()

			msgs, err := a.outbox.List(cmd.Context(), operator, model.OutboxStatus(status), limit)
			if err != nil {
				return describe(err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tTEMPLATE\tRECIPIENT\tATTEMPTS\tNEXT ATTEMPT\tLAST ERROR")
			for _, m := range msgs {
				next := "-"
				if !m.NextAttemptAt.IsZero() {
					next = m.NextAttemptAt.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					m.ID, m.Status, m.Template, m.RecipientID, m.Attempts, next, m.LastError)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, processing, delivered, failed)")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of messages")
	return cmd
}

func newOutboxRequeueCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <message-id>",
		Short: "Return a failed message to the delivery queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			defer a.close()

			if err := a.outbox.Requeue(cmd.Context(), operator, args[0]); err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %s\n", args[0])
			return nil
		},
	}
}
