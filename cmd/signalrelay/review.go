package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"signalrelay/internal/app"

	"github.com/spf13/cobra"
)

// newReviewCmd exposes the review queue to operators without going through
// the worker API.
func newReviewCmd() *cobra.Command {
	review := &cobra.Command{
		Use:   "review",
		Short: "Inspect and resolve messages that exhausted their retries",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List messages waiting for review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				msgs, err := a.Relay().ReviewQueue(ctx, limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tCHANNEL\tAUTHOR\tRETRIES\tCREATED\tERROR")
				for _, m := range msgs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
						m.ID, m.ChannelID, m.AuthorName, m.RetryCount,
						time.UnixMilli(m.CreatedAtUnix).UTC().Format(time.RFC3339), m.ErrorMessage)
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 50, "maximum rows to show")

	review.AddCommand(
		list,
		resolveCmd("approve", "Reset retries and requeue a message", func(ctx context.Context, a *app.App, id string) error {
			return a.Relay().Approve(ctx, id)
		}),
		resolveCmd("reject", "Mark a message as permanently failed", func(ctx context.Context, a *app.App, id string) error {
			return a.Relay().Reject(ctx, id)
		}),
		resolveCmd("delete", "Remove a message so its fingerprint can be pushed again", func(ctx context.Context, a *app.App, id string) error {
			return a.Relay().Delete(ctx, id)
		}),
	)
	return review
}

func resolveCmd(name, short string, fn func(context.Context, *app.App, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <message-id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				for _, id := range args {
					if err := fn(ctx, a, id); err != nil {
						return err
					}
					fmt.Printf("%s %s\n", name, id)
				}
				return nil
			})
		},
	}
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.NewApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()
	return fn(ctx, a)
}
