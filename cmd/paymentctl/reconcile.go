package main

import (
	"context"

	"github.com/spf13/cobra"

	"portone-payment-api/internal/app"
	"portone-payment-api/internal/pagination"
	"portone-payment-api/internal/repository"
)

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [site-id] [imp-uid]",
		Short: "Fetch a payment from PortOne and apply it to the site's database",
		Long: `Re-run reconciliation for one payment, as if its webhook had been
delivered again. The run is recorded in the webhook log with source "manual".

Examples:
  paymentctl reconcile site_a imp_123456789012`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				outcome, err := a.Webhooks.Reconcile(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				out := map[string]any{
					"action":  outcome.Action,
					"payment": outcome.Payment,
					"local":   outcome.Transaction,
				}
				if outcome.PersistErr != nil {
					out["sync_error"] = outcome.PersistErr.Error()
				}
				return printJSON(out)
			})
		},
	}
}

func webhookLogsCmd() *cobra.Command {
	var (
		filter      repository.WebhookLogFilter
		page, limit int
	)

	cmd := &cobra.Command{
		Use:   "webhook-logs",
		Short: "List recent webhook log entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				list, err := a.Webhooks.ListLogs(ctx, filter, pagination.New(page, limit))
				if err != nil {
					return err
				}
				return printJSON(list)
			})
		},
	}

	cmd.Flags().StringVar(&filter.SiteID, "site", "", "filter by site id")
	cmd.Flags().StringVar(&filter.Source, "source", "", "filter by source (portone, manual)")
	cmd.Flags().StringVar(&filter.Status, "status", "", "filter by status (processed, ignored, rejected, error, persist_failed)")
	cmd.Flags().StringVar(&filter.ImpUID, "imp-uid", "", "filter by imp_uid")
	cmd.Flags().IntVarP(&page, "page", "p", pagination.DefaultPage, "page number")
	cmd.Flags().IntVarP(&limit, "limit", "n", pagination.DefaultLimit, "entries per page")

	return cmd
}
