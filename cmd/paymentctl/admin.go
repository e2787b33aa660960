package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"portone-payment-api/internal/app"
	"portone-payment-api/internal/client"
	"portone-payment-api/internal/model"
)

func tokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Exchange the configured PortOne credentials and show the token expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				token, err := a.Portone.GetToken(ctx)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{
					"access_token": mask(token.AccessToken),
					"expired_at":   time.Unix(token.ExpiredAt, 0).UTC(),
				})
			})
		},
	}
}

func migrateCmd() *cobra.Command {
	var sites []string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the platform tables, and the tables of the given sites",
		Long: `Platform tables (sites, site_api_keys, webhook_logs) are always migrated.
Each --site additionally migrates transactions, billing_keys and
payment_schedules in that site's database.

Examples:
  paymentctl migrate
  paymentctl migrate --site site_a --site site_b`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				open := app.TenantOpener(a.Config)
				for _, siteID := range sites {
					site, err := a.Sites.GetSite(ctx, siteID)
					if err != nil {
						return fmt.Errorf("find site %s: %w", siteID, err)
					}
					db, err := open(site.DBName)
					if err != nil {
						return fmt.Errorf("open site %s: %w", siteID, err)
					}
					err = client.MigrateTenant(db)
					if sqlDB, dbErr := db.DB(); dbErr == nil {
						sqlDB.Close()
					}
					if err != nil {
						return fmt.Errorf("site %s: %w", siteID, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "migrated %s (%s)\n", siteID, site.DBName)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "platform tables up to date")
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&sites, "site", nil, "site id whose database to migrate (repeatable)")

	return cmd
}

func siteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "site",
		Short: "Manage registered sites",
	}
	cmd.AddCommand(siteAddCmd())
	return cmd
}

func siteAddCmd() *cobra.Command {
	var name, domain, dbName string

	cmd := &cobra.Command{
		Use:   "add [site-id]",
		Short: "Register or update a site and issue it a new API key",
		Long: `The raw API key is printed once. Only its sha256 hash is stored.

Examples:
  paymentctl site add site_a --db shop_a --name "Shop A"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				site := &model.Site{
					SiteID: args[0],
					Name:   name,
					Domain: domain,
					DBName: dbName,
				}
				rawKey, err := a.Sites.RegisterSite(ctx, site)
				if err != nil {
					return err
				}
				return printJSON(map[string]string{
					"site_id": site.SiteID,
					"db_name": site.DBName,
					"api_key": rawKey,
				})
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&domain, "domain", "", "site domain")
	cmd.Flags().StringVar(&dbName, "db", "", "tenant database name (defaults to the site id)")

	return cmd
}

func mask(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
