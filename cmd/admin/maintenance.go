package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"helpdesk/backend/internal/config"
	"helpdesk/backend/internal/dashboard"
	"helpdesk/backend/internal/retention"
	"helpdesk/backend/internal/storage"
	"helpdesk/backend/internal/support"

	errors "github.com/Laisky/errors/v2"
	"github.com/spf13/cobra"
)

var migrateCMD = &cobra.Command{
	Use:   "migrate",
	Short: "create or update the tables",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
		if err := storage.Migrate(a.db); err != nil {
			return err
		}
		if a.cfg.OwnerID != 0 {
			if err := a.store.SeedOwner(ctx, a.cfg.OwnerID); err != nil {
				return err
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied.")
		return nil
	}),
}

var statsCMD = &cobra.Command{
	Use:   "stats",
	Short: "print user and request statistics as JSON",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
		st, err := a.store.Stats(ctx, a.cfg.Location)
		if err != nil {
			return errors.Wrap(err, "load stats")
		}
		out, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return errors.Wrap(err, "encode stats")
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	}),
}

var cleanupDays int

var cleanupCMD = &cobra.Command{
	Use:   "cleanup",
	Short: "delete old completed requests now",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
		days := cleanupDays
		if days == 0 {
			days = a.cfg.Retention.Days
		}
		sched, err := retention.New(a.store, config.RetentionConfig{Cron: a.cfg.Retention.Cron, Days: days}, nil, a.log)
		if err != nil {
			return err
		}
		n, err := sched.RunOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d completed requests older than %d days.\n", n, days)
		return nil
	}),
}

var tokenCMD = &cobra.Command{
	Use:   "token <staff_id>",
	Short: "issue a dashboard token for a staff member",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		id, err := support.ParseUserID(args[0])
		if err != nil {
			return err
		}
		if id != a.cfg.OwnerID {
			ok, err := a.store.IsStaff(ctx, id)
			if err != nil {
				return err
			}
			if !ok {
				return errors.Errorf("user %d is not staff", id)
			}
		}
		tok, err := dashboard.IssueToken(a.cfg.DashboardSecret, id, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	}),
}

func init() {
	cleanupCMD.Flags().IntVar(&cleanupDays, "days", 0, "age in days (default RETENTION_DAYS)")
	rootCMD.AddCommand(migrateCMD, statsCMD, cleanupCMD, tokenCMD)
}
