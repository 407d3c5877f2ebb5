package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"helpdesk/backend/internal/dashboard"
	"helpdesk/backend/internal/support"

	errors "github.com/Laisky/errors/v2"
	"github.com/spf13/cobra"
)

var staffCMD = &cobra.Command{
	Use:   "staff",
	Short: "manage who may answer requests",
}

var staffAddCMD = &cobra.Command{
	Use:   "add <user_id>",
	Short: "grant staff rights",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		id, err := support.ParseUserID(args[0])
		if err != nil {
			return err
		}
		if err := a.store.AddStaff(ctx, id, nil); err != nil {
			return errors.Wrapf(err, "add staff %d", id)
		}
		a.events.Publish(dashboard.Event{Type: dashboard.EventStaffChanged, StaffID: id, Data: map[string]interface{}{"active": true}})
		fmt.Fprintf(cmd.OutOrStdout(), "User %d is now staff.\n", id)
		return nil
	}),
}

var staffRemoveCMD = &cobra.Command{
	Use:   "remove <user_id>",
	Short: "revoke staff rights",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		id, err := support.ParseUserID(args[0])
		if err != nil {
			return err
		}
		if id == a.cfg.OwnerID {
			return support.ErrOwnerImmutable
		}
		removed, err := a.store.RemoveStaff(ctx, id)
		if err != nil {
			return errors.Wrapf(err, "remove staff %d", id)
		}
		if !removed {
			fmt.Fprintf(cmd.OutOrStdout(), "User %d was not staff.\n", id)
			return nil
		}
		a.events.Publish(dashboard.Event{Type: dashboard.EventStaffChanged, StaffID: id, Data: map[string]interface{}{"active": false}})
		fmt.Fprintf(cmd.OutOrStdout(), "User %d is no longer staff.\n", id)
		return nil
	}),
}

var staffListCMD = &cobra.Command{
	Use:   "list",
	Short: "list active staff",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
		staff, err := a.store.ListStaff(ctx, 0)
		if err != nil {
			return errors.Wrap(err, "list staff")
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tADDED")
		for _, m := range staff {
			fmt.Fprintf(w, "%d\t%s\t%s\n", m.UserID, m.DisplayName(), m.AddedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	}),
}

func init() {
	staffCMD.AddCommand(staffAddCMD, staffRemoveCMD, staffListCMD)
	rootCMD.AddCommand(staffCMD)
}
