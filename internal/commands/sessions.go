package commands

import (
	"fmt"

	"github.com/nsvirk/attendanceapi/internal/clock"
	"github.com/nsvirk/attendanceapi/internal/models"
	"github.com/nsvirk/attendanceapi/internal/service"
	"github.com/spf13/cobra"
)

// operator is the actor recorded for sessions closed from the CLI
var operator = service.Actor{UserID: "attendancectl", Username: "attendancectl", Role: models.RoleAdmin}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Close stale sessions and mark silent users offline",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, svc, err := loadServices()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		result, err := svc.Reconciler.Sweep(ctx)
		if err != nil {
			return err
		}
		changed, err := svc.Presence.Cleanup(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Scanned %d active sessions\n", result.Scanned)
		fmt.Fprintf(out, "Closed: %d  Lost: %d  Denied: %d  Failed: %d\n", result.Closed, result.Lost, result.Denied, result.Failed)
		fmt.Fprintf(out, "Users marked offline: %d\n", changed)
		return nil
	},
}

var closeReason string

var closeCmd = &cobra.Command{
	Use:   "close [session-id]",
	Short: "Check a session out",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, svc, err := loadServices()
		if err != nil {
			return err
		}
		sess, err := svc.Sessions.CheckOut(cmd.Context(), operator, args[0], closeReason)
		if err != nil {
			return err
		}
		status := string(sess.Status)
		fmt.Fprintf(cmd.OutOrStdout(), "Session %s of %s is %s: %s\n", sess.ID, sess.Username, statusStyle(status).UnsetPaddingRight().Render(status), sess.CheckOutReason)
		return nil
	},
}

var presenceCmd = &cobra.Command{
	Use:   "presence",
	Short: "List the users currently online",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, svc, err := loadServices()
		if err != nil {
			return err
		}
		online, err := svc.Presence.ListOnline(cmd.Context())
		if err != nil {
			return err
		}
		if len(online) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Nobody is online")
			return nil
		}
		rows := make([][]string, 0, len(online))
		for _, p := range online {
			rows = append(rows, []string{p.UserID, p.SessionID, p.Status, clock.Timestamp(p.LastSeen).String()})
		}
		fmt.Fprint(cmd.OutOrStdout(), renderTable([]column{
			{"USER", plain},
			{"SESSION", plain},
			{"STATUS", statusStyle},
			{"LAST SEEN", plain},
		}, rows))
		return nil
	},
}

func init() {
	closeCmd.Flags().StringVarP(&closeReason, "reason", "r", "Closed by operator", "checkout reason")
}
