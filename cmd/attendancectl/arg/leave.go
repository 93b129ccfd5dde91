package arg

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var grantLeaveCmd = &cobra.Command{
	Use:   "grant-leave",
	Short: "Credit the configured paid leave grant to every user",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		n, err := app.Leave.GrantToAll(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d day(s) to %d user(s)\n",
			color.GreenString("granted"), app.Config.Leave.GrantDays, n)
		return nil
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance <user-id>",
	Short: "Show a user's leave balance and history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		bal, err := app.Leave.Balance(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s: %s day(s) available\n", color.CyanString("balance"), bal.UserID,
			color.New(color.Bold).Sprint(bal.AvailableDays))
		for _, h := range bal.History {
			fmt.Fprintf(out, "  %s  %-26s  %-12s  %s\n",
				h.AppliedAt.Format("2006-01-02"), h.LeaveRequestID, h.LeaveType, h.Status)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(grantLeaveCmd)
	rootCmd.AddCommand(balanceCmd)
}
