package arg

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"attendance-backend/internal/parse"
	"attendance-backend/internal/report"
)

var (
	reportTimeframe string
	reportFrom      string
	reportTo        string
	reportSearch    string
	reportPage      int
	reportLimit     int
	hoursStart      string
	hoursEnd        string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Rank users by worked time over a timeframe or date range",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		tf, err := parse.Timeframe(reportTimeframe)
		if err != nil {
			return err
		}
		rng, err := parse.DateRange(reportFrom, reportTo, app.Config.Attendance.Location)
		if err != nil {
			return err
		}
		act, err := app.Reports.Activity(cmd.Context(), report.Query{
			Admin:      true,
			Timeframe:  tf,
			Range:      rng,
			Search:     reportSearch,
			Pagination: parse.Pagination{Page: reportPage, Limit: reportLimit},
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, color.CyanString("Activity %s (%d work day(s), page %d/%d, %d user(s))",
			act.Window, act.WorkDays, act.CurrentPage, act.TotalPages, act.TotalRecords))
		fmt.Fprintln(out, strings.Repeat("─", 60))
		for _, e := range act.Results {
			name := strings.TrimSpace(e.FirstName + " " + e.LastName)
			fmt.Fprintf(out, "%-24s %-20s %s %8s\n", e.UserID, name, color.GreenString(e.TotalTime), e.TotalWorkPercentage)
		}
		return nil
	},
}

var hoursCmd = &cobra.Command{
	Use:   "hours <user-id>",
	Short: "Show a user's daily, weekly and monthly worked time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		rng, err := parse.EpochRange(hoursStart, hoursEnd)
		if err != nil {
			return err
		}
		sum, err := app.Timer.Hours(cmd.Context(), args[0], rng)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "today  %s\n", color.GreenString(sum.Daily.Time))
		fmt.Fprintf(out, "week   %s\n", color.GreenString(sum.Weekly.Time))
		fmt.Fprintf(out, "month  %s\n", color.GreenString(sum.Monthly.Time))
		if sum.Range != nil {
			fmt.Fprintf(out, "range  %s\n", color.GreenString(sum.Range.Time))
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVarP(&reportTimeframe, "timeframe", "t", "today", "today, week or month")
	reportCmd.Flags().StringVar(&reportFrom, "from", "", "first day of a date range (YYYY-MM-DD)")
	reportCmd.Flags().StringVar(&reportTo, "to", "", "last day of a date range (YYYY-MM-DD)")
	reportCmd.Flags().StringVarP(&reportSearch, "search", "s", "", "only users whose first name contains this")
	reportCmd.Flags().IntVar(&reportPage, "page", 1, "page number")
	reportCmd.Flags().IntVar(&reportLimit, "limit", parse.DefaultLimit, "rows per page")
	rootCmd.AddCommand(reportCmd)

	hoursCmd.Flags().StringVar(&hoursStart, "start", "", "range start (epoch seconds)")
	hoursCmd.Flags().StringVar(&hoursEnd, "end", "", "range end (epoch seconds)")
	rootCmd.AddCommand(hoursCmd)
}
