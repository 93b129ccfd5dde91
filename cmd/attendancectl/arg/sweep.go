package arg

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Close open sessions whose owner stopped sending heartbeats",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		res := app.Presence.SweepOnce(cmd.Context())
		fmt.Fprintf(cmd.OutOrStdout(), "open %d, abandoned %d, %s, raced %d, %s\n",
			res.Open, res.Abandoned,
			color.GreenString("closed %d", res.Closed),
			res.Raced,
			failedColor(res.Failed)("failed %d", res.Failed))
		if res.Failed > 0 {
			return fmt.Errorf("%d session(s) could not be closed", res.Failed)
		}
		return nil
	},
}

func failedColor(n int) func(string, ...interface{}) string {
	if n > 0 {
		return color.RedString
	}
	return fmt.Sprintf
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
