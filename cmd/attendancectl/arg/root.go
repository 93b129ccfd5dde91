package arg

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"attendance-backend/config"
	"attendance-backend/internal/bootstrap"
	"attendance-backend/internal/clock"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "attendancectl",
	Short: "attendancectl is the admin tool for the attendance backend",
	Long: `attendancectl works directly against the attendance database.
Use it to run an auto-checkout sweep, grant leave, and inspect hours and reports.`,
	SilenceUsage: true,
}

func init() {
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "./config/config.yaml"
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultPath, "path to the YAML configuration")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration from %s: %w", configPath, err)
	}
	return cfg, nil
}

func openApp(ctx context.Context) (*bootstrap.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return bootstrap.New(ctx, cfg, clock.System{})
}
