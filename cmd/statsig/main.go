// Command statsig scores time series for level shifts.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hed1ad/gostatsig/internal/config"
	"github.com/hed1ad/gostatsig/internal/logger"
)

var version = "dev"

type rootFlags struct {
	configPath string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "statsig",
		Short:         "Statistical significance level-shift detection for time series",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "YAML configuration file")

	root.AddCommand(
		newDetectCmd(flags),
		newServeCmd(flags),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads the configuration and builds the root logger from it.
func loadConfig(flags *rootFlags) (config.Config, logger.Logger, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return config.Config{}, logger.Logger{}, err
	}
	return cfg, logger.New(cfg.Log), nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "statsig", version)
		},
	}
}
