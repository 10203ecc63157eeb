package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/addons-generator/internal/logger"
	"github.com/oshokin/addons-generator/internal/service/generator"
	"github.com/oshokin/addons-generator/internal/version"
)

var (
	// configPath is an optional settings file.
	configPath string
	// rootDir overrides the directory the catalog is built from.
	rootDir string
	// logLevel is the minimum level of printed messages.
	logLevel string

	// rootCmd builds the catalog when invoked without a subcommand.
	rootCmd = &cobra.Command{
		Use:   "addons-generator",
		Short: "Build addons.xml and checksum files for an addon repository",
		Long: "Walk every addon directory next to the executable, collect addon.xml from packaged archives " +
			"and loose addon directories into addons.xml, and write a .md5 file for every artifact " +
			"lacking one and for addons.xml itself.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			level, ok := logger.ParseLogLevel(logLevel)
			if !ok {
				return fmt.Errorf("unknown log level %q", logLevel)
			}

			logger.SetLevel(level)

			return nil
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &generator.Options{
				ConfigPath: configPath,
				RootDir:    rootDir,
			}

			return generator.Run(ctx, options)
		},
	}
)

// Execute runs the addons-generator CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	attachConfigCommand(rootCmd)

	err := rootCmd.Execute()
	if err != nil {
		logger.ErrorKV(context.Background(), "addons-generator failed", "error", err)
	}

	logger.Sync()

	if err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to an optional settings file")
	rootCmd.Flags().StringVarP(&rootDir, "root", "r", "", "repository root (defaults to the executable's directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
}
