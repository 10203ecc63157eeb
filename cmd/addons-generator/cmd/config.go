package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/addons-generator/internal/config"
)

// attachConfigCommand adds `config init` which writes the default settings file.
func attachConfigCommand(root *cobra.Command) {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage generator settings",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write the default settings file",
		Long: "Write a settings file holding the built-in catalog, metadata, archive, checksum and scratch names. " +
			"Pass it back with --config to change them.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultConfigFilename
			if len(args) > 0 {
				path = args[0]
			}

			if err := config.Save(path, config.Default("")); err != nil {
				return err
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Settings written to", path)

			return nil
		},
	})

	root.AddCommand(configCmd)
}
