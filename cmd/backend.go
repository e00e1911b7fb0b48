package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/nametags/internal/config"
)

var backendCmd = &cobra.Command{
	Use:   "backend [name]",
	Short: "Show or change the storage backend",
	Long: `Without an argument, print the configured storage backend.
With an argument, write it to the config file in use.

Examples:
  nametags backend
  nametags backend sqlite`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if len(args) == 0 {
			_, _ = fmt.Fprintln(out, cfg.Storage.Backend)
			return nil
		}

		name := strings.ToLower(args[0])
		path := viper.ConfigFileUsed()
		if path == "" {
			return fmt.Errorf("no config file in use; pass --config")
		}
		if err := config.SaveStorageBackend(path, name); err != nil {
			return err
		}
		cfg.Storage.Backend = name
		_, _ = fmt.Fprintf(out, "storage backend set to %s in %s\n", name, path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backendCmd)
}
