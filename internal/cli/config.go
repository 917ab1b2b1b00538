package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/vaultd/internal/core"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the .vaultd.yaml configuration",
}

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default .vaultd.yaml into the root",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Root == "" {
			return fmt.Errorf("root not initialized")
		}
		path, err := core.WriteDefaultConfig(Root, configInitForce)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration as YAML",
	Long: `Print the configuration in effect after merging defaults, .vaultd.yaml
and VAULTD_* environment variables.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Config == nil {
			return fmt.Errorf("configuration not initialized")
		}
		data, err := core.RenderConfig(Config)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "# root: %s\n# file: %s\n", Root, ConfigPath)
		_, err = out.Write(data)
		return err
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
