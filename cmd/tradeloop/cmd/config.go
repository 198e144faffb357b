package cmd

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/alanyoungcy/tradeloop/internal/config"
)

var configFormat string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Load the config file and environment, validate the result and print it
with secrets redacted.

Example:
  tradeloop config --format yaml`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		redacted := config.RedactedConfig(cfg)

		out := cmd.OutOrStdout()
		switch strings.ToLower(configFormat) {
		case "yaml", "yml":
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(redacted); err != nil {
				return fmt.Errorf("config: encode yaml: %w", err)
			}
			if err := enc.Close(); err != nil {
				return err
			}
		case "toml":
			if err := toml.NewEncoder(out).Encode(redacted); err != nil {
				return fmt.Errorf("config: encode toml: %w", err)
			}
		default:
			return fmt.Errorf("config: unknown format %q (valid: toml, yaml)", configFormat)
		}

		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "invalid: %v\n", err)
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "configuration valid")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.Flags().StringVarP(&configFormat, "format", "f", "toml", "output format (toml, yaml)")
}
