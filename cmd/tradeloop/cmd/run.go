package cmd

import (
	"github.com/spf13/cobra"
)

var (
	runExecute bool
	runMode    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the loop on the wall clock",
	Long: `Run ticks every loop_interval_sec against live market state until
interrupted. Without --execute (or EXECUTE=1) orders are dry-run only.

Example:
  tradeloop run --mode alpaca --execute`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Backtest.Enabled = false
		if cmd.Flags().Changed("execute") {
			cfg.Execute = runExecute
		}
		if runMode != "" {
			cfg.RunMode = runMode
		}
		return runApp(cfg)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runExecute, "execute", false, "submit orders instead of dry-running them")
	runCmd.Flags().StringVar(&runMode, "mode", "", "broker: mock or alpaca")
}
