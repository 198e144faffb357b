package cmd

import (
	"github.com/spf13/cobra"
)

var (
	btStart string
	btDays  int
	btStep  int
	btCash  float64
	btMode  string
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay trading days on a historical cursor",
	Long: `Backtest replays the regular session (14:30-21:00 UTC) of each trading
day from --start, one tick every --step minutes. Orders are simulated, the
broker is never called, and the same inputs always give the same results.

In mock mode prices are synthetic; in alpaca mode they come from cached
historical bars.

Example:
  tradeloop backtest --start 2025-11-03 --days 5 --step 60`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Backtest.Enabled = true
		if btStart != "" {
			cfg.Backtest.Start = btStart
		}
		if cmd.Flags().Changed("days") {
			cfg.Backtest.Days = btDays
		}
		if cmd.Flags().Changed("step") {
			cfg.Backtest.StepMinutes = btStep
		}
		if cmd.Flags().Changed("cash") {
			cfg.Backtest.InitialCash = btCash
		}
		if btMode != "" {
			cfg.RunMode = btMode
		}
		return runApp(cfg)
	},
}

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&btStart, "start", "s", "", "first trading day (YYYY-MM-DD)")
	backtestCmd.Flags().IntVarP(&btDays, "days", "d", 5, "number of trading days")
	backtestCmd.Flags().IntVar(&btStep, "step", 60, "minutes between ticks")
	backtestCmd.Flags().Float64VarP(&btCash, "cash", "b", 100_000, "starting cash")
	backtestCmd.Flags().StringVar(&btMode, "mode", "", "price source: mock or alpaca")
}
