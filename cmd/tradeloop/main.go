// Command tradeloop runs the decision/risk/execution loop live or as a
// historical backtest.
package main

import (
	"os"

	"github.com/alanyoungcy/tradeloop/cmd/tradeloop/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
