// Package main provides the CLI entry point for rl4co.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ashirog1/rl4co/cmd/rl4co/commands"
)

var (
	version = "0.1.0"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rl4co",
	Short: "PPO training for neural combinatorial optimization",
	Long: `rl4co trains autoregressive construction policies for combinatorial
optimization problems with PPO.

It provides:
  - PPO training over randomly generated TSP instances
  - Greedy evaluation of trained policies, optionally with 2-opt refinement
  - Run and metric persistence in SQLite or PostgreSQL
  - Reward-curve plotting`,
	Version: version,
}

func init() {
	rootCmd.AddCommand(commands.TrainCmd)
	rootCmd.AddCommand(commands.EvalCmd)
	rootCmd.AddCommand(commands.RunsCmd)
	rootCmd.AddCommand(commands.PlotCmd)
}
