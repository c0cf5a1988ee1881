package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ashirog1/rl4co/internal/application/training"
)

// Flag variables for the eval command
var (
	evalCheckpoint string
	evalNodes      int
	evalBatchSize  int
	evalSeed       int64
	evalTwoOpt     bool
	evalJSON       bool
)

// EvalCmd evaluates a trained policy.
var EvalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate a trained policy",
	Long: `Decode a fresh batch of TSP instances greedily with a checkpointed policy
and report tour lengths. With --two-opt each tour is refined by 2-opt
local search before measuring.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pol, _, err := training.LoadCheckpoint(evalCheckpoint)
		if err != nil {
			return err
		}

		res, err := training.Evaluate(pol, evalNodes, evalBatchSize, evalSeed, evalTwoOpt)
		if err != nil {
			return err
		}

		if evalJSON {
			output, _ := json.MarshalIndent(res, "", "  ")
			fmt.Println(string(output))
			return nil
		}

		fmt.Printf("Instances:        %d (TSP-%d)\n", res.NumInstances, evalNodes)
		fmt.Printf("Mean reward:      %.4f\n", res.MeanReward)
		fmt.Printf("Mean tour length: %.4f\n", res.MeanTourLen)
		fmt.Printf("Best tour length: %.4f\n", res.BestTourLen)
		if evalTwoOpt {
			fmt.Printf("Mean after 2-opt: %.4f\n", res.MeanTwoOptLen)
		}
		return nil
	},
}

func init() {
	EvalCmd.Flags().StringVarP(&evalCheckpoint, "checkpoint", "c", "", "Checkpoint path (required)")
	EvalCmd.Flags().IntVarP(&evalNodes, "nodes", "n", 20, "Instance size")
	EvalCmd.Flags().IntVarP(&evalBatchSize, "batch-size", "b", 128, "Instances to evaluate")
	EvalCmd.Flags().Int64Var(&evalSeed, "seed", 1234, "Instance generation seed")
	EvalCmd.Flags().BoolVar(&evalTwoOpt, "two-opt", false, "Refine tours with 2-opt")
	EvalCmd.Flags().BoolVar(&evalJSON, "json", false, "JSON output")
	EvalCmd.MarkFlagRequired("checkpoint")
}
