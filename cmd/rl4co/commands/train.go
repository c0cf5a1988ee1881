// Package commands provides CLI command implementations.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Ashirog1/rl4co/internal/application/training"
	"github.com/Ashirog1/rl4co/internal/domain/nco"
	"github.com/Ashirog1/rl4co/internal/infrastructure/runstore"
)

// Flag variables for the train command
var (
	trainNodes         int
	trainBatchSize     int
	trainEpochs        int
	trainSteps         int
	trainSeed          int64
	trainLR            float64
	trainClipRange     float64
	trainPPOEpochs     int
	trainMiniBatch     string
	trainVFLambda      float64
	trainEntropyLambda float64
	trainNormalizeAdv  bool
	trainMaxGradNorm   float64
	trainLRMilestones  []int
	trainLRGamma       float64
	trainDB            string
	trainCheckpoint    string
)

// TrainCmd runs a PPO training run.
var TrainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a policy with PPO",
	Long: `Train an attention construction policy on random TSP instances with PPO.

Mini-batch size accepts either an instance count (e.g. 128) or a fraction
of the rollout batch written with a decimal point (e.g. 0.25).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mbSize, err := nco.ParseMiniBatchSize(trainMiniBatch)
		if err != nil {
			return fmt.Errorf("invalid --minibatch: %w", err)
		}

		cfg := training.DefaultRunConfig()
		cfg.NumNodes = trainNodes
		cfg.BatchSize = trainBatchSize
		cfg.Epochs = trainEpochs
		cfg.StepsPerEpoch = trainSteps
		cfg.Seed = trainSeed
		cfg.PPO = nco.PPOConfig{
			ClipRange:     trainClipRange,
			PPOEpochs:     trainPPOEpochs,
			MiniBatchSize: mbSize,
			VFLambda:      trainVFLambda,
			EntropyLambda: trainEntropyLambda,
			NormalizeAdv:  trainNormalizeAdv,
			MaxGradNorm:   trainMaxGradNorm,
			LearningRate:  trainLR,
		}
		cfg.LRMilestones = trainLRMilestones
		cfg.LRGamma = trainLRGamma
		cfg.CheckpointPath = trainCheckpoint

		store, err := runstore.NewSQLiteStore(trainDB)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			cancel()
		}()

		service := training.NewService(store)
		totalSteps := cfg.Epochs * cfg.StepsPerEpoch

		fmt.Printf("Training PPO on TSP-%d (batch %d, %d epochs x %d steps)\n",
			cfg.NumNodes, cfg.BatchSize, cfg.Epochs, cfg.StepsPerEpoch)

		run, err := service.Run(ctx, cfg, func(m *nco.StepMetrics) {
			fmt.Printf("step %4d/%d  reward %8.4f  loss %8.4f  clip %.3f  lr %.2e\n",
				m.Step, totalSteps, m.MeanReward, m.Loss.Total, m.ClipFraction, m.LR)
		})
		if err != nil {
			if run != nil {
				fmt.Printf("run %s stopped: %v\n", run.ID, err)
			}
			return err
		}

		fmt.Printf("Run complete: %s\n", run.ID)
		if trainCheckpoint != "" {
			fmt.Printf("Checkpoint saved to %s\n", trainCheckpoint)
		}
		return nil
	},
}

func init() {
	TrainCmd.Flags().IntVarP(&trainNodes, "nodes", "n", 20, "Instance size (nodes per TSP instance)")
	TrainCmd.Flags().IntVarP(&trainBatchSize, "batch-size", "b", 64, "Instances per outer step")
	TrainCmd.Flags().IntVarP(&trainEpochs, "epochs", "e", 10, "Outer training epochs")
	TrainCmd.Flags().IntVar(&trainSteps, "steps", 50, "Outer steps per epoch")
	TrainCmd.Flags().Int64Var(&trainSeed, "seed", 42, "RNG seed")
	TrainCmd.Flags().Float64Var(&trainLR, "lr", 3e-4, "Learning rate")
	TrainCmd.Flags().Float64Var(&trainClipRange, "clip-range", 0.2, "PPO clip range (epsilon)")
	TrainCmd.Flags().IntVar(&trainPPOEpochs, "ppo-epochs", 2, "Inner PPO epochs per rollout")
	TrainCmd.Flags().StringVar(&trainMiniBatch, "minibatch", "0.25", "Mini-batch size: count or batch fraction")
	TrainCmd.Flags().Float64Var(&trainVFLambda, "vf-lambda", 0.5, "Value loss weight")
	TrainCmd.Flags().Float64Var(&trainEntropyLambda, "entropy-lambda", 0.0, "Entropy bonus weight")
	TrainCmd.Flags().BoolVar(&trainNormalizeAdv, "normalize-adv", false, "Standardize advantages per mini-batch")
	TrainCmd.Flags().Float64Var(&trainMaxGradNorm, "max-grad-norm", 0.5, "Global gradient norm ceiling (<=0 disables)")
	TrainCmd.Flags().IntSliceVar(&trainLRMilestones, "lr-milestones", nil, "Epochs at which the learning rate decays")
	TrainCmd.Flags().Float64Var(&trainLRGamma, "lr-gamma", 0.1, "Learning rate decay factor at milestones")
	TrainCmd.Flags().StringVar(&trainDB, "db", ".data/rl4co.db", "SQLite database path")
	TrainCmd.Flags().StringVarP(&trainCheckpoint, "checkpoint", "c", "", "Checkpoint output path")
}
