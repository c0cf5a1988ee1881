package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Ashirog1/rl4co/internal/infrastructure/runstore"
)

// Flag variables for the runs command
var (
	runsDB   string
	runsJSON bool

	stepsRunID string
)

// RunsCmd lists recorded training runs.
var RunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded training runs",
	Long:  `List the training runs recorded in the metrics database, newest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := runstore.NewSQLiteStore(runsDB)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.ListRuns(context.Background())
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded")
			return nil
		}

		if runsJSON {
			output, _ := json.MarshalIndent(runs, "", "  ")
			fmt.Println(string(output))
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tENV\tSEED\tCLIP\tK\tMINIBATCH\tLR\tCREATED")
		for _, run := range runs {
			fmt.Fprintf(w, "%s\t%s\t%d\t%g\t%d\t%s\t%g\t%s\n",
				run.ID, run.Env, run.Seed, run.Config.ClipRange, run.Config.PPOEpochs,
				run.Config.MiniBatchSize, run.Config.LearningRate,
				run.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

// stepsCmd shows the step metrics of one run.
var stepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "Show a run's step metrics",
	Long:  `Show the per-step metrics recorded for one training run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := runstore.NewSQLiteStore(runsDB)
		if err != nil {
			return err
		}
		defer store.Close()

		steps, err := store.StepsForRun(context.Background(), stepsRunID)
		if err != nil {
			return err
		}

		if runsJSON {
			output, _ := json.MarshalIndent(steps, "", "  ")
			fmt.Println(string(output))
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STEP\tREWARD\tLOSS\tSURROGATE\tVALUE\tENTROPY\tCLIP%\tUPDATES\tLR")
		for _, m := range steps {
			fmt.Fprintf(w, "%d\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t%.3f\t%d\t%.2e\n",
				m.Step, m.MeanReward, m.Loss.Total, m.Loss.Surrogate, m.Loss.Value,
				m.Loss.Entropy, m.ClipFraction, m.NumUpdates, m.LR)
		}
		return w.Flush()
	},
}

func init() {
	RunsCmd.PersistentFlags().StringVar(&runsDB, "db", ".data/rl4co.db", "SQLite database path")
	RunsCmd.PersistentFlags().BoolVar(&runsJSON, "json", false, "JSON output")

	stepsCmd.Flags().StringVarP(&stepsRunID, "run", "r", "", "Run ID (required)")
	stepsCmd.MarkFlagRequired("run")
	RunsCmd.AddCommand(stepsCmd)
}
