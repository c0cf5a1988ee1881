package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Ashirog1/rl4co/internal/infrastructure/runstore"
)

// Flag variables for the plot command
var (
	plotDB     string
	plotRunID  string
	plotOutput string
	plotMetric string
)

// PlotCmd renders a run's training curve to an image file.
var PlotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Plot a run's training curve",
	Long:  `Render the reward or loss curve of a recorded run to a PNG file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := runstore.NewSQLiteStore(plotDB)
		if err != nil {
			return err
		}
		defer store.Close()

		steps, err := store.StepsForRun(context.Background(), plotRunID)
		if err != nil {
			return err
		}

		pts := make(plotter.XYs, len(steps))
		for i, m := range steps {
			pts[i].X = float64(m.Step)
			switch plotMetric {
			case "reward":
				pts[i].Y = m.MeanReward
			case "loss":
				pts[i].Y = m.Loss.Total
			case "clip":
				pts[i].Y = m.ClipFraction
			default:
				return fmt.Errorf("unknown metric %q (want reward, loss or clip)", plotMetric)
			}
		}

		p := plot.New()
		p.Title.Text = fmt.Sprintf("%s (run %s)", plotMetric, plotRunID)
		p.X.Label.Text = "step"
		p.Y.Label.Text = plotMetric

		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to build plot: %w", err)
		}
		p.Add(line)
		p.Add(plotter.NewGrid())

		if err := p.Save(8*vg.Inch, 4*vg.Inch, plotOutput); err != nil {
			return fmt.Errorf("failed to save plot: %w", err)
		}
		fmt.Printf("Plot written to %s\n", plotOutput)
		return nil
	},
}

func init() {
	PlotCmd.Flags().StringVar(&plotDB, "db", ".data/rl4co.db", "SQLite database path")
	PlotCmd.Flags().StringVarP(&plotRunID, "run", "r", "", "Run ID (required)")
	PlotCmd.Flags().StringVarP(&plotOutput, "output", "o", "training.png", "Output image path")
	PlotCmd.Flags().StringVarP(&plotMetric, "metric", "m", "reward", "Metric to plot: reward, loss or clip")
	PlotCmd.MarkFlagRequired("run")
}
