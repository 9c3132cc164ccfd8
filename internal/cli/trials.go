package cli

import (
	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/mtune/internal/output"
)

var trialsCmd = &cobra.Command{
	Use:   "trials",
	Short: "List trials of a study",
	Long: `List all trials of a study.

Examples:
  mtune trials --study-name resnet
  mtune trials --study-name resnet -f json --flatten`,
	Args: cobra.NoArgs,
	RunE: runTrials,
}

var bestTrialCmd = &cobra.Command{
	Use:   "best-trial",
	Short: "Show the best trial of a single-objective study",
	Args:  cobra.NoArgs,
	RunE:  runBestTrial,
}

var bestTrialsCmd = &cobra.Command{
	Use:   "best-trials",
	Short: "List the Pareto-optimal trials of a study",
	Args:  cobra.NoArgs,
	RunE:  runBestTrials,
}

// Flags
var (
	trialsStudyName     string
	bestTrialStudyName  string
	bestTrialsStudyName string

	trialsOutput     outputFlags
	bestTrialOutput  outputFlags
	bestTrialsOutput outputFlags
)

func init() {
	rootCmd.AddCommand(trialsCmd, bestTrialCmd, bestTrialsCmd)

	trialsCmd.Flags().StringVar(&trialsStudyName, "study-name", "", "The name of the study")
	bestTrialCmd.Flags().StringVar(&bestTrialStudyName, "study-name", "", "The name of the study")
	bestTrialsCmd.Flags().StringVar(&bestTrialsStudyName, "study-name", "", "The name of the study")
	for _, c := range []*cobra.Command{trialsCmd, bestTrialCmd, bestTrialsCmd} {
		_ = c.MarkFlagRequired("study-name")
	}

	trialsOutput.register(trialsCmd, output.FormatTable)
	bestTrialOutput.register(bestTrialCmd, output.FormatTable)
	bestTrialsOutput.register(bestTrialsCmd, output.FormatTable)
}

func runTrials(cmd *cobra.Command, args []string) error {
	p, err := trialsOutput.printer()
	if err != nil {
		return err
	}
	return withApp(cmd.Context(), false, func(app *AppContext) error {
		st, trials, err := app.Service.Trials(cmd.Context(), trialsStudyName)
		if err != nil {
			return err
		}
		return p.PrintList(cmd.OutOrStdout(), output.TrialRecords(st, trials))
	})
}

func runBestTrial(cmd *cobra.Command, args []string) error {
	p, err := bestTrialOutput.printer()
	if err != nil {
		return err
	}
	return withApp(cmd.Context(), false, func(app *AppContext) error {
		st, trial, err := app.Service.BestTrial(cmd.Context(), bestTrialStudyName)
		if err != nil {
			return err
		}
		return p.PrintRecord(cmd.OutOrStdout(), output.TrialRecord(st, trial))
	})
}

func runBestTrials(cmd *cobra.Command, args []string) error {
	p, err := bestTrialsOutput.printer()
	if err != nil {
		return err
	}
	return withApp(cmd.Context(), false, func(app *AppContext) error {
		st, trials, err := app.Service.BestTrials(cmd.Context(), bestTrialsStudyName)
		if err != nil {
			return err
		}
		return p.PrintList(cmd.OutOrStdout(), output.TrialRecords(st, trials))
	})
}
