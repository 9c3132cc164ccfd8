package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/mtune/internal/domain"
	"github.com/emiliopalmerini/mtune/internal/output"
	"github.com/emiliopalmerini/mtune/internal/sampler"
	"github.com/emiliopalmerini/mtune/internal/study"
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Create a new trial and suggest parameters",
	Long: `Create a new trial, or claim an enqueued one, and sample the search space.
The study is created when it does not exist yet.

The search space maps parameter names to distributions:
  {"x": {"name": "FloatDistribution", "attributes": {"low": 0.0, "high": 1.0}}}

Examples:
  mtune ask --study-name resnet --sampler RandomSampler --sampler-kwargs '{"seed": 0}' \
    --search-space '{"lr": {"name": "FloatDistribution", "attributes": {"low": 1e-5, "high": 1e-1, "log": true}}}'`,
	Args: cobra.NoArgs,
	RunE: runAsk,
}

var tellCmd = &cobra.Command{
	Use:   "tell",
	Short: "Finish a trial created with ask",
	Long: `Finish a trial with objective values or a state.

Without --state, a trial told values completes and a trial told nothing fails.

Examples:
  mtune tell --study-name resnet --trial-number 0 --values 0.93
  mtune tell --study-name resnet --trial-number 1 --state pruned
  mtune tell --study-name resnet --trial-number 1 --state fail --skip-if-finished`,
	Args: cobra.NoArgs,
	RunE: runTell,
}

// Flags
var (
	askStudyName     string
	askDirection     string
	askDirections    []string
	askSampler       string
	askSamplerKwargs string
	askSearchSpace   string
	askOutput        outputFlags

	tellStudyName      string
	tellTrialNumber    int
	tellValues         []float64
	tellState          string
	tellSkipIfFinished bool
)

func init() {
	rootCmd.AddCommand(askCmd, tellCmd)

	askCmd.Flags().StringVar(&askStudyName, "study-name", "", "Name of the study")
	askCmd.Flags().StringVar(&askDirection, "direction", "", "Direction of optimization: minimize or maximize")
	askCmd.Flags().StringSliceVar(&askDirections, "directions", nil, "Directions of a multi-objective study")
	askCmd.Flags().StringVar(&askSampler, "sampler", sampler.RandomSamplerName, "Class name of the sampler")
	askCmd.Flags().StringVar(&askSamplerKwargs, "sampler-kwargs", "", "Sampler arguments as a JSON object")
	askCmd.Flags().StringVar(&askSearchSpace, "search-space", "", "Search space as a JSON object")
	askCmd.MarkFlagsMutuallyExclusive("direction", "directions")
	_ = askCmd.MarkFlagRequired("study-name")
	askOutput.register(askCmd, output.FormatJSON)

	tellCmd.Flags().StringVar(&tellStudyName, "study-name", "", "Name of the study")
	tellCmd.Flags().IntVar(&tellTrialNumber, "trial-number", -1, "Trial number")
	tellCmd.Flags().Float64SliceVar(&tellValues, "values", nil, "Objective values")
	tellCmd.Flags().StringVar(&tellState, "state", "", "Trial state: complete, pruned or fail")
	tellCmd.Flags().BoolVar(&tellSkipIfFinished, "skip-if-finished", false, "Do nothing if the trial is already finished")
	_ = tellCmd.MarkFlagRequired("study-name")
	_ = tellCmd.MarkFlagRequired("trial-number")
}

func runAsk(cmd *cobra.Command, args []string) error {
	p, err := askOutput.printer()
	if err != nil {
		return err
	}

	var directions []domain.StudyDirection
	if askDirection != "" || len(askDirections) > 0 {
		directions, err = directionsFlag(askDirection, askDirections)
		if err != nil {
			return err
		}
	}
	smp, err := sampler.New(askSampler, askSamplerKwargs)
	if err != nil {
		return err
	}
	space, err := domain.ParseSearchSpace(askSearchSpace)
	if err != nil {
		return err
	}

	return withApp(cmd.Context(), false, func(app *AppContext) error {
		_, trial, err := app.Service.Ask(cmd.Context(), study.AskRequest{
			StudyName:   askStudyName,
			Directions:  directions,
			Sampler:     smp,
			SearchSpace: space,
		})
		if err != nil {
			return fmt.Errorf("failed to ask: %w", err)
		}
		record := output.NewRecord().
			Set("number", trial.Number).
			Set("params", trial.Params)
		return p.PrintRecord(cmd.OutOrStdout(), record)
	})
}

func runTell(cmd *cobra.Command, args []string) error {
	var state *domain.TrialState
	if tellState != "" {
		s, err := domain.ParseTrialState(tellState)
		if err != nil {
			return err
		}
		if !s.IsFinished() {
			return fmt.Errorf("trial state must be complete, pruned or fail, got %s", tellState)
		}
		state = &s
	}

	return withApp(cmd.Context(), false, func(app *AppContext) error {
		_, err := app.Service.Tell(cmd.Context(), study.TellRequest{
			StudyName:      tellStudyName,
			TrialNumber:    tellTrialNumber,
			Values:         tellValues,
			State:          state,
			SkipIfFinished: tellSkipIfFinished,
		})
		if err != nil {
			return fmt.Errorf("failed to tell: %w", err)
		}
		return nil
	})
}
