package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/emiliopalmerini/mtune/internal/domain"
	"github.com/emiliopalmerini/mtune/internal/output"
)

var createStudyCmd = &cobra.Command{
	Use:   "create-study",
	Short: "Create a new study",
	Long: `Create a new study and print its name.

Examples:
  mtune create-study --study-name resnet
  mtune create-study --study-name pareto --directions minimize maximize
  mtune create-study --study-name resnet --skip-if-exists`,
	Args: cobra.NoArgs,
	RunE: runCreateStudy,
}

var deleteStudyCmd = &cobra.Command{
	Use:   "delete-study",
	Short: "Delete a study and all of its trials",
	Args:  cobra.NoArgs,
	RunE:  runDeleteStudy,
}

var studyCmd = &cobra.Command{
	Use:   "study",
	Short: "Manage a single study",
}

var studySetUserAttrCmd = &cobra.Command{
	Use:   "set-user-attr",
	Short: "Set a user attribute of a study",
	Long: `Set a user attribute of a study. The value is stored as a string.

Examples:
  mtune study set-user-attr --study-name resnet --key dataset --value cifar10`,
	Args: cobra.NoArgs,
	RunE: runStudySetUserAttr,
}

var studyEnqueueTrialCmd = &cobra.Command{
	Use:   "enqueue-trial",
	Short: "Enqueue a trial with fixed parameters",
	Long: `Enqueue a WAITING trial. The next ask claims it and keeps the given
parameters instead of sampling them.

Examples:
  mtune study enqueue-trial --study-name resnet --params '{"lr": 0.01, "optimizer": "adam"}'`,
	Args: cobra.NoArgs,
	RunE: runStudyEnqueueTrial,
}

var studyNamesCmd = &cobra.Command{
	Use:   "study-names",
	Short: "List study names",
	Args:  cobra.NoArgs,
	RunE:  runStudyNames,
}

var studiesCmd = &cobra.Command{
	Use:   "studies",
	Short: "List studies",
	Args:  cobra.NoArgs,
	RunE:  runStudies,
}

// Flags
var (
	createStudyName       string
	createStudyDirection  string
	createStudyDirections []string
	createStudySkip       bool

	deleteStudyName string

	setUserAttrStudy string
	setUserAttrKey   string
	setUserAttrValue string

	enqueueStudyName string
	enqueueParams    string
	enqueueUserAttrs string

	studyNamesOutput outputFlags
	studiesOutput    outputFlags
)

func init() {
	rootCmd.AddCommand(createStudyCmd, deleteStudyCmd, studyCmd, studyNamesCmd, studiesCmd)
	studyCmd.AddCommand(studySetUserAttrCmd, studyEnqueueTrialCmd)

	createStudyCmd.Flags().StringVar(&createStudyName, "study-name", "", "A human-readable name of a study; generated when empty")
	createStudyCmd.Flags().StringVar(&createStudyDirection, "direction", "", "Direction of optimization: minimize or maximize")
	createStudyCmd.Flags().StringSliceVar(&createStudyDirections, "directions", nil, "Directions of a multi-objective study")
	createStudyCmd.Flags().BoolVar(&createStudySkip, "skip-if-exists", false, "Reuse an existing study of the same name")
	createStudyCmd.MarkFlagsMutuallyExclusive("direction", "directions")

	deleteStudyCmd.Flags().StringVar(&deleteStudyName, "study-name", "", "The name of the study to delete")
	_ = deleteStudyCmd.MarkFlagRequired("study-name")

	studySetUserAttrCmd.Flags().StringVar(&setUserAttrStudy, "study-name", "", "The name of the study")
	studySetUserAttrCmd.Flags().StringVarP(&setUserAttrKey, "key", "k", "", "Key of the user attribute")
	studySetUserAttrCmd.Flags().StringVar(&setUserAttrValue, "value", "", "Value to be set")
	for _, f := range []string{"study-name", "key", "value"} {
		_ = studySetUserAttrCmd.MarkFlagRequired(f)
	}

	studyEnqueueTrialCmd.Flags().StringVar(&enqueueStudyName, "study-name", "", "The name of the study")
	studyEnqueueTrialCmd.Flags().StringVar(&enqueueParams, "params", "{}", "Fixed parameters as a JSON object")
	studyEnqueueTrialCmd.Flags().StringVar(&enqueueUserAttrs, "user-attrs", "", "User attributes as a JSON object")
	_ = studyEnqueueTrialCmd.MarkFlagRequired("study-name")

	studyNamesOutput.register(studyNamesCmd, output.FormatTable)
	studiesOutput.register(studiesCmd, output.FormatTable)
}

func directionsFlag(direction string, directions []string) ([]domain.StudyDirection, error) {
	if direction != "" {
		directions = []string{direction}
	}
	return domain.ParseStudyDirections(directions)
}

func runCreateStudy(cmd *cobra.Command, args []string) error {
	directions, err := directionsFlag(createStudyDirection, createStudyDirections)
	if err != nil {
		return err
	}
	return withApp(cmd.Context(), false, func(app *AppContext) error {
		st, err := app.Service.CreateStudy(cmd.Context(), createStudyName, directions, createStudySkip)
		if err != nil {
			return fmt.Errorf("failed to create study: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), st.Name)
		return nil
	})
}

func runDeleteStudy(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), false, func(app *AppContext) error {
		if err := app.Service.DeleteStudy(cmd.Context(), deleteStudyName); err != nil {
			return fmt.Errorf("failed to delete study: %w", err)
		}
		archive, err := app.OutputArchive()
		if err == nil {
			err = archive.DeleteStudy(cmd.Context(), deleteStudyName)
		}
		if err != nil {
			app.Logger.Warn("Failed to delete kept objective outputs", zap.Error(err))
		}
		return nil
	})
}

func runStudySetUserAttr(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), false, func(app *AppContext) error {
		if err := app.Service.SetStudyUserAttr(cmd.Context(), setUserAttrStudy, setUserAttrKey, setUserAttrValue); err != nil {
			return fmt.Errorf("failed to set user attribute: %w", err)
		}
		app.Logger.Info("Attribute successfully written.")
		return nil
	})
}

func runStudyEnqueueTrial(cmd *cobra.Command, args []string) error {
	params, err := jsonObject("params", enqueueParams)
	if err != nil {
		return err
	}
	userAttrs, err := jsonObject("user-attrs", enqueueUserAttrs)
	if err != nil {
		return err
	}
	return withApp(cmd.Context(), false, func(app *AppContext) error {
		trial, err := app.Service.EnqueueTrial(cmd.Context(), enqueueStudyName, params, userAttrs)
		if err != nil {
			return fmt.Errorf("failed to enqueue trial: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), trial.Number)
		return nil
	})
}

func runStudyNames(cmd *cobra.Command, args []string) error {
	p, err := studyNamesOutput.printer()
	if err != nil {
		return err
	}
	return withApp(cmd.Context(), false, func(app *AppContext) error {
		names, err := app.Service.StudyNames(cmd.Context())
		if err != nil {
			return err
		}
		records := make([]*output.Record, len(names))
		for i, name := range names {
			records[i] = output.NewRecord().Set("name", name)
		}
		return p.PrintList(cmd.OutOrStdout(), records)
	})
}

func runStudies(cmd *cobra.Command, args []string) error {
	p, err := studiesOutput.printer()
	if err != nil {
		return err
	}
	return withApp(cmd.Context(), false, func(app *AppContext) error {
		summaries, err := app.Service.Summaries(cmd.Context())
		if err != nil {
			return err
		}
		records := make([]*output.Record, len(summaries))
		for i, s := range summaries {
			records[i] = output.StudyRecord(s)
		}
		return p.PrintList(cmd.OutOrStdout(), records)
	})
}

func jsonObject(flag, s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", flag, err)
	}
	return m, nil
}
