package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/emiliopalmerini/mtune/internal/domain"
	"github.com/emiliopalmerini/mtune/internal/objective"
	"github.com/emiliopalmerini/mtune/internal/sampler"
)

var studyOptimizeCmd = &cobra.Command{
	Use:   "optimize CONFIG.hcl",
	Short: "Run an optimization against an external objective command",
	Long: `Run an optimization described in an HCL file. Every trial runs the
objective command with the suggested parameters as JSON on stdin and in
MTUNE_PARAMS. The command prints its objective values, or PRUNED, on the last
line of its output. Lines of the form "REPORT <step> <value>" record
intermediate values; a pruned trial takes the last one as its value.

Example config:

  study {
    name      = "quadratic"
    direction = "minimize"
    n_trials  = 100
  }

  objective {
    command = ["python", "objective.py"]
    timeout = "10m"
  }

  param "x" {
    type = "float"
    low  = -10
    high = 10
  }

Examples:
  mtune study optimize optimize.hcl
  mtune study optimize optimize.hcl --n-trials 20 --n-jobs 4 --timeout 1h`,
	Args: cobra.ExactArgs(1),
	RunE: runStudyOptimize,
}

var studyTrialOutputCmd = &cobra.Command{
	Use:   "trial-output",
	Short: "Print the objective output kept for a trial",
	Long: `Print the stdout and stderr of the objective command that evaluated a
trial. Outputs are only kept by study optimize --keep-output.

Examples:
  mtune study trial-output --study-name quadratic --trial-number 3`,
	Args: cobra.NoArgs,
	RunE: runStudyTrialOutput,
}

// Flags
var (
	optimizeStudyName  string
	optimizeNTrials    int
	optimizeTimeout    time.Duration
	optimizeNJobs      int
	optimizeKeepOutput bool

	trialOutputStudyName string
	trialOutputNumber    int
)

func init() {
	studyCmd.AddCommand(studyOptimizeCmd, studyTrialOutputCmd)

	studyOptimizeCmd.Flags().StringVar(&optimizeStudyName, "study-name", "", "Name of the study (overrides the config)")
	studyOptimizeCmd.Flags().IntVar(&optimizeNTrials, "n-trials", 0, "Number of trials (overrides the config)")
	studyOptimizeCmd.Flags().DurationVar(&optimizeTimeout, "timeout", 0, "Stop starting new trials after this duration")
	studyOptimizeCmd.Flags().IntVar(&optimizeNJobs, "n-jobs", 1, "Number of trials run in parallel")
	studyOptimizeCmd.Flags().BoolVar(&optimizeKeepOutput, "keep-output", false, "Keep the output of every objective run")

	studyTrialOutputCmd.Flags().StringVar(&trialOutputStudyName, "study-name", "", "The name of the study")
	studyTrialOutputCmd.Flags().IntVar(&trialOutputNumber, "trial-number", -1, "The number of the trial")
	_ = studyTrialOutputCmd.MarkFlagRequired("study-name")
	_ = studyTrialOutputCmd.MarkFlagRequired("trial-number")
}

func runStudyOptimize(cmd *cobra.Command, args []string) error {
	cfg, err := objective.LoadConfig(args[0])
	if err != nil {
		return err
	}
	if optimizeStudyName != "" {
		cfg.StudyName = optimizeStudyName
	}
	if cmd.Flags().Changed("n-trials") {
		cfg.NTrials = optimizeNTrials
	}
	if cfg.StudyName == "" {
		return errors.New("a study name is required: set study.name in the config or pass --study-name")
	}
	if cfg.Sampler == "" {
		cfg.Sampler = sampler.RandomSamplerName
	}
	smp, err := sampler.New(cfg.Sampler, cfg.SamplerKwargs)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	return withApp(ctx, false, func(app *AppContext) error {
		opts := objective.Options{
			StudyName:   cfg.StudyName,
			Directions:  cfg.Directions,
			SearchSpace: cfg.SearchSpace,
			Sampler:     smp,
			NTrials:     cfg.NTrials,
			Timeout:     optimizeTimeout,
			NJobs:       optimizeNJobs,
		}
		if optimizeKeepOutput {
			if opts.Archive, err = app.OutputArchive(); err != nil {
				return err
			}
		}

		runner := objective.NewCommandRunner(cfg.Objective, app.Logger)
		opt := objective.NewOptimizer(app.Service, runner, app.Logger)
		summary, err := opt.Optimize(ctx, opts)
		if summary != nil {
			app.Logger.Info("Optimization finished",
				zap.String("study", summary.StudyName),
				zap.Int("trials", summary.Total()),
				zap.Int("complete", summary.States[domain.TrialComplete]),
				zap.Int("pruned", summary.States[domain.TrialPruned]),
				zap.Int("fail", summary.States[domain.TrialFail]))
		}
		if err != nil {
			return fmt.Errorf("optimization stopped: %w", err)
		}
		return nil
	})
}

func runStudyTrialOutput(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withApp(ctx, false, func(app *AppContext) error {
		if _, err := app.Service.LoadStudy(ctx, trialOutputStudyName); err != nil {
			return err
		}
		archive, err := app.OutputArchive()
		if err != nil {
			return err
		}
		ok, err := archive.Exists(ctx, trialOutputStudyName, trialOutputNumber)
		if err != nil {
			return fmt.Errorf("failed to look up trial output: %w", err)
		}
		if !ok {
			return fmt.Errorf("no output kept for trial #%d of study %q", trialOutputNumber, trialOutputStudyName)
		}
		data, err := archive.Get(ctx, trialOutputStudyName, trialOutputNumber)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	})
}
