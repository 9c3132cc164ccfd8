package objective

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/emiliopalmerini/mtune/internal/domain"
)

// Environment variables passed to the objective command.
const (
	EnvParams      = "MTUNE_PARAMS"
	EnvTrialNumber = "MTUNE_TRIAL_NUMBER"
	EnvStudyName   = "MTUNE_STUDY_NAME"
)

// PrunedOutput is the line an objective prints to prune its trial.
const PrunedOutput = "PRUNED"

// ReportPrefix starts an intermediate value line: "REPORT <step> <value>".
const ReportPrefix = "REPORT"

// waitDelay bounds how long Wait keeps reading from pipes held open by
// processes the objective left behind.
const waitDelay = 2 * time.Second

// Result is the outcome of one objective evaluation. Err explains a FAIL.
// Intermediate holds the values reported per step, whatever the final state.
// Output holds the command's stdout followed by its stderr.
type Result struct {
	State        domain.TrialState
	Values       []float64
	Intermediate map[int]float64
	Err          error
	Output       []byte
}

// Runner evaluates a trial.
type Runner interface {
	Run(ctx context.Context, studyName string, trial *domain.Trial) Result
}

// CommandRunner runs the objective as an external process.
type CommandRunner struct {
	objective Objective
	logger    *zap.Logger
}

func NewCommandRunner(objective Objective, logger *zap.Logger) *CommandRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandRunner{objective: objective, logger: logger}
}

// Run writes the trial params as JSON to the command's stdin and reads the
// objective values from the last non-empty, non-REPORT line of its stdout.
// The command runs in its own process group, which is killed as a whole on
// timeout or cancellation.
func (r *CommandRunner) Run(ctx context.Context, studyName string, trial *domain.Trial) Result {
	if len(r.objective.Command) == 0 {
		return failed(errors.New("objective command is empty"))
	}

	params, err := json.Marshal(trial.Params)
	if err != nil {
		return failed(fmt.Errorf("failed to encode params: %w", err))
	}

	if r.objective.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.objective.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.objective.Command[0], r.objective.Command[1:]...)
	cmd.Dir = r.objective.Dir
	cmd.Stdin = bytes.NewReader(params)
	cmd.Env = append(os.Environ(),
		EnvParams+"="+string(params),
		EnvTrialNumber+"="+strconv.Itoa(trial.Number),
		EnvStudyName+"="+studyName,
	)
	for k, v := range r.objective.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	r.logger.Debug("Running objective",
		zap.Int("number", trial.Number),
		zap.Strings("command", r.objective.Command),
		zap.ByteString("params", params))

	res := r.run(ctx, cmd, &stdout, &stderr)
	res.Output = append(stdout.Bytes(), stderr.Bytes()...)
	return res
}

func (r *CommandRunner) run(ctx context.Context, cmd *exec.Cmd, stdout, stderr *bytes.Buffer) Result {
	runErr := cmd.Run()
	if errors.Is(runErr, exec.ErrWaitDelay) && ctx.Err() == nil {
		r.logger.Warn("Objective left processes holding its output open", zap.Int("pid", cmd.Process.Pid))
		runErr = nil
	}

	last, reports, scanErr := scanOutput(stdout.String())
	res := r.result(ctx, runErr, last, stderr)
	if len(reports) > 0 {
		res.Intermediate = reports
	}
	if scanErr != nil && res.Err == nil {
		res = Result{State: domain.TrialFail, Err: scanErr, Intermediate: res.Intermediate}
	}
	return res
}

func (r *CommandRunner) result(ctx context.Context, runErr error, last string, stderr *bytes.Buffer) Result {
	if runErr != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return failed(fmt.Errorf("objective timed out after %s", r.objective.Timeout))
		}
		if ctx.Err() != nil {
			return failed(fmt.Errorf("objective interrupted: %w", ctx.Err()))
		}
		return failed(fmt.Errorf("objective exited: %w: %s", runErr, lastLine(stderr.String())))
	}

	state, values, err := ParseOutput(last)
	if err != nil {
		return failed(err)
	}
	return Result{State: state, Values: values}
}

// ParseOutput reads an objective result line: "PRUNED", or floats separated
// by whitespace or commas.
func ParseOutput(line string) (domain.TrialState, []float64, error) {
	line = strings.TrimSpace(line)
	if strings.EqualFold(line, PrunedOutput) {
		return domain.TrialPruned, nil, nil
	}
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) == 0 {
		return domain.TrialFail, nil, errors.New("objective printed no value")
	}
	values := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return domain.TrialFail, nil, fmt.Errorf("objective printed %q, which is not a number", f)
		}
		values[i] = v
	}
	return domain.TrialComplete, values, nil
}

// ParseReport reads an intermediate value line "REPORT <step> <value>". ok is
// false when the line is not a report at all.
func ParseReport(line string) (step int, value float64, ok bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || !strings.EqualFold(fields[0], ReportPrefix) {
		return 0, 0, false, nil
	}
	if len(fields) != 3 {
		return 0, 0, true, fmt.Errorf("objective printed %q, want %s <step> <value>", line, ReportPrefix)
	}
	step, err = strconv.Atoi(fields[1])
	if err != nil || step < 0 {
		return 0, 0, true, fmt.Errorf("objective reported step %q, which is not a non-negative integer", fields[1])
	}
	value, err = strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return 0, 0, true, fmt.Errorf("objective reported %q, which is not a number", fields[2])
	}
	return step, value, true, nil
}

// scanOutput splits stdout into the result line and the reported
// intermediate values. A later report for the same step wins.
func scanOutput(s string) (string, map[int]float64, error) {
	var (
		last    string
		reports map[int]float64
		bad     error
	)
	sc := bufio.NewScanner(strings.NewReader(s))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		step, value, ok, err := ParseReport(line)
		switch {
		case !ok:
			last = line
		case err != nil:
			if bad == nil {
				bad = err
			}
		default:
			if reports == nil {
				reports = make(map[int]float64)
			}
			reports[step] = value
		}
	}
	return last, reports, bad
}

func lastLine(s string) string {
	var last string
	sc := bufio.NewScanner(strings.NewReader(s))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			last = line
		}
	}
	return last
}

func failed(err error) Result {
	return Result{State: domain.TrialFail, Err: err}
}
