package objective

import (
	"context"
	"math"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/go-test/deep"

	"github.com/emiliopalmerini/mtune/internal/domain"
)

func TestParseOutput(t *testing.T) {
	tests := []struct {
		line    string
		state   domain.TrialState
		values  []float64
		wantErr bool
	}{
		{line: "0.5", state: domain.TrialComplete, values: []float64{0.5}},
		{line: "  1.5  -2 ", state: domain.TrialComplete, values: []float64{1.5, -2}},
		{line: "1,2, 3", state: domain.TrialComplete, values: []float64{1, 2, 3}},
		{line: "inf", state: domain.TrialComplete, values: []float64{math.Inf(1)}},
		{line: "PRUNED", state: domain.TrialPruned},
		{line: "pruned", state: domain.TrialPruned},
		{line: "", state: domain.TrialFail, wantErr: true},
		{line: "loss=0.3", state: domain.TrialFail, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			state, values, err := ParseOutput(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if state != tt.state {
				t.Errorf("state = %s, want %s", state, tt.state)
			}
			if diff := deep.Equal(values, tt.values); diff != nil {
				t.Error(diff)
			}
		})
	}
}

func TestLastLine(t *testing.T) {
	if got := lastLine("epoch 1\nepoch 2\n0.25\n\n  \n"); got != "0.25" {
		t.Errorf("lastLine = %q", got)
	}
	if got := lastLine(""); got != "" {
		t.Errorf("lastLine(empty) = %q", got)
	}
}

func TestParseReport(t *testing.T) {
	tests := []struct {
		line    string
		step    int
		value   float64
		ok      bool
		wantErr bool
	}{
		{line: "REPORT 2 0.5", step: 2, value: 0.5, ok: true},
		{line: "report  10\t-1e-3", step: 10, value: -1e-3, ok: true},
		{line: "0.5"},
		{line: "REPORTED 1 2"},
		{line: "REPORT 1", ok: true, wantErr: true},
		{line: "REPORT -1 0.5", ok: true, wantErr: true},
		{line: "REPORT 1 nan?", ok: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			step, value, ok, err := ParseReport(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if ok != tt.ok || step != tt.step || value != tt.value {
				t.Errorf("ParseReport = (%d, %v, %v), want (%d, %v, %v)", step, value, ok, tt.step, tt.value, tt.ok)
			}
		})
	}
}

func TestScanOutput_SkipsReports(t *testing.T) {
	last, reports, err := scanOutput("REPORT 0 3\n0.25\nREPORT 1 2\n\n")
	if err != nil {
		t.Fatal(err)
	}
	if last != "0.25" {
		t.Errorf("last = %q", last)
	}
	if diff := deep.Equal(reports, map[int]float64{0: 3, 1: 2}); diff != nil {
		t.Error(diff)
	}
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func shellRunner(script string, timeout time.Duration) *CommandRunner {
	return NewCommandRunner(Objective{
		Command: []string{"sh", "-c", script},
		Timeout: timeout,
		Env:     map[string]string{"EXTRA": "7"},
	}, nil)
}

func testTrial() *domain.Trial {
	trial := domain.NewTrial(domain.TrialRunning)
	trial.Number = 4
	trial.Params = map[string]any{"x": 1.5}
	return trial
}

func TestCommandRunner_Run(t *testing.T) {
	requireShell(t)
	ctx := context.Background()

	t.Run("reads stdin and environment", func(t *testing.T) {
		script := `read line; [ "$line" = '{"x":1.5}' ] || exit 3
[ "$MTUNE_PARAMS" = '{"x":1.5}' ] || exit 4
echo "progress"
echo "$MTUNE_TRIAL_NUMBER $EXTRA"
`
		res := shellRunner(script, 0).Run(ctx, "s", testTrial())
		if res.Err != nil {
			t.Fatalf("Run: %v", res.Err)
		}
		if res.State != domain.TrialComplete {
			t.Errorf("state = %s", res.State)
		}
		if diff := deep.Equal(res.Values, []float64{4, 7}); diff != nil {
			t.Error(diff)
		}
	})

	t.Run("pruned", func(t *testing.T) {
		res := shellRunner("echo PRUNED", 0).Run(ctx, "s", testTrial())
		if res.State != domain.TrialPruned || res.Err != nil {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("non-zero exit", func(t *testing.T) {
		res := shellRunner("echo boom >&2; exit 2", 0).Run(ctx, "s", testTrial())
		if res.State != domain.TrialFail || res.Err == nil {
			t.Fatalf("result = %+v", res)
		}
		if !strings.Contains(res.Err.Error(), "boom") {
			t.Errorf("error = %v", res.Err)
		}
	})

	t.Run("captures output", func(t *testing.T) {
		res := shellRunner("echo loss >&2; echo 0.5", 0).Run(ctx, "s", testTrial())
		if res.State != domain.TrialComplete {
			t.Fatalf("result = %+v", res)
		}
		if string(res.Output) != "0.5\nloss\n" {
			t.Errorf("output = %q", res.Output)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		start := time.Now()
		res := shellRunner("sleep 5; echo 1", 50*time.Millisecond).Run(ctx, "s", testTrial())
		if res.State != domain.TrialFail || res.Err == nil || !strings.Contains(res.Err.Error(), "timed out") {
			t.Errorf("result = %+v", res)
		}
		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Errorf("timeout took %s", elapsed)
		}
	})

	t.Run("timeout kills background children", func(t *testing.T) {
		start := time.Now()
		res := shellRunner("sleep 5 & sleep 5 & wait", 50*time.Millisecond).Run(ctx, "s", testTrial())
		if res.State != domain.TrialFail || res.Err == nil || !strings.Contains(res.Err.Error(), "timed out") {
			t.Errorf("result = %+v", res)
		}
		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Errorf("timeout took %s", elapsed)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		time.AfterFunc(100*time.Millisecond, cancel)
		start := time.Now()
		res := shellRunner("(sleep 5; echo 1)", 0).Run(cctx, "s", testTrial())
		if res.State != domain.TrialFail || res.Err == nil || !strings.Contains(res.Err.Error(), "interrupted") {
			t.Errorf("result = %+v", res)
		}
		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Errorf("cancel took %s", elapsed)
		}
	})

	t.Run("reports intermediate values", func(t *testing.T) {
		res := shellRunner("echo 'REPORT 0 0.9'; echo 'REPORT 1 0.7'; echo 'REPORT 1 0.6'; echo PRUNED", 0).Run(ctx, "s", testTrial())
		if res.State != domain.TrialPruned || res.Err != nil {
			t.Fatalf("result = %+v", res)
		}
		if diff := deep.Equal(res.Intermediate, map[int]float64{0: 0.9, 1: 0.6}); diff != nil {
			t.Error(diff)
		}
	})

	t.Run("reports survive a failure", func(t *testing.T) {
		res := shellRunner("echo 'REPORT 3 1.5'; exit 1", 0).Run(ctx, "s", testTrial())
		if res.State != domain.TrialFail || res.Err == nil {
			t.Fatalf("result = %+v", res)
		}
		if diff := deep.Equal(res.Intermediate, map[int]float64{3: 1.5}); diff != nil {
			t.Error(diff)
		}
	})

	t.Run("malformed report fails", func(t *testing.T) {
		res := shellRunner("echo 'REPORT x 1'; echo 0.5", 0).Run(ctx, "s", testTrial())
		if res.State != domain.TrialFail || res.Err == nil || !strings.Contains(res.Err.Error(), "step") {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("unparsable output", func(t *testing.T) {
		res := shellRunner("echo done", 0).Run(ctx, "s", testTrial())
		if res.State != domain.TrialFail || res.Err == nil {
			t.Errorf("result = %+v", res)
		}
	})
}
