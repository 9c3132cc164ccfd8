package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kami-zh/go-capturer"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// resetFlags restores every flag to its default so commands can run more
// than once in a test binary.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs the root command with args and returns what it printed to
// stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var err error
	out := capturer.CaptureStdout(func() {
		rootCmd.SetArgs(args)
		err = rootCmd.ExecuteContext(context.Background())
	})
	return out, err
}

// mustExecute fails the test when the command errors.
func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("mtune %v: %v", args, err)
	}
	return out
}

// testStorage returns a --storage URL for a fresh database file.
func testStorage(t *testing.T) string {
	t.Helper()
	t.Setenv("MTUNE_STORAGE", "")
	t.Setenv("MTUNE_OTEL_ENABLED", "false")
	t.Setenv("MTUNE_OUTPUT_DIR", filepath.Join(t.TempDir(), "outputs"))
	return "sqlite:///" + filepath.Join(t.TempDir(), "mtune.db")
}
