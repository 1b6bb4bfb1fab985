package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kuitang/knowledge-e2e/internal/obs"
	"github.com/kuitang/knowledge-e2e/internal/report"
	"github.com/spf13/cobra"
)

// EventsFile holds the raw go test -json stream of every attempt.
const EventsFile = "events.json"

func newTestCmd(a *app) *cobra.Command {
	var (
		retries int
		outDir  string
		goBin   string
	)
	cmd := &cobra.Command{
		Use:   "test [packages] [-- go test flags]",
		Short: "Run the tests, rerun failures, and write reports",
		Long: `Run go test -json over the given packages (default ./tests/...), rerun failing
tests up to --retries times with RETRY_ATTEMPT set, and write the reports.

Retries default to RETRIES, which is 2 in CI. WORKERS maps to go test -p.

Examples:
  suite test
  suite test ./tests/api -- -count=1 -v`,
		RunE: func(cmd *cobra.Command, args []string) error {
			pkgs, extra := args, []string(nil)
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				pkgs, extra = args[:dash], args[dash:]
			}
			if len(pkgs) == 0 {
				pkgs = []string{"./tests/..."}
			}
			if !cmd.Flags().Changed("retries") {
				retries = a.cfg.Retries
			}
			if outDir == "" {
				outDir = a.cfg.ArtifactsDir
			}
			if a.cfg.Workers > 0 {
				extra = append([]string{"-p", strconv.Itoa(a.cfg.Workers)}, extra...)
			}

			r := &runner{goBin: goBin, stderr: cmd.ErrOrStderr()}
			run, err := r.runWithRetries(cmd.Context(), pkgs, extra, retries)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(outDir, EventsFile), r.events.Bytes(), 0o644); err != nil {
				return err
			}
			paths, err := report.WriteAll(outDir, run)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), run, paths)
			if run.Failed() {
				return fmt.Errorf("%d tests failed", run.Summary.Failed+len(run.BrokenPackages))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&retries, "retries", 0, "reruns of failing tests (default RETRIES)")
	cmd.Flags().StringVar(&outDir, "out", "", "report directory (default ARTIFACTS_DIR)")
	cmd.Flags().StringVar(&goBin, "go", "go", "go command to run")
	return cmd
}

type runner struct {
	goBin  string
	stderr io.Writer
	events bytes.Buffer
}

func (r *runner) runWithRetries(ctx context.Context, pkgs, extra []string, retries int) (*report.Run, error) {
	logger := obs.From(ctx).With("pkg", "cli")
	if err := r.goTest(ctx, 0, pkgs, extra); err != nil {
		return nil, err
	}
	run, err := report.Parse(bytes.NewReader(r.events.Bytes()))
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= retries; attempt++ {
		failed := run.FailedTests()
		if len(failed) == 0 {
			break
		}
		pkgNames := make([]string, 0, len(failed))
		for pkg := range failed {
			pkgNames = append(pkgNames, pkg)
		}
		sort.Strings(pkgNames)
		for _, pkg := range pkgNames {
			logger.Info("retrying_failed_tests", "attempt", attempt, "package", pkg, "tests", failed[pkg])
			args := append(append([]string{}, extra...), "-run", runPattern(failed[pkg]))
			if err := r.goTest(ctx, attempt, []string{pkg}, args); err != nil {
				return nil, err
			}
		}
		if run, err = report.Parse(bytes.NewReader(r.events.Bytes())); err != nil {
			return nil, err
		}
	}
	return run, nil
}

// runPattern matches exactly the named top-level tests.
func runPattern(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = regexp.QuoteMeta(n)
	}
	return "^(" + strings.Join(quoted, "|") + ")$"
}

// goTest appends one go test -json run to r.events. Test failures are not errors here;
// they are read back from the events.
func (r *runner) goTest(ctx context.Context, attempt int, pkgs, extra []string) error {
	args := append([]string{"test", "-json"}, extra...)
	args = append(args, pkgs...)
	c := exec.CommandContext(ctx, r.goBin, args...)
	c.Env = append(os.Environ(), "RETRY_ATTEMPT="+strconv.Itoa(attempt))
	c.Stdout = &r.events
	c.Stderr = r.stderr

	err := c.Run()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return fmt.Errorf("run %s test: %w", r.goBin, err)
	}
	return nil
}
