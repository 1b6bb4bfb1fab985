package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/kuitang/knowledge-e2e/internal/report"
	"github.com/spf13/cobra"
)

func newReportCmd(a *app) *cobra.Command {
	var (
		outDir     string
		failOnFail bool
	)
	cmd := &cobra.Command{
		Use:   "report <events.json|->",
		Short: "Render go test -json output as JSON, JUnit and HTML reports",
		Long: `Render go test -json output as JSON, JUnit and HTML reports.

Examples:
  go test -json ./tests/... | suite report -
  suite report reports/events.json --out reports`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			if outDir == "" {
				outDir = a.cfg.ArtifactsDir
			}

			run, err := report.Parse(in)
			if err != nil {
				return err
			}
			paths, err := report.WriteAll(outDir, run)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), run, paths)
			if failOnFail && run.Failed() {
				return fmt.Errorf("%d tests failed", run.Summary.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "output directory (default ARTIFACTS_DIR)")
	cmd.Flags().BoolVar(&failOnFail, "fail", false, "exit non-zero when the run failed")
	return cmd
}

func printSummary(w io.Writer, run *report.Run, paths []string) {
	s := run.Summary
	printf(w, "%d tests: %d passed, %d failed, %d skipped, %d flaky\n", s.Total, s.Passed, s.Failed, s.Skipped, s.Flaky)
	for _, pkg := range run.BrokenPackages {
		printf(w, "broken package: %s\n", pkg)
	}
	for _, p := range paths {
		printf(w, "wrote %s\n", p)
	}
}
