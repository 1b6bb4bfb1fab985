package cli

import (
	"fmt"
	"strings"

	"github.com/kuitang/knowledge-e2e/internal/apiclient"
	"github.com/kuitang/knowledge-e2e/internal/errs"
	"github.com/kuitang/knowledge-e2e/internal/model"
	"github.com/kuitang/knowledge-e2e/internal/obs"
	"github.com/kuitang/knowledge-e2e/internal/testdata"
	"github.com/spf13/cobra"
)

const sweepPageSize = 100

func newSweepCmd(a *app) *cobra.Command {
	var (
		prefix string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete sources left behind by interrupted test runs",
		Long: `Delete sources whose name starts with the generated-fixture prefix.

Tests delete what they create, but an interrupted run leaves sources behind.

Examples:
  suite sweep --dry-run
  suite sweep --prefix "GitHub Test Source"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := apiclient.FromConfig(a.cfg)
			logger := obs.From(ctx).With("pkg", "cli")

			var stale []model.Source
			for offset := 0; ; offset += sweepPageSize {
				page, err := client.ListSources(ctx, apiclient.ListParams{
					Limit:  sweepPageSize,
					Offset: offset,
					Search: strings.TrimSpace(prefix),
				})
				if err != nil {
					return fmt.Errorf("list sources: %w", err)
				}
				for _, src := range page.Items {
					if strings.HasPrefix(src.Name, prefix) {
						stale = append(stale, src)
					}
				}
				if !page.Pagination.HasNext {
					break
				}
			}

			out := cmd.OutOrStdout()
			deleted := 0
			for _, src := range stale {
				if dryRun {
					printf(out, "would delete %s %q\n", src.ID, src.Name)
					continue
				}
				err := client.DeleteSource(ctx, src.ID)
				switch {
				case err == nil:
					deleted++
					printf(out, "deleted %s %q\n", src.ID, src.Name)
				case errs.Is(err, errs.NotFound):
					// Removed concurrently.
				default:
					logger.Warn("sweep_delete_failed", "source_id", src.ID, "error", err)
					return fmt.Errorf("delete %s: %w", src.ID, err)
				}
			}
			logger.Info("sweep_done", "matched", len(stale), "deleted", deleted, "dry_run", dryRun)
			printf(out, "%d matched, %d deleted\n", len(stale), deleted)
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", testdata.SourceNamePrefix, "name prefix of sources to delete")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list matches without deleting")
	return cmd
}
