package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/kuitang/knowledge-e2e/internal/apiclient"
	"github.com/spf13/cobra"
)

func newHealthCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check GET /health on the API target",
		Long: `Check GET /health on the API target and print the overall and per-service status.

Exits non-zero unless the service reports healthy or degraded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := apiclient.FromConfig(a.cfg)
			h, resp, err := client.Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("health check %s: %w", client.BaseURL(), err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(h); err != nil {
					return err
				}
			} else {
				printf(out, "%s %s (HTTP %d, version %s, %s, up %.0fs)\n",
					client.BaseURL(), h.Status, resp.StatusCode, h.Version, h.Environment, h.Uptime)
				names := make([]string, 0, len(h.Services))
				for name := range h.Services {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					svc := h.Services[name]
					printf(out, "  %-10s %-10s %.1fms\n", name, svc.Status, svc.ResponseTime)
				}
			}

			if h.Status != "healthy" && h.Status != "degraded" {
				return fmt.Errorf("service is %s", h.Status)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw health report")
	return cmd
}
